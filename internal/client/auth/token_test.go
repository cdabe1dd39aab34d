package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_EmptyMisses(t *testing.T) {
	c := NewCache(newFakeClock().Now)

	assert.Nil(t, c.Current())
	_, ok := c.Expiration()
	assert.False(t, ok)
}

func TestCache_ExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(clock.Now)
	data := NewTokenData("sid-1", "csrf-1")

	c.Store(data, clock.Now().Add(60*time.Second))
	got := c.Current()
	require.NotNil(t, got)
	assert.Same(t, data, got)
	assert.Equal(t, "sid-1", got.SID())
	assert.Equal(t, "csrf-1", got.CSRFToken())

	clock.Advance(59 * time.Second)
	assert.NotNil(t, c.Current())

	clock.Advance(time.Second)
	assert.Nil(t, c.Current(), "expiration equal to now is expired")

	clock.Advance(time.Second)
	assert.Nil(t, c.Current())
	// a handle obtained earlier stays usable
	assert.Equal(t, "sid-1", got.SID())
}

func TestCache_StoreReplaces(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(clock.Now)

	c.Store(NewTokenData("old", "old"), clock.Now().Add(time.Minute))
	c.Store(NewTokenData("new", "new"), clock.Now().Add(time.Hour))

	got := c.Current()
	require.NotNil(t, got)
	assert.Equal(t, "new", got.SID())
	exp, ok := c.Expiration()
	assert.True(t, ok)
	assert.Equal(t, clock.Now().Add(time.Hour), exp)
}

func TestCache_PastExpirationMisses(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(clock.Now)

	c.Store(NewTokenData("sid", "csrf"), clock.Now().Add(-5*time.Second))
	assert.Nil(t, c.Current())
}

func TestCache_Clear(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(clock.Now)

	c.Store(NewTokenData("sid", "csrf"), clock.Now().Add(time.Hour))
	c.Clear()
	assert.Nil(t, c.Current())
}

func TestCache_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(clock.Now)
	c.Store(NewTokenData("a", "a"), clock.Now().Add(time.Hour))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if d := c.Current(); d != nil && d.SID() != d.CSRFToken() {
					t.Errorf("torn token: sid %q csrf %q", d.SID(), d.CSRFToken())
					return
				}
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		v := string(rune('a' + i%26))
		c.Store(NewTokenData(v, v), clock.Now().Add(time.Hour))
	}
	close(stop)
	wg.Wait()
}

package auth

import (
	"sync/atomic"
	"time"
)

// TokenData is an authenticated gateway session. It is never mutated after
// construction, so a *TokenData can be shared freely between goroutines.
type TokenData struct {
	sid       string
	csrfToken string
}

// NewTokenData returns session data for the given sid and CSRF token.
func NewTokenData(sid, csrfToken string) *TokenData {
	return &TokenData{sid: sid, csrfToken: csrfToken}
}

// SID is the session identifier sent as the sid cookie.
func (t *TokenData) SID() string { return t.sid }

// CSRFToken is sent as the csrf_token form field on state-changing calls.
func (t *TokenData) CSRFToken() string { return t.csrfToken }

// token pairs session data with its absolute expiration. Records are
// immutable and replaced as a whole.
type token struct {
	data       *TokenData
	expiration time.Time
}

// Cache holds the current session token. Validity is checked against the
// clock on every read.
type Cache struct {
	now     func() time.Time
	current atomic.Pointer[token]
}

// NewCache returns an empty cache. A nil clock selects time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	c := &Cache{now: now}
	c.current.Store(&token{expiration: now()})
	return c
}

// Current returns the cached token if its expiration is strictly after now,
// and nil otherwise.
func (c *Cache) Current() *TokenData {
	t := c.current.Load()
	if t.data == nil || !t.expiration.After(c.now()) {
		return nil
	}
	return t.data
}

// Store replaces the cached token and its expiration in one step.
func (c *Cache) Store(data *TokenData, expiration time.Time) {
	c.current.Store(&token{data: data, expiration: expiration})
}

// Expiration reports the expiration of the cached token and whether a token
// has ever been stored.
func (c *Cache) Expiration() (time.Time, bool) {
	t := c.current.Load()
	return t.expiration, t.data != nil
}

// Clear drops the cached token.
func (c *Cache) Clear() {
	c.current.Store(&token{expiration: c.now()})
}

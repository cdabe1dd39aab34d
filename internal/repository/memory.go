package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/tmhi/internal/models"
)

// MemoryStore keeps accounts and sessions in process memory. It implements
// the same operations as the PostgreSQL repositories.
type MemoryStore struct {
	now      func() time.Time
	mu       sync.RWMutex
	accounts map[string]models.Account
	sessions map[string]models.Session
}

// NewMemoryStore returns an empty MemoryStore. now decides which sessions
// have expired; nil selects time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		accounts: make(map[string]models.Account),
		sessions: make(map[string]models.Session),
	}
}

// UpsertAccount creates the account or replaces its password.
func (m *MemoryStore) UpsertAccount(_ context.Context, a models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Username] = a
	return nil
}

// ListAccounts returns every account ordered by username.
func (m *MemoryStore) ListAccounts(_ context.Context) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accounts := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

// CreateSession stores s under its sid and drops sessions that have expired.
func (m *MemoryStore) CreateSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for sid, old := range m.sessions {
		if old.Expired(now) {
			delete(m.sessions, sid)
		}
	}
	m.sessions[s.SID] = s
	return nil
}

// GetSession returns the session with the given sid, or ErrNotFound.
func (m *MemoryStore) GetSession(_ context.Context, sid string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sid]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// DeleteSessionsByUser removes every session of username.
func (m *MemoryStore) DeleteSessionsByUser(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, s := range m.sessions {
		if s.Username == username {
			delete(m.sessions, sid)
		}
	}
	return nil
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// MemorySource is an in-memory Source used in tests and local runs.
type MemorySource struct {
	mu       sync.RWMutex
	sessions map[string]models.AccountSession
	now      func() time.Time
}

// NewMemorySource creates an empty in-memory session source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		sessions: make(map[string]models.AccountSession),
		now:      time.Now,
	}
}

// Put stores or replaces the session for an account.
func (m *MemorySource) Put(s models.AccountSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.AccountID] = s
}

// Remove drops the session for an account.
func (m *MemorySource) Remove(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, accountID)
}

// AllValid returns every stored session that has not expired.
func (m *MemorySource) AllValid(ctx context.Context) ([]models.AccountSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]models.AccountSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Usable(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// IsValid reports whether the account has a stored, unexpired session.
func (m *MemorySource) IsValid(ctx context.Context, accountID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[accountID]
	return ok && s.Usable(m.now()), nil
}

package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore remembers signed-out session ids until their tokens would
// have expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// MemoryRevocationStore is a process-local RevocationStore for single-replica
// deployments.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore creates an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke implements RevocationStore. A zero until keeps the entry until the
// process exits.
func (s *MemoryRevocationStore) Revoke(_ context.Context, sessionID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, exp := range s.entries {
		if !exp.IsZero() && !now.Before(exp) {
			delete(s.entries, id)
		}
	}
	if !until.IsZero() && !now.Before(until) {
		return nil
	}
	s.entries[sessionID] = until
	return nil
}

// IsRevoked implements RevocationStore.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.entries[sessionID]
	if !ok {
		return false, nil
	}
	if !exp.IsZero() && !s.now().Before(exp) {
		delete(s.entries, sessionID)
		return false, nil
	}
	return true, nil
}

package validation

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const csrfTokenBytes = 20

// GenerateCSRFToken returns a random base-36 token from crypto/rand.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return new(big.Int).SetBytes(b).Text(36), nil
}

// CSRFStore keeps one token per session. Token returns the live token,
// issuing a new one when none exists or the current one has passed the
// rotation interval.
type CSRFStore interface {
	Token(ctx context.Context, sessionID string) (string, error)
	Validate(ctx context.Context, sessionID, token string) (bool, error)
	Revoke(ctx context.Context, sessionID string) error
}

func tokensEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type csrfEntry struct {
	token    string
	issuedAt time.Time
}

// MemoryCSRFStore is a process-local CSRFStore for single-replica deployments.
type MemoryCSRFStore struct {
	mu        sync.Mutex
	entries   map[string]csrfEntry
	rotation  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryCSRFStore creates a store whose tokens rotate every rotation.
func NewMemoryCSRFStore(rotation time.Duration) *MemoryCSRFStore {
	return &MemoryCSRFStore{
		entries:  make(map[string]csrfEntry),
		rotation: rotation,
		now:      time.Now,
	}
}

func (s *MemoryCSRFStore) expired(e csrfEntry, now time.Time) bool {
	return now.Sub(e.issuedAt) >= s.rotation
}

// Token implements CSRFStore.
func (s *MemoryCSRFStore) Token(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if e, ok := s.entries[sessionID]; ok && !s.expired(e, now) {
		return e.token, nil
	}
	token, err := GenerateCSRFToken()
	if err != nil {
		return "", err
	}
	s.entries[sessionID] = csrfEntry{token: token, issuedAt: now}
	return token, nil
}

// Validate implements CSRFStore. A rotated-out token is rejected.
func (s *MemoryCSRFStore) Validate(_ context.Context, sessionID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok || s.expired(e, s.now()) {
		return false, nil
	}
	return tokensEqual(e.token, token), nil
}

// Revoke implements CSRFStore.
func (s *MemoryCSRFStore) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

// sweepLocked drops expired entries at most once per rotation interval.
func (s *MemoryCSRFStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.rotation {
		return
	}
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
		}
	}
	s.lastSweep = now
}

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "ddp:revoked:"

// RedisRevocationStore shares signed-out session ids between replicas. Each
// entry expires with the token it blocks.
type RedisRevocationStore struct {
	client redis.UniversalClient
	// fallbackTTL applies when a session has no known expiry.
	fallbackTTL time.Duration
	now         func() time.Time
}

// NewRedisRevocationStore creates a redis-backed RevocationStore. fallbackTTL
// should be the session lifetime.
func NewRedisRevocationStore(client redis.UniversalClient, fallbackTTL time.Duration) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, fallbackTTL: fallbackTTL, now: time.Now}
}

// Revoke implements RevocationStore.
func (s *RedisRevocationStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := s.fallbackTTL
	if !until.IsZero() {
		ttl = until.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
	}
	if err := s.client.Set(ctx, revokedKeyPrefix+sessionID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return n > 0, nil
}

package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const csrfKeyPrefix = "ddp:csrf:"

// RedisCSRFStore shares CSRF tokens between replicas. Rotation is the key TTL.
type RedisCSRFStore struct {
	client   redis.UniversalClient
	rotation time.Duration
}

// NewRedisCSRFStore creates a redis-backed CSRFStore.
func NewRedisCSRFStore(client redis.UniversalClient, rotation time.Duration) *RedisCSRFStore {
	return &RedisCSRFStore{client: client, rotation: rotation}
}

func csrfKey(sessionID string) string {
	return csrfKeyPrefix + sessionID
}

// Token implements CSRFStore. Concurrent first requests for a session race on
// SETNX and all end up with the winner's token.
func (s *RedisCSRFStore) Token(ctx context.Context, sessionID string) (string, error) {
	key := csrfKey(sessionID)
	token, err := s.client.Get(ctx, key).Result()
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read csrf token: %w", err)
	}

	fresh, err := GenerateCSRFToken()
	if err != nil {
		return "", err
	}
	ok, err := s.client.SetNX(ctx, key, fresh, s.rotation).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", err)
	}
	if ok {
		return fresh, nil
	}
	token, err = s.client.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read csrf token: %w", err)
	}
	return token, nil
}

// Validate implements CSRFStore.
func (s *RedisCSRFStore) Validate(ctx context.Context, sessionID, token string) (bool, error) {
	stored, err := s.client.Get(ctx, csrfKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read csrf token: %w", err)
	}
	return tokensEqual(stored, token), nil
}

// Revoke implements CSRFStore.
func (s *RedisCSRFStore) Revoke(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, csrfKey(sessionID)).Err()
}

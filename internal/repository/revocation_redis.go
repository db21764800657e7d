package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tutorlink/session-core/internal/domain"
)

const revokedKeyPrefix = "auth:revoked:"

type redisRevocationStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisRevocationStore keeps revocations as keys that expire with the token.
func NewRedisRevocationStore(client redis.UniversalClient) RevocationRepository {
	return &redisRevocationStore{client: client, now: time.Now}
}

func (s *redisRevocationStore) Revoke(ctx context.Context, entry domain.RevocationEntry) (bool, error) {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.client.SetNX(ctx, revokedKeyPrefix+entry.JTI, entry.ExpiresAt.Unix(), ttl).Result()
}

func (s *redisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Sweep is a no-op: Redis expires the keys itself.
func (s *redisRevocationStore) Sweep(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

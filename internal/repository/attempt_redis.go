package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tutorlink/session-core/internal/domain"
)

// attemptScript checks and counts in one round trip so concurrent logins from
// the same key cannot lose updates. Returns {allowed, count, retryAfterMs}.
var attemptScript = redis.NewScript(`
local key    = KEYS[1]
local max    = tonumber(ARGV[1])
local window = tonumber(ARGV[2]) -- milliseconds
local now    = tonumber(ARGV[3]) -- unix milliseconds

local start = tonumber(redis.call("HGET", key, "start"))
local count = tonumber(redis.call("HGET", key, "count"))

if not start or not count or now - start >= window then
  redis.call("HSET", key, "start", now, "count", 1)
  redis.call("PEXPIRE", key, window)
  return {1, 1, 0}
end

local remaining = start + window - now
if count >= max then
  return {0, count, remaining}
end

count = redis.call("HINCRBY", key, "count", 1)
redis.call("PEXPIRE", key, remaining)
return {1, count, 0}
`)

// AttemptRepository counts login attempts per source key.
type AttemptRepository interface {
	Attempt(ctx context.Context, key string, max int, window time.Duration, now time.Time) (domain.AttemptResult, error)
	Reset(ctx context.Context, key string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type redisAttemptStore struct {
	client redis.UniversalClient
}

// NewRedisAttemptStore shares login counters across instances.
func NewRedisAttemptStore(client redis.UniversalClient) AttemptRepository {
	return &redisAttemptStore{client: client}
}

func attemptKey(key string) string {
	return fmt.Sprintf("auth:login_attempts:%s", key)
}

func (s *redisAttemptStore) Attempt(ctx context.Context, key string, max int, window time.Duration, now time.Time) (domain.AttemptResult, error) {
	res, err := attemptScript.Run(ctx, s.client, []string{attemptKey(key)},
		max, window.Milliseconds(), now.UnixMilli()).Int64Slice()
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if len(res) != 3 {
		return domain.AttemptResult{}, fmt.Errorf("unexpected attempt script result: %v", res)
	}
	return domain.AttemptResult{
		Allowed:    res[0] == 1,
		Count:      int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

func (s *redisAttemptStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, attemptKey(key)).Err()
}

// Sweep is a no-op: keys carry the remaining window as their TTL.
func (s *redisAttemptStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

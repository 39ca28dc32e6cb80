package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted set per identity scored by admission
// time in milliseconds. Purge, count and record happen in one atomic step.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return 1
end
return 0
`)

// RedisLimiter is a Limiter shared by every replica through Redis.
type RedisLimiter struct {
	client  redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter storing windows under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "reviews:ratelimit:"
	}
	return &RedisLimiter{client: client, prefix: prefix, nowFunc: time.Now}
}

// WithClock replaces the limiter's time source.
func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	l.nowFunc = now
	return l
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	now := l.nowFunc().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		now, window.Milliseconds(), limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

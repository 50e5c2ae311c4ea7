package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/feedworks/refresh-engine/internal/ratelimit"
)

const (
	defaultLimitPerMinute int64 = 30
	windowSeconds               = 60
)

// allowScript counts callers inside a fixed one-minute window. The key
// embeds the window start, so expiry handles cleanup.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed per-caller enqueue limiter. The
// producer rejects (it never queues the caller), so only Allow exists.
type RedisRateLimiter struct {
	client         *goredis.Client
	limitPerMinute int64
	now            func() time.Time
	script         *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, limitPerMinute int) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	limit := int64(limitPerMinute)
	if limit <= 0 {
		limit = defaultLimitPerMinute
	}

	return &RedisRateLimiter{
		client:         client,
		limitPerMinute: limit,
		now:            time.Now,
		script:         allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	caller := strings.ToLower(strings.TrimSpace(key))
	if caller == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	window := r.now().UTC().Unix() / windowSeconds
	redisKey := fmt.Sprintf("ratelimit:refresh:%s:%d", caller, window)

	result, err := r.script.Run(ctx, r.client, []string{redisKey}, r.limitPerMinute, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

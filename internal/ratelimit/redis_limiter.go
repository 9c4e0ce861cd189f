package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript runs one token bucket step atomically.
//
//	KEYS[1] = bucket key
//	ARGV[1] = current time (float seconds)
//	ARGV[2] = refill rate (tokens per second)
//	ARGV[3] = capacity
//	ARGV[4] = cost
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local cost = tonumber(ARGV[4]) or 1

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local last_refill = tonumber(redis.call('HGET', key, 'last_refill'))

if tokens == nil then
	tokens = capacity
	last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
	tokens = math.min(tokens + elapsed * rate, capacity)
end

local allowed = tokens >= cost
if allowed then
	tokens = tokens - cost
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('EXPIRE', key, math.ceil(capacity / rate * 2))

local retry_after = 0
if not allowed then
	retry_after = (cost - tokens) / rate
end

return {allowed and 1 or 0, math.floor(tokens), math.ceil(retry_after)}
`)

// RedisLimiter shares token buckets across replicas through Redis
type RedisLimiter struct {
	client redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter over an existing client
func NewRedisLimiter(client redis.UniversalClient, config Config) *RedisLimiter {
	return &RedisLimiter{client: client, config: config, now: time.Now}
}

// WithClock overrides the time source
func (rl *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	rl.now = now
	return rl
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := rl.now()

	result, err := tokenBucketScript.Run(ctx, rl.client,
		[]string{rl.redisKey(key)},
		float64(now.UnixNano())/1e9,
		rl.config.refillRate(key),
		rl.config.GetBurst(key),
		1,
	).Result()
	if err != nil {
		if rl.config.FailOpen {
			return true, 0, now.Add(rl.config.Window), nil
		}
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("invalid rate limit script result: %v", result)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	retryAfter, _ := values[2].(int64)

	resetTime := now.Add(rl.config.Window)
	if retryAfter > 0 {
		resetTime = now.Add(time.Duration(retryAfter) * time.Second)
	}
	return allowed == 1, int(remaining), resetTime, nil
}

func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, rl.redisKey(key)).Err()
}

func (rl *RedisLimiter) GetLimit(key string) int {
	return rl.config.GetLimit(key)
}

func (rl *RedisLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.config.KeyPrefix, key)
}

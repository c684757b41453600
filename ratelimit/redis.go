package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisLimiter counts requests in Redis, a client gets the same quota whatever process serves it.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewRedisLimiter(client *redis.Client, requests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.Limit{Rate: requests, Burst: requests, Period: window},
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	result, err := r.limiter.Allow(ctx, keyPrefix+key, r.limit)
	if err != nil {
		return false, 0, err
	}
	if result.Allowed == 0 {
		return false, result.RetryAfter, nil
	}
	return true, 0, nil
}

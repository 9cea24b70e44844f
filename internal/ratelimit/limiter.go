// Package ratelimit implements a Redis-backed fixed-window limiter keyed by
// client and purpose.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter allows at most limit requests per key and purpose in each window.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// getRateLimitKey generates the Redis key for a client and purpose
func getRateLimitKey(key, purpose string) string {
	return fmt.Sprintf("rate_limit:%s:%s", purpose, key)
}

// Allow records one request and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key, purpose string) (bool, error) {
	redisKey := getRateLimitKey(key, purpose)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// First hit opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

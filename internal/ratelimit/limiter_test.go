package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, max int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLimiter(client, max, window), mr
}

func TestLimiter_AllowsUpToMax(t *testing.T) {
	limiter, mr := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "203.0.113.7", "login")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := limiter.Allow(ctx, "203.0.113.7", "login")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, time.Minute, mr.TTL("rate_limit:login:203.0.113.7"))
}

func TestLimiter_SeparatesPurposesAndClients(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "203.0.113.7", "login")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "203.0.113.7", "callback")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "198.51.100.1", "login")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_WindowResets(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "203.0.113.7", "login")
	require.NoError(t, err)
	allowed, err := limiter.Allow(ctx, "203.0.113.7", "login")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(time.Minute)

	allowed, err = limiter.Allow(ctx, "203.0.113.7", "login")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_RedisDown(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	mr.Close()

	_, err := limiter.Allow(context.Background(), "203.0.113.7", "login")
	assert.Error(t, err)
}

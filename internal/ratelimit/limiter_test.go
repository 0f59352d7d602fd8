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

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisLimiter(client)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := limiter.Allow(ctx, "1.2.3.4:/api/v1/courses", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := limiter.Allow(ctx, "1.2.3.4:/api/v1/courses", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, res.ResetAt.After(time.Now()))

	other, err := limiter.Allow(ctx, "5.6.7.8:/api/v1/courses", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.True(t, mr.TTL(keys[0]) > 0)
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, _ := limiter.Allow(ctx, "ip:/auth", 2, time.Minute)
		assert.True(t, res.Allowed)
	}
	res, _ := limiter.Allow(ctx, "ip:/auth", 2, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC), res.ResetAt)
	assert.Equal(t, 55*time.Second, res.RetryAfter(now))

	now = now.Add(time.Minute)
	res, _ = limiter.Allow(ctx, "ip:/auth", 2, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Allow(context.Background(), "a", 10, time.Minute)
	_, _ = limiter.Allow(context.Background(), "b", 10, time.Minute)
	assert.Equal(t, 2, limiter.Size())

	assert.Equal(t, 0, limiter.Sweep())
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, limiter.Sweep())
	assert.Equal(t, 0, limiter.Size())
}

func TestRedisLimiter_PeekDoesNotCount(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisLimiter(client)
	ctx := context.Background()

	res, err := limiter.Peek(ctx, "mfa:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)

	for i := 0; i < 2; i++ {
		_, err = limiter.Allow(ctx, "mfa:u1", 2, time.Minute)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		res, err = limiter.Peek(ctx, "mfa:u1", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
	}
}

func TestMemoryLimiter_Peek(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	res, _ := limiter.Peek(ctx, "mfa:u1", 1, time.Minute)
	assert.True(t, res.Allowed)
	assert.Zero(t, limiter.Size())

	_, _ = limiter.Allow(ctx, "mfa:u1", 1, time.Minute)
	res, _ = limiter.Peek(ctx, "mfa:u1", 1, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC), res.ResetAt)

	now = now.Add(time.Minute)
	res, _ = limiter.Peek(ctx, "mfa:u1", 1, time.Minute)
	assert.True(t, res.Allowed)
}

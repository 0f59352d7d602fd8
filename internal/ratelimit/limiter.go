package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the state of one window after a hit
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time until the window resets
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
	// Peek reports the current window without counting a hit.
	// Allowed is false once the window is used up.
	Peek(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// RedisLimiter is a fixed-window counter shared across instances
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

func (l *RedisLimiter) windowKey(key string, window time.Duration) (string, time.Time) {
	windowStart := time.Now().Truncate(window)
	return fmt.Sprintf("%s%s:%d", l.prefix, key, windowStart.UnixMilli()), windowStart
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	redisKey, windowStart := l.windowKey(key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	return buildResult(int(incr.Val()), limit, windowStart.Add(window)), nil
}

func (l *RedisLimiter) Peek(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	redisKey, windowStart := l.windowKey(key, window)

	count, err := l.client.Get(ctx, redisKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("rate limit peek: %w", err)
	}
	return peekResult(count, limit, windowStart.Add(window)), nil
}

// MemoryLimiter is the single-process fallback when Redis is not configured
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memoryWindow), now: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Truncate(window).Add(window)}
		l.windows[key] = w
	}
	w.count++
	return buildResult(w.count, limit, w.resetAt), nil
}

func (l *MemoryLimiter) Peek(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		return peekResult(0, limit, now.Truncate(window).Add(window)), nil
	}
	return peekResult(w.count, limit, w.resetAt), nil
}

// Sweep drops expired windows and returns how many were removed
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

func (l *MemoryLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func buildResult(count, limit int, resetAt time.Time) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func peekResult(count, limit int, resetAt time.Time) Result {
	res := buildResult(count, limit, resetAt)
	res.Allowed = count < limit
	return res
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("cache not found")
)

// CacheHelper is a JSON cache-aside wrapper around one key prefix.
// A nil client turns every operation into a miss or a no-op.
type CacheHelper struct {
	client *redis.Client
	prefix string
}

func NewCacheHelper(client *redis.Client, prefix string) *CacheHelper {
	return &CacheHelper{client: client, prefix: prefix}
}

// CacheConfig pairs a key prefix with its TTL
type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

var (
	CourseCacheConfig = CacheConfig{
		TTL:    10 * time.Minute,
		Prefix: "course:",
	}

	// Catalog pages change whenever any course is written
	CatalogCacheConfig = CacheConfig{
		TTL:    2 * time.Minute,
		Prefix: "catalog:",
	}

	UserCacheConfig = CacheConfig{
		TTL:    5 * time.Minute,
		Prefix: "user:",
	}

	StatsCacheConfig = CacheConfig{
		TTL:    5 * time.Minute,
		Prefix: "stats:",
	}
)

func (c *CacheHelper) Key(key string) string {
	return c.prefix + key
}

func (c *CacheHelper) Available() bool {
	return c != nil && c.client != nil
}

// Get loads key into dest
func (c *CacheHelper) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Available() {
		return ErrCacheNotAvailable
	}

	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache get: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal: %w", err)
	}
	return nil
}

// Set stores value as JSON
func (c *CacheHelper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Available() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	return c.client.Set(ctx, c.Key(key), data, ttl).Err()
}

func (c *CacheHelper) Delete(ctx context.Context, keys ...string) error {
	if !c.Available() || len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// InvalidatePattern deletes every key under the helper prefix matching pattern, using SCAN
func (c *CacheHelper) InvalidatePattern(ctx context.Context, pattern string) error {
	if !c.Available() {
		return nil
	}

	fullPattern := c.Key(pattern)
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, fullPattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan %s: %w", fullPattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		pipe.Del(ctx, keys[i:end]...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache pipeline delete: %w", err)
	}
	return nil
}

// CacheOrExecute returns the cached value for key or runs fetch and caches its result.
// Cache failures never fail the call.
func (c *CacheHelper) CacheOrExecute(ctx context.Context, key string, dest interface{}, ttl time.Duration, fetch func() (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheNotFound) && !errors.Is(err, ErrCacheNotAvailable) {
		slog.WarnContext(ctx, "Cache read failed, falling back to source", "error", err, "key", c.Key(key))
	}

	value, err := fetch()
	if err != nil {
		return err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "Cache write failed", "error", err, "key", c.Key(key))
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// CacheManager groups the helpers used by repositories and services
type CacheManager struct {
	client  *redis.Client
	Course  *CacheHelper
	Catalog *CacheHelper
	User    *CacheHelper
	Stats   *CacheHelper
}

func NewCacheManager(client *redis.Client) *CacheManager {
	return &CacheManager{
		client:  client,
		Course:  NewCacheHelper(client, CourseCacheConfig.Prefix),
		Catalog: NewCacheHelper(client, CatalogCacheConfig.Prefix),
		User:    NewCacheHelper(client, UserCacheConfig.Prefix),
		Stats:   NewCacheHelper(client, StatsCacheConfig.Prefix),
	}
}

func (cm *CacheManager) HealthCheck(ctx context.Context) error {
	if cm.client == nil {
		return ErrCacheNotAvailable
	}
	if err := cm.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}

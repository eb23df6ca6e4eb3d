// Package cache provides an optional Redis-backed cache for profile listings.
// The directory listing is the hottest read path and tolerates short
// staleness. Claim state is never cached: verification reads always go to
// the database, and listing entries are invalidated whenever a profile
// changes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botarena/botarena/internal/config"
)

// DefaultListTTL bounds how stale a cached listing page may get.
const DefaultListTTL = 60 * time.Second

// Cache wraps a Redis client with JSON helpers. A nil or disconnected Cache
// degrades to a no-op so the API keeps serving from Postgres when Redis is
// down.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	warnedUnavailable atomic.Bool
}

// New connects to Redis per the given configuration. When Redis is disabled
// or unreachable the returned Cache bypasses itself instead of failing.
func New(cfg *config.RedisConfig) *Cache {
	if cfg == nil || !cfg.Enabled {
		return &Cache{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, bypassing cache", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return &Cache{}
	}

	ttl := cfg.ListCacheTTL
	if ttl <= 0 {
		ttl = DefaultListTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Client exposes the underlying Redis client for components that need it
// directly, such as the shared rate limiter. Returns nil when the cache is
// bypassed.
func (c *Cache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) isUnavailable() bool {
	return c == nil || c.client == nil
}

func (c *Cache) warnUnavailableOnce(err error) {
	if c == nil {
		return
	}
	if c.warnedUnavailable.CompareAndSwap(false, true) {
		slog.Warn("redis unavailable, bypassing cache", "error", err)
	}
}

// GetJSON loads a cached value into out. The bool reports a cache hit;
// misses and Redis failures both read as a miss so callers fall through to
// the database.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if c.isUnavailable() {
		return false, nil
	}
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		c.warnUnavailableOnce(err)
		return false, nil
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores a value under the configured listing TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value any) error {
	if c.isUnavailable() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.warnUnavailableOnce(err)
	}
	return nil
}

// ListKey builds the cache key for one page of the profile listing.
func ListKey(sort string, limit, offset int) string {
	return fmt.Sprintf("profiles:list:%s:%d:%d", sort, limit, offset)
}

// InvalidateListings drops every cached listing page. Called after any
// profile create, update, delete, or claim finalization so listings never
// serve a stale claim badge for longer than one round trip.
func (c *Cache) InvalidateListings(ctx context.Context) error {
	if c.isUnavailable() {
		return nil
	}
	iter := c.client.Scan(ctx, 0, "profiles:list:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Warn("cache invalidation delete failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.warnUnavailableOnce(err)
	}
	return nil
}

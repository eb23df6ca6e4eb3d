package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for a rate limit tier.
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum sustained request rate per client.
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed.
	BurstSize int
	// CleanupInterval is how often the in-memory limiter drops idle entries.
	CleanupInterval time.Duration
}

// APIRateLimitConfig returns limits for the general profile API.
func APIRateLimitConfig(requestsPerMinute, burst int) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		BurstSize:         burst,
		CleanupInterval:   5 * time.Minute,
	}
}

// ClaimRateLimitConfig returns stricter limits for the claim endpoints.
// Claim verification triggers an outbound gist fetch, so these endpoints
// are kept well below the general API rate.
func ClaimRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Limiter decides whether a request from a given client key may proceed.
// Implementations exist for single-process (in-memory token bucket) and
// multi-instance (Redis-backed) deployments.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int)
	Limit() int
	Stop()
}

// rateLimitEntry tracks the token bucket for a single client.
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter implements a token bucket rate limiter in process memory.
type MemoryLimiter struct {
	config  RateLimitConfig
	entries map[string]*rateLimitEntry
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewMemoryLimiter creates an in-memory limiter and starts its cleanup loop.
func NewMemoryLimiter(config RateLimitConfig) *MemoryLimiter {
	rl := &MemoryLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup periodically removes entries for clients that have gone idle.
func (rl *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *MemoryLimiter) Stop() {
	close(rl.stopCh)
}

// Limit returns the sustained requests-per-minute ceiling.
func (rl *MemoryLimiter) Limit() int {
	return rl.config.RequestsPerMinute
}

// Allow checks if a request from the given key should be allowed.
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]

	if !exists {
		// New client starts with a full burst.
		rl.entries[key] = &rateLimitEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return true, rl.config.BurstSize - 1
	}

	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true, int(entry.tokens)
	}
	return false, 0
}

// RedisLimiter enforces rate limits through Redis so that all instances
// behind a load balancer share one budget per client.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	rpm     int
}

// NewRedisLimiter creates a Redis-backed limiter using the GCRA algorithm.
func NewRedisLimiter(client *redis.Client, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		rpm: config.RequestsPerMinute,
	}
}

// Limit returns the sustained requests-per-minute ceiling.
func (rl *RedisLimiter) Limit() int {
	return rl.rpm
}

// Allow checks the shared Redis budget for the given key. Redis errors
// fail open so a cache outage does not take the API down with it.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int) {
	res, err := rl.limiter.Allow(ctx, "ratelimit:"+key, rl.limit)
	if err != nil {
		return true, rl.limit.Burst
	}
	return res.Allowed > 0, res.Remaining
}

// Stop is a no-op for the Redis limiter.
func (rl *RedisLimiter) Stop() {}

// RateLimitMiddleware creates a Gin middleware that rate limits requests
// per client IP. The API is unauthenticated, so the client address is the
// only identity available for keying.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)

		allowed, remaining := limiter.Allow(c.Request.Context(), key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// clientKey derives the rate limit key from the client address.
func clientKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

// Package api wires together the HTTP routes for the BotArena backend.
//
// Route grouping philosophy:
//   - Everything under /api is public. The showcase has no login; the only
//     thing resembling authorization is the claim flow itself, which proves
//     control of a GitHub identity out-of-band.
//   - The claim endpoints sit behind a stricter rate limit than the rest of
//     the API because verification triggers an outbound gist fetch.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	claimapi "github.com/botarena/botarena/internal/api/claims"
	"github.com/botarena/botarena/internal/api/profiles"
	"github.com/botarena/botarena/internal/cache"
	claimsvc "github.com/botarena/botarena/internal/claims"
	"github.com/botarena/botarena/internal/config"
	"github.com/botarena/botarena/internal/db/repositories"
	"github.com/botarena/botarena/internal/jobs"
	"github.com/botarena/botarena/internal/middleware"
	"github.com/botarena/botarena/internal/safego"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	claimSweeper *jobs.ClaimSweeper
	rateLimiters []middleware.Limiter
	cache        *cache.Cache
}

// Shutdown stops all background goroutines and releases the cache
// connection. It should be called after the HTTP server has been shut down
// so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.claimSweeper != nil {
		bg.claimSweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.cache != nil {
		_ = bg.cache.Close()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	sqlxDB := sqlx.NewDb(db, "postgres")
	profileRepo := repositories.NewProfileRepository(sqlxDB)

	listCache := cache.New(&cfg.Redis)

	gists := claimsvc.NewGistFetcher(cfg.Claims.GistFetchTimeout)
	claimService := claimsvc.NewService(profileRepo, gists, cfg.Claims.TTL)

	profileHandler := profiles.NewHandler(profileRepo, listCache)
	claimHandler := claimapi.NewHandler(claimService, listCache)

	var sweeper *jobs.ClaimSweeper
	if cfg.Claims.SweepInterval > 0 {
		sweeper = jobs.NewClaimSweeper(profileRepo, cfg.Claims.SweepInterval, cfg.Claims.SweepGrace)
		safego.GoNamed("claim-sweeper", func() {
			sweeper.Start(context.Background())
		})
	}

	apiLimiter, claimLimiter := newLimiters(cfg, listCache)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.Security.CORS))

	router.GET("/healthz", healthCheckHandler(db))
	router.GET("/version", versionHandler())

	apiGroup := router.Group("/api")
	if cfg.Security.RateLimiting.Enabled {
		apiGroup.Use(middleware.RateLimitMiddleware(apiLimiter))
	}
	{
		apiGroup.POST("/profiles", profileHandler.Create)
		apiGroup.GET("/profiles", profileHandler.List)
		apiGroup.GET("/profiles/:slug", profileHandler.Get)
		apiGroup.PUT("/profiles/:slug", profileHandler.Update)
		apiGroup.DELETE("/profiles/:slug", profileHandler.Delete)

		claimGroup := apiGroup.Group("/claim")
		if cfg.Security.RateLimiting.Enabled {
			claimGroup.Use(middleware.RateLimitMiddleware(claimLimiter))
		}
		{
			claimGroup.POST("/initiate", claimHandler.Initiate)
			claimGroup.POST("/verify", claimHandler.Verify)
			claimGroup.GET("/status/:slug", claimHandler.Status)
		}
	}

	bg := &BackgroundServices{
		claimSweeper: sweeper,
		rateLimiters: []middleware.Limiter{apiLimiter, claimLimiter},
		cache:        listCache,
	}

	return router, bg
}

// newLimiters builds the two rate limit tiers. With Redis available the
// budget is shared across instances; otherwise each instance enforces its
// own in-memory token bucket.
func newLimiters(cfg *config.Config, listCache *cache.Cache) (middleware.Limiter, middleware.Limiter) {
	apiCfg := middleware.APIRateLimitConfig(
		cfg.Security.RateLimiting.RequestsPerMinute,
		cfg.Security.RateLimiting.Burst,
	)
	claimCfg := middleware.ClaimRateLimitConfig()

	if client := listCache.Client(); client != nil {
		return middleware.NewRedisLimiter(client, apiCfg), middleware.NewRedisLimiter(client, claimCfg)
	}
	return middleware.NewMemoryLimiter(apiCfg), middleware.NewMemoryLimiter(claimCfg)
}

// healthCheckHandler returns the health status of the service, including
// database connectivity.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version.
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs every request as a structured slog record. The
// output format (json or text) follows the handler installed by
// telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

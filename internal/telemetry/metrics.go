// Package telemetry provides application-level observability for BotArena.
//
// All metrics are registered against the default Prometheus registry and
// exposed on the side-channel HTTP server started by cmd/server (default port
// 9090, path /metrics). The endpoint is not served by the Gin router, so it
// stays off the public ingress and outside the rate-limiting middleware.
//
// HTTP metrics use the Gin route template (e.g. /api/profiles/:slug) rather
// than the raw URL so user-supplied slugs cannot inflate label cardinality.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/botarena/botarena/internal/safego"
)

// HTTP metrics, labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Claim protocol metrics.
//
// ClaimVerifyFailuresTotal's reason label takes one of: not_found,
// no_pending_claim, expired, gist_fetch, gist_not_found, code_not_found,
// handle_mismatch, already_claimed, internal. An alert on a sustained
// gist_fetch rate is the early signal for a gist.githubusercontent.com
// outage.
var (
	ProfilesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profiles_created_total",
			Help: "Total number of public profiles created.",
		},
	)

	ClaimsInitiatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claims_initiated_total",
			Help: "Total number of ownership claims initiated.",
		},
	)

	ClaimsVerifiedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claims_verified_total",
			Help: "Total number of ownership claims successfully verified.",
		},
	)

	ClaimVerifyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_verify_failures_total",
			Help: "Total number of failed claim verifications, by failure reason.",
		},
		[]string{"reason"},
	)

	GistFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gist_fetch_duration_seconds",
			Help:    "Duration of out-of-band Gist raw-content fetches during claim verification.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExpiredClaimsClearedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expired_claims_cleared_total",
			Help: "Total number of stale pending claims cleared by the background sweeper.",
		},
	)
)

// DBOpenConnections tracks the number of open connections in the sql.DB pool,
// sampled every 30 seconds rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// pool statistics every 30 seconds and updates DBOpenConnections. The
// goroutine exits when the database becomes unreachable, which happens
// naturally at shutdown once db.Close() runs.
//
// Call once, immediately after db.Connect() succeeds in cmd/server.
func StartDBStatsCollector(db *sql.DB) {
	startDBStatsCollector(db, 30*time.Second)
}

func startDBStatsCollector(db *sql.DB, interval time.Duration) {
	safego.GoNamed("db-stats-collector", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}

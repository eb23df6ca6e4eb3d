package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botarena/botarena/internal/telemetry"
)

// MetricsMiddleware records a request counter and a latency histogram for
// every request passing through the router.
//
// The path label uses c.FullPath(), the matched route template (e.g.
// /api/profiles/:slug) rather than the raw URL, so user-supplied slugs
// cannot inflate label cardinality. Requests matching no route record as
// "<no-route>".
//
// Register after gin.Recovery() and RequestIDMiddleware so the status set by
// error handlers is captured.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

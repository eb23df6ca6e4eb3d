// Package middleware provides the Gin HTTP middleware for the BotArena API.
// Everything here is registered in internal/api/router.go before any route
// handlers so every request is covered regardless of handler.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID is stored.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware ensures every request carries a unique identifier. An
// inbound X-Request-ID (set by a load balancer or the CLI) is reused
// unchanged; otherwise a fresh UUID v4 is generated. The ID is stored in the
// context for handlers and echoed in the response header so callers can
// correlate their request with server-side log entries.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

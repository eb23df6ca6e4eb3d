package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/botarena/botarena/internal/config"
)

func newCORSRouter(cfg *config.CORSConfig) *gin.Engine {
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	r := newCORSRouter(&config.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Access-Control-Allow-Methods = %q, want \"GET, POST\"", got)
	}
}

func TestCORSMiddleware_ExplicitOriginEchoed(t *testing.T) {
	r := newCORSRouter(&config.CORSConfig{
		AllowedOrigins: []string{"https://botarena.dev"},
		AllowedMethods: []string{"GET"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://botarena.dev")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://botarena.dev" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the allowed origin echoed", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
}

func TestCORSMiddleware_UnknownOriginNotEchoed(t *testing.T) {
	r := newCORSRouter(&config.CORSConfig{
		AllowedOrigins: []string{"https://botarena.dev"},
		AllowedMethods: []string{"GET"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q for disallowed origin, want empty", got)
	}
}

func TestCORSMiddleware_PreflightShortCircuits(t *testing.T) {
	handlerHit := false
	r := gin.New()
	r.Use(CORSMiddleware(&config.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	}))
	r.OPTIONS("/", func(c *gin.Context) {
		handlerHit = true
	})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if handlerHit {
		t.Error("preflight request reached the route handler, want middleware short-circuit")
	}
}

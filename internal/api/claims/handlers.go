// Package claims implements the HTTP surface of the ownership-claim flow:
// initiate, verify, and pending-claim status. All protocol decisions live in
// internal/claims; this layer only binds requests and maps failure classes
// onto HTTP statuses.
package claims

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botarena/botarena/internal/cache"
	claimsvc "github.com/botarena/botarena/internal/claims"
)

// Handler serves the /api/claim routes.
type Handler struct {
	svc   *claimsvc.Service
	cache *cache.Cache
}

// NewHandler creates the claim handler. cache may be a bypassed cache; it is
// only used to invalidate listing pages after a successful verification so
// the claimed badge shows up promptly.
func NewHandler(svc *claimsvc.Service, c *cache.Cache) *Handler {
	return &Handler{svc: svc, cache: c}
}

type initiateRequest struct {
	Slug         string `json:"slug"`
	GistURL      string `json:"gistUrl"`
	GithubHandle string `json:"githubHandle"`
}

type verifyRequest struct {
	Slug         string `json:"slug"`
	GithubHandle string `json:"githubHandle"`
}

// Initiate handles POST /api/claim/initiate.
func (h *Handler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be a JSON object")
		return
	}
	if req.Slug == "" || req.GistURL == "" || req.GithubHandle == "" {
		badRequest(c, "slug, gistUrl and githubHandle are required")
		return
	}

	result, err := h.svc.InitiateClaim(c.Request.Context(), req.Slug, req.GistURL, req.GithubHandle)
	if err != nil {
		h.writeClaimError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// Verify handles POST /api/claim/verify.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be a JSON object")
		return
	}
	if req.Slug == "" || req.GithubHandle == "" {
		badRequest(c, "slug and githubHandle are required")
		return
	}

	result, err := h.svc.VerifyClaim(c.Request.Context(), req.Slug, req.GithubHandle)
	if err != nil {
		h.writeClaimError(c, err)
		return
	}

	// The claimed badge appears in listing pages; drop them now rather than
	// waiting out the cache TTL.
	_ = h.cache.InvalidateListings(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// Status handles GET /api/claim/status/:slug.
func (h *Handler) Status(c *gin.Context) {
	slug := c.Param("slug")

	pending, err := h.svc.GetClaimStatus(c.Request.Context(), slug)
	if err != nil {
		h.writeClaimError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"hasPendingClaim": pending},
	})
}

// writeClaimError maps the claim flow's sentinel errors onto HTTP statuses.
//
//	400  caller mistakes: malformed inputs, no pending claim, expired claim,
//	     code not present in the gist
//	403  the gist exists but belongs to a different handle
//	404  unknown profile, or the gist itself does not exist
//	409  ownership already established (terminal state)
//	502  the gist fetch failed in transit
//	500  anything else
func (h *Handler) writeClaimError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, claimsvc.ErrInvalidGistURL),
		errors.Is(err, claimsvc.ErrInvalidHandle),
		errors.Is(err, claimsvc.ErrNoPendingClaim),
		errors.Is(err, claimsvc.ErrClaimExpired),
		errors.Is(err, claimsvc.ErrCodeNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, claimsvc.ErrHandleMismatch):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, claimsvc.ErrProfileNotFound),
		errors.Is(err, claimsvc.ErrGistNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, claimsvc.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, claimsvc.ErrGistFetch):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
	default:
		slog.Error("claim operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal error",
		})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

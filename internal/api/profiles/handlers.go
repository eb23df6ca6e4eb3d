// Package profiles implements the public profile endpoints: gatekeeper-gated
// create and update, listing with sort and pagination, slug lookup, and soft
// delete. Every write passes through gatekeeper.ValidatePublicConfig so no
// unvetted field from the submitted configuration can reach storage.
package profiles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/botarena/botarena/internal/cache"
	"github.com/botarena/botarena/internal/db/models"
	"github.com/botarena/botarena/internal/gatekeeper"
	"github.com/botarena/botarena/internal/telemetry"
)

// ProfileStore is the repository surface the profile endpoints use.
type ProfileStore interface {
	Create(ctx context.Context, profile *models.PublicProfile) error
	GetBySlug(ctx context.Context, slug string) (*models.PublicProfile, error)
	List(ctx context.Context, sortKey string, limit, offset int) ([]*models.PublicProfile, int, error)
	Update(ctx context.Context, slug string, profile *models.PublicProfile) (bool, error)
	SoftDelete(ctx context.Context, slug string) (bool, error)
}

// Handler serves the /api/profiles routes.
type Handler struct {
	store ProfileStore
	cache *cache.Cache
}

// NewHandler creates the profile handler. cache may be a bypassed cache.
func NewHandler(store ProfileStore, c *cache.Cache) *Handler {
	return &Handler{store: store, cache: c}
}

// listPayload is the cached and returned shape of one listing page.
type listPayload struct {
	Profiles []*models.PublicProfile `json:"profiles"`
	Meta     listMeta                `json:"meta"`
}

type listMeta struct {
	Sort   string `json:"sort"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Total  int    `json:"total"`
}

// Create handles POST /api/profiles. The body is the raw agent configuration;
// only whitelisted fields survive into the stored profile.
func (h *Handler) Create(c *gin.Context) {
	leaked, input, ok := h.bindAndValidate(c)
	if !ok {
		return
	}

	profile := profileFromInput(input)
	// Ownership is only ever established through the claim flow; a submitted
	// owner field is validated but not honored at creation.
	profile.Owner = nil

	if err := h.store.Create(c.Request.Context(), profile); err != nil {
		slog.Error("failed to create profile", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to create profile",
		})
		return
	}

	telemetry.ProfilesCreatedTotal.Inc()
	_ = h.cache.InvalidateListings(c.Request.Context())

	body := gin.H{"success": true, "data": profile}
	if len(leaked) > 0 {
		body["warnings"] = sensitiveFieldWarnings(leaked)
	}
	c.JSON(http.StatusCreated, body)
}

// List handles GET /api/profiles with ?sort=updated_at|name&limit&offset.
func (h *Handler) List(c *gin.Context) {
	sort := c.DefaultQuery("sort", "updated_at")
	if sort != "name" {
		sort = "updated_at"
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	key := cache.ListKey(sort, limit, offset)

	var payload listPayload
	if hit, _ := h.cache.GetJSON(ctx, key, &payload); hit {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": payload})
		return
	}

	list, total, err := h.store.List(ctx, sort, limit, offset)
	if err != nil {
		slog.Error("failed to list profiles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to list profiles",
		})
		return
	}

	payload = listPayload{
		Profiles: list,
		Meta:     listMeta{Sort: sort, Limit: limit, Offset: offset, Total: total},
	}
	_ = h.cache.SetJSON(ctx, key, payload)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": payload})
}

// Get handles GET /api/profiles/:slug.
func (h *Handler) Get(c *gin.Context) {
	slug := c.Param("slug")

	profile, err := h.store.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		slog.Error("failed to load profile", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to load profile",
		})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "profile not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": profile})
}

// Update handles PUT /api/profiles/:slug. The body passes through the same
// gatekeeper as creation; owner and claim state are untouchable here.
func (h *Handler) Update(c *gin.Context) {
	slug := c.Param("slug")

	leaked, input, ok := h.bindAndValidate(c)
	if !ok {
		return
	}

	profile := profileFromInput(input)
	ctx := c.Request.Context()

	changed, err := h.store.Update(ctx, slug, profile)
	if err != nil {
		slog.Error("failed to update profile", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to update profile",
		})
		return
	}
	if !changed {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "profile not found",
		})
		return
	}

	_ = h.cache.InvalidateListings(ctx)

	updated, err := h.store.GetBySlug(ctx, slug)
	if err != nil || updated == nil {
		// The update landed; report success even if the re-read failed.
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"slug": slug}})
		return
	}

	body := gin.H{"success": true, "data": updated}
	if len(leaked) > 0 {
		body["warnings"] = sensitiveFieldWarnings(leaked)
	}
	c.JSON(http.StatusOK, body)
}

// Delete handles DELETE /api/profiles/:slug (soft delete).
func (h *Handler) Delete(c *gin.Context) {
	slug := c.Param("slug")

	deleted, err := h.store.SoftDelete(c.Request.Context(), slug)
	if err != nil {
		slog.Error("failed to delete profile", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to delete profile",
		})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "profile not found",
		})
		return
	}

	_ = h.cache.InvalidateListings(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"slug": slug, "deleted": true}})
}

// bindAndValidate parses the request body as a raw configuration map, runs
// the sensitive-field detector, and applies the gatekeeper. On failure it
// writes the error response and returns ok=false.
func (h *Handler) bindAndValidate(c *gin.Context) ([]string, *gatekeeper.ProfileInput, bool) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "request body must be a JSON object",
		})
		return nil, nil, false
	}

	// Advisory only. The whitelist below guarantees these keys cannot reach
	// storage; the warning exists so the submitter notices the attempt.
	leaked := gatekeeper.DetectSensitiveFields(raw)
	if len(leaked) > 0 {
		slog.Warn("sensitive-looking field names in profile submission",
			"fields", leaked, "ip", c.ClientIP())
	}

	input, err := gatekeeper.ValidatePublicConfig(raw)
	if err != nil {
		var verr *gatekeeper.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "validation failed",
				"fields":  verr.Fields,
			})
			return nil, nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return nil, nil, false
	}

	return leaked, input, true
}

// profileFromInput maps validated gatekeeper output onto the storage model.
func profileFromInput(in *gatekeeper.ProfileInput) *models.PublicProfile {
	return &models.PublicProfile{
		Owner:          in.Owner,
		Name:           in.Name,
		Description:    in.Description,
		Avatar:         in.Avatar,
		ModelPrimary:   in.ModelPrimary,
		ModelFallbacks: in.ModelFallbacks,
		Harness:        in.Harness,
		Skills:         in.Skills,
		MCPs:           in.MCPs,
		CLIs:           in.CLIs,
		Version:        in.Version,
	}
}

func sensitiveFieldWarnings(fields []string) []string {
	warnings := make([]string, len(fields))
	for i, f := range fields {
		warnings[i] = "field " + strconv.Quote(f) + " looks sensitive and was discarded"
	}
	return warnings
}

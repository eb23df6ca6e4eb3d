// profile_repository.go implements ProfileRepository, providing all database
// access for public profiles: CRUD, slug lookup, listing, and the
// single-row-atomic claim state transitions used by the claim flow.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/botarena/botarena/internal/db/models"
)

// profileColumns is the canonical select list; scan order must match the
// struct tags on models.PublicProfile.
const profileColumns = `
	id, slug, owner, name, description, avatar_url,
	model_primary, model_fallbacks, harness, skills, mcps, clis, version,
	claim_gist_url, claim_verification_code, claim_github_handle,
	claim_expires_at, claimed_at,
	created_at, updated_at, delete_time`

// ProfileRepository handles database operations for public profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a new profile. The ID (which doubles as the public slug) is
// generated here; the caller's Owner is nil unless the create carried one.
func (r *ProfileRepository) Create(ctx context.Context, profile *models.PublicProfile) error {
	id := uuid.New().String()
	profile.ID = id
	profile.Slug = id

	query := `
		INSERT INTO profiles (id, slug, owner, name, description, avatar_url,
			model_primary, model_fallbacks, harness, skills, mcps, clis, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		profile.ID,
		profile.Slug,
		profile.Owner,
		profile.Name,
		profile.Description,
		profile.Avatar,
		profile.ModelPrimary,
		profile.ModelFallbacks,
		profile.Harness,
		profile.Skills,
		profile.MCPs,
		profile.CLIs,
		profile.Version,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetBySlug retrieves a live (not soft-deleted) profile by slug.
// Returns (nil, nil) when no such profile exists.
func (r *ProfileRepository) GetBySlug(ctx context.Context, slug string) (*models.PublicProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE slug = $1 AND delete_time IS NULL`

	profile := &models.PublicProfile{}
	err := r.db.GetContext(ctx, profile, query, slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// List returns live profiles ordered by the given sort key. sortKey must be
// one of "updated_at" (default, newest first) or "name" (ascending);
// anything else falls back to updated_at. The second return value is the
// total number of live profiles, for pagination.
func (r *ProfileRepository) List(ctx context.Context, sortKey string, limit, offset int) ([]*models.PublicProfile, int, error) {
	orderBy := "updated_at DESC"
	if sortKey == "name" {
		orderBy = "name ASC"
	}

	// orderBy is chosen from a fixed set above, never from user input.
	query := fmt.Sprintf(`SELECT %s FROM profiles WHERE delete_time IS NULL ORDER BY %s LIMIT $1 OFFSET $2`,
		profileColumns, orderBy)

	profiles := []*models.PublicProfile{}
	if err := r.db.SelectContext(ctx, &profiles, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM profiles WHERE delete_time IS NULL`); err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	return profiles, total, nil
}

// Update overwrites the mutable profile fields for a slug. Owner and the
// claim sub-state are deliberately not touchable through this path; those
// only move via the claim transitions below. Returns false when the slug
// does not reference a live profile.
func (r *ProfileRepository) Update(ctx context.Context, slug string, profile *models.PublicProfile) (bool, error) {
	query := `
		UPDATE profiles
		SET name = $2, description = $3, avatar_url = $4,
		    model_primary = $5, model_fallbacks = $6, harness = $7,
		    skills = $8, mcps = $9, clis = $10, version = $11,
		    updated_at = NOW()
		WHERE slug = $1 AND delete_time IS NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		slug,
		profile.Name,
		profile.Description,
		profile.Avatar,
		profile.ModelPrimary,
		profile.ModelFallbacks,
		profile.Harness,
		profile.Skills,
		profile.MCPs,
		profile.CLIs,
		profile.Version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update profile: %w", err)
	}
	return rowsChanged(result)
}

// SoftDelete marks a profile deleted by stamping delete_time. This is the
// only removal path for a claimed profile; rows are never hard-deleted.
func (r *ProfileRepository) SoftDelete(ctx context.Context, slug string) (bool, error) {
	query := `UPDATE profiles SET delete_time = NOW(), updated_at = NOW() WHERE slug = $1 AND delete_time IS NULL`
	result, err := r.db.ExecContext(ctx, query, slug)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete profile: %w", err)
	}
	return rowsChanged(result)
}

// SetPendingClaim writes a fresh pending claim onto the profile, overwriting
// any prior pending claim in the same single-row write. Returns false when
// the slug does not reference a live unclaimed profile.
func (r *ProfileRepository) SetPendingClaim(ctx context.Context, slug, gistURL, code, githubHandle string, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE profiles
		SET claim_gist_url = $2, claim_verification_code = $3,
		    claim_github_handle = $4, claim_expires_at = $5,
		    updated_at = NOW()
		WHERE slug = $1 AND owner IS NULL AND delete_time IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, slug, gistURL, code, githubHandle, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to set pending claim: %w", err)
	}
	return rowsChanged(result)
}

// FinalizeClaim atomically transitions the profile to claimed. The owner IS
// NULL guard makes the transition terminal: a concurrent verify that loses
// the race affects zero rows and reports false. Claim metadata is retained
// as an audit trail.
func (r *ProfileRepository) FinalizeClaim(ctx context.Context, slug, owner string, claimedAt time.Time) (bool, error) {
	query := `
		UPDATE profiles
		SET owner = $2, claimed_at = $3, updated_at = NOW()
		WHERE slug = $1 AND owner IS NULL AND delete_time IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, slug, owner, claimedAt)
	if err != nil {
		return false, fmt.Errorf("failed to finalize claim: %w", err)
	}
	return rowsChanged(result)
}

// ClearExpiredClaims removes pending-claim state whose expiry passed before
// the cutoff. Verification correctness never depends on this running, since
// the expiry check at verify time is authoritative; it only keeps long-dead
// claim rows from accumulating. Returns the number of rows cleared.
func (r *ProfileRepository) ClearExpiredClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE profiles
		SET claim_gist_url = NULL, claim_verification_code = NULL,
		    claim_github_handle = NULL, claim_expires_at = NULL
		WHERE owner IS NULL AND claim_verification_code IS NOT NULL
		  AND claim_expires_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired claims: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

func rowsChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

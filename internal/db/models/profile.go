// Package models - profile.go defines the PublicProfile model: the persisted,
// publicly visible record for an agent configuration, including the pending /
// completed claim sub-state used by the ownership-claim flow.
package models

import (
	"time"

	"github.com/lib/pq"
)

// PublicProfile represents a published agent profile.
//
// Invariants:
//   - Owner is nil until a claim verification succeeds; once set it never
//     changes (there is no transfer or un-claim path).
//   - The Claim* fields are either all nil (no claim ever initiated) or form
//     one consistent pending-or-completed claim. A fresh initiate overwrites
//     any prior pending claim wholesale.
//   - Slug equals the generated ID and never changes.
type PublicProfile struct {
	ID          string  `db:"id" json:"id"`
	Slug        string  `db:"slug" json:"slug"`
	Owner       *string `db:"owner" json:"owner"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description"`
	Avatar      *string `db:"avatar_url" json:"avatar,omitempty"`

	ModelPrimary   string         `db:"model_primary" json:"model_primary"`
	ModelFallbacks pq.StringArray `db:"model_fallbacks" json:"model_fallbacks"`
	Harness        string         `db:"harness" json:"harness"`
	Skills         pq.StringArray `db:"skills" json:"skills"`
	MCPs           pq.StringArray `db:"mcps" json:"mcps"`
	CLIs           pq.StringArray `db:"clis" json:"clis"`

	Version string `db:"version" json:"version"`

	// Claim sub-state. Retained after a successful verification as an audit
	// trail of how ownership was established.
	ClaimGistURL          *string    `db:"claim_gist_url" json:"claim_gist_url,omitempty"`
	ClaimVerificationCode *string    `db:"claim_verification_code" json:"-"`
	ClaimGithubHandle     *string    `db:"claim_github_handle" json:"claim_github_handle,omitempty"`
	ClaimExpiresAt        *time.Time `db:"claim_expires_at" json:"claim_expires_at,omitempty"`
	ClaimedAt             *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeleteTime *time.Time `db:"delete_time" json:"delete_time,omitempty"`
}

// IsClaimed reports whether ownership has been established.
func (p *PublicProfile) IsClaimed() bool {
	return p.Owner != nil
}

// HasPendingClaim reports whether an initiated claim is awaiting
// verification. Both the gist URL and the verification code must be present;
// a completed claim (Owner set) no longer counts as pending.
func (p *PublicProfile) HasPendingClaim() bool {
	return p.Owner == nil && p.ClaimGistURL != nil && p.ClaimVerificationCode != nil
}

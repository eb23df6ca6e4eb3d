// Package claims implements the ownership-claim verification protocol:
// proving that the caller controls a GitHub identity before that identity is
// allowed to take ownership of a profile.
//
// States per profile: UNCLAIMED → CLAIM_PENDING → CLAIMED (terminal).
//
//	InitiateClaim  generates a fresh high-entropy verification code and
//	               persists pending-claim state with an expiry.
//	VerifyClaim    fetches the gist's raw content out-of-band, checks the
//	               code is present verbatim, checks the gist's owning handle
//	               matches the caller, and atomically sets the owner.
//
// The protocol is proof-of-possession via side-channel publication, not a
// cryptographic signature: its security rests on code unguessability, on the
// gist raw URL serving content only its owner controls, and on the
// handle-to-URL binding. It is not OAuth-grade identity proof.
//
// Known limitation, accepted for a self-service flow against one's own
// profile: a verify racing a fresh initiate on the same slug is not mutually
// excluded beyond the storage layer's single-row atomic writes; the later
// initiate's code simply wins.
package claims

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/botarena/botarena/internal/db/models"
	"github.com/botarena/botarena/internal/telemetry"
)

// DefaultClaimTTL is the window between initiate and the last moment a
// verification can succeed.
const DefaultClaimTTL = 20 * time.Minute

// verificationCodeBytes is the entropy of a verification code. 24 bytes =
// 192 bits, comfortably beyond the 128-bit guessing-infeasibility floor.
const verificationCodeBytes = 24

// githubHandleRE mirrors GitHub's username rules: 1-39 alphanumerics with
// inner hyphens.
var githubHandleRE = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,37}[a-zA-Z0-9])?$`)

// ProfileStore is the slice of the repository the claim flow needs. Every
// check re-reads from storage; claim state is never cached across requests,
// so a stale code can never be accepted.
type ProfileStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.PublicProfile, error)
	SetPendingClaim(ctx context.Context, slug, gistURL, code, githubHandle string, expiresAt time.Time) (bool, error)
	FinalizeClaim(ctx context.Context, slug, owner string, claimedAt time.Time) (bool, error)
}

// Service drives claim state transitions.
type Service struct {
	profiles ProfileStore
	gists    GistFetcher
	ttl      time.Duration

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewService creates a claim service. A non-positive ttl falls back to
// DefaultClaimTTL.
func NewService(profiles ProfileStore, gists GistFetcher, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &Service{
		profiles: profiles,
		gists:    gists,
		ttl:      ttl,
		now:      time.Now,
	}
}

// InitiateResult is returned to the caller so the code can be published in
// the gist before verification.
type InitiateResult struct {
	VerificationCode string    `json:"verificationCode"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// VerifyResult reports a completed claim.
type VerifyResult struct {
	Owner     string    `json:"owner"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// InitiateClaim starts (or restarts) a claim for slug. Any prior pending
// claim for the profile is overwritten wholesale; two concurrent initiates
// race and the later single-row write wins, which is acceptable for a
// self-service flow.
func (s *Service) InitiateClaim(ctx context.Context, slug, gistURL, githubHandle string) (*InitiateResult, error) {
	if !githubHandleRE.MatchString(githubHandle) {
		return nil, ErrInvalidHandle
	}
	if _, _, err := ParseGistURL(gistURL); err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.IsClaimed() {
		return nil, ErrAlreadyClaimed
	}

	code, err := newVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("generating verification code: %w", err)
	}
	expiresAt := s.now().Add(s.ttl).UTC()

	ok, err := s.profiles.SetPendingClaim(ctx, slug, gistURL, code, githubHandle, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("persisting pending claim: %w", err)
	}
	if !ok {
		// The profile was claimed or deleted between the read and the write.
		return nil, ErrAlreadyClaimed
	}

	telemetry.ClaimsInitiatedTotal.Inc()
	slog.Info("claim initiated", "slug", slug, "handle", githubHandle, "expires_at", expiresAt)
	return &InitiateResult{VerificationCode: code, ExpiresAt: expiresAt}, nil
}

// GetClaimStatus reports whether a pending claim exists for slug. Read-only
// projection; no state transition.
func (s *Service) GetClaimStatus(ctx context.Context, slug string) (bool, error) {
	profile, err := s.profiles.GetBySlug(ctx, slug)
	if err != nil {
		return false, fmt.Errorf("loading profile: %w", err)
	}
	if profile == nil {
		return false, ErrProfileNotFound
	}
	return profile.HasPendingClaim(), nil
}

// VerifyClaim completes a pending claim for slug on behalf of githubHandle.
//
// Check order: pending claim present → not expired → gist content contains
// the code verbatim → gist's owning handle (from the URL path) matches the
// caller case-insensitively → atomic finalization. The expiry check runs
// before the network fetch so an expired claim fails fast without touching
// the gist host.
func (s *Service) VerifyClaim(ctx context.Context, slug, githubHandle string) (*VerifyResult, error) {
	if !githubHandleRE.MatchString(githubHandle) {
		return nil, ErrInvalidHandle
	}

	profile, err := s.profiles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, s.verifyFailed("internal", fmt.Errorf("loading profile: %w", err))
	}
	if profile == nil {
		return nil, s.verifyFailed("not_found", ErrProfileNotFound)
	}
	if profile.IsClaimed() {
		return nil, s.verifyFailed("already_claimed", ErrAlreadyClaimed)
	}
	if !profile.HasPendingClaim() {
		return nil, s.verifyFailed("no_pending_claim", ErrNoPendingClaim)
	}
	if profile.ClaimExpiresAt != nil && s.now().After(*profile.ClaimExpiresAt) {
		return nil, s.verifyFailed("expired", ErrClaimExpired)
	}

	content, err := s.gists.FetchRawContent(ctx, *profile.ClaimGistURL)
	if err != nil {
		reason := "gist_fetch"
		if errors.Is(err, ErrGistNotFound) {
			reason = "gist_not_found"
		}
		return nil, s.verifyFailed(reason, err)
	}

	if !strings.Contains(content, *profile.ClaimVerificationCode) {
		return nil, s.verifyFailed("code_not_found", ErrCodeNotFound)
	}

	// The gist URL was validated at initiate time, so the handle extraction
	// cannot fail here; the comparison defends against someone claiming
	// with a gist they do not own even if they learned the code.
	gistOwner, _, err := ParseGistURL(*profile.ClaimGistURL)
	if err != nil {
		return nil, s.verifyFailed("internal", err)
	}
	if !strings.EqualFold(gistOwner, githubHandle) {
		return nil, s.verifyFailed("handle_mismatch", ErrHandleMismatch)
	}

	claimedAt := s.now().UTC()
	ok, err := s.profiles.FinalizeClaim(ctx, slug, githubHandle, claimedAt)
	if err != nil {
		return nil, s.verifyFailed("internal", fmt.Errorf("finalizing claim: %w", err))
	}
	if !ok {
		// Lost a race against another verify.
		return nil, s.verifyFailed("already_claimed", ErrAlreadyClaimed)
	}

	telemetry.ClaimsVerifiedTotal.Inc()
	slog.Info("claim verified", "slug", slug, "owner", githubHandle)
	return &VerifyResult{Owner: githubHandle, ClaimedAt: claimedAt}, nil
}

func (s *Service) verifyFailed(reason string, err error) error {
	telemetry.ClaimVerifyFailuresTotal.WithLabelValues(reason).Inc()
	return err
}

// newVerificationCode returns a fresh random code, base64url-encoded without
// padding so it pastes cleanly into a gist.
func newVerificationCode() (string, error) {
	buf := make([]byte, verificationCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "botarena-claim-" + base64.RawURLEncoding.EncodeToString(buf), nil
}

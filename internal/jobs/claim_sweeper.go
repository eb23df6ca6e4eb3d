// claim_sweeper.go implements the ClaimSweeper background job, which
// periodically clears pending ownership claims whose verification window has
// lapsed. Clearing resets the claim columns so the profile returns to the
// unclaimed state and a new claim can be initiated. Expired claims are kept
// for a configurable grace period after expiry so the status endpoint can
// still report them as expired rather than silently vanishing.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/botarena/botarena/internal/telemetry"
)

// ExpiredClaimStore is the subset of the profile repository the sweeper needs.
type ExpiredClaimStore interface {
	ClearExpiredClaims(ctx context.Context, cutoff time.Time) (int64, error)
}

// ClaimSweeper periodically removes stale pending claims.
type ClaimSweeper struct {
	store    ExpiredClaimStore
	interval time.Duration
	grace    time.Duration
	stopChan chan struct{}

	now func() time.Time
}

// NewClaimSweeper creates a sweeper. interval controls how often the sweep
// runs; grace is how long an expired claim survives before being cleared.
func NewClaimSweeper(store ExpiredClaimStore, interval, grace time.Duration) *ClaimSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if grace < 0 {
		grace = 0
	}
	return &ClaimSweeper{
		store:    store,
		interval: interval,
		grace:    grace,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (s *ClaimSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("claim sweeper started", "interval", s.interval, "grace", s.grace)

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			slog.Info("claim sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("claim sweeper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (s *ClaimSweeper) Stop() {
	close(s.stopChan)
}

// sweep clears claims that expired more than the grace period ago.
func (s *ClaimSweeper) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.grace)

	cleared, err := s.store.ClearExpiredClaims(ctx, cutoff)
	if err != nil {
		slog.Error("claim sweeper: failed to clear expired claims", "error", err)
		return
	}
	if cleared > 0 {
		telemetry.ExpiredClaimsClearedTotal.Add(float64(cleared))
		slog.Info("claim sweeper: cleared expired claims", "count", cleared)
	}
}

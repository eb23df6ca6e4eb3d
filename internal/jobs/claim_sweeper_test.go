package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClaimStore records sweep calls and the cutoff each one was given.
type fakeClaimStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	cleared int64
	err     error
}

func (f *fakeClaimStore) ClearExpiredClaims(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.cleared, f.err
}

func (f *fakeClaimStore) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.cutoffs))
	copy(out, f.cutoffs)
	return out
}

// ---------------------------------------------------------------------------
// NewClaimSweeper construction and defaulting
// ---------------------------------------------------------------------------

func TestNewClaimSweeper_DefaultInterval(t *testing.T) {
	s := NewClaimSweeper(&fakeClaimStore{}, 0, time.Hour)
	if s.interval != time.Hour {
		t.Errorf("interval = %v, want 1h default", s.interval)
	}
}

func TestNewClaimSweeper_NegativeGraceClamped(t *testing.T) {
	s := NewClaimSweeper(&fakeClaimStore{}, time.Hour, -time.Minute)
	if s.grace != 0 {
		t.Errorf("grace = %v, want 0", s.grace)
	}
}

// ---------------------------------------------------------------------------
// sweep
// ---------------------------------------------------------------------------

func TestClaimSweeper_SweepUsesGraceCutoff(t *testing.T) {
	store := &fakeClaimStore{cleared: 2}
	grace := 24 * time.Hour
	s := NewClaimSweeper(store, time.Hour, grace)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.sweep(context.Background())

	calls := store.calls()
	if len(calls) != 1 {
		t.Fatalf("ClearExpiredClaims called %d times, want 1", len(calls))
	}
	want := fixed.Add(-grace)
	if !calls[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", calls[0], want)
	}
}

func TestClaimSweeper_SweepSurvivesStoreError(t *testing.T) {
	store := &fakeClaimStore{err: errors.New("db down")}
	s := NewClaimSweeper(store, time.Hour, 0)

	// Must not panic; the next tick should still call the store.
	s.sweep(context.Background())
	s.sweep(context.Background())

	if got := len(store.calls()); got != 2 {
		t.Errorf("ClearExpiredClaims called %d times, want 2", got)
	}
}

// ---------------------------------------------------------------------------
// Start / Stop lifecycle
// ---------------------------------------------------------------------------

func TestClaimSweeper_StartRunsImmediatelyAndStops(t *testing.T) {
	store := &fakeClaimStore{}
	s := NewClaimSweeper(store, time.Hour, 0)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	// The initial sweep runs before the first tick.
	deadline := time.After(time.Second)
	for len(store.calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("initial sweep never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestClaimSweeper_StartHonorsContextCancel(t *testing.T) {
	store := &fakeClaimStore{}
	s := NewClaimSweeper(store, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}

package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var profileCols = []string{
	"id", "slug", "owner", "name", "description", "avatar_url",
	"model_primary", "model_fallbacks", "harness", "skills", "mcps", "clis", "version",
	"claim_gist_url", "claim_verification_code", "claim_github_handle",
	"claim_expires_at", "claimed_at",
	"created_at", "updated_at", "delete_time",
}

var profileCreateCols = []string{"created_at", "updated_at"}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleProfileRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(profileCols).
		AddRow("p-1", "p-1", nil, "bot-one", "quote", nil,
			"openai/gpt-4o", "{}", "claude-code", "{code-review}", "{}", "{gh}", "1.0.0",
			nil, nil, nil, nil, nil,
			now, now, nil)
}

func pendingClaimProfileRow(code string, expiresAt time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(profileCols).
		AddRow("p-1", "p-1", nil, "bot-one", "quote", nil,
			"openai/gpt-4o", "{}", "claude-code", "{}", "{}", "{}", "1.0.0",
			"https://gist.github.com/alice/abc123", code, "alice", expiresAt, nil,
			now, now, nil)
}

func newProfileRepo(t *testing.T) (*ProfileRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return NewProfileRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

// ---------------------------------------------------------------------------
// GetBySlug
// ---------------------------------------------------------------------------

func TestGetBySlug_Found(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT.*FROM profiles.*WHERE slug").
		WithArgs("p-1").
		WillReturnRows(sampleProfileRow())

	p, err := repo.GetBySlug(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected profile, got nil")
	}
	if p.Slug != "p-1" {
		t.Errorf("Slug = %s, want p-1", p.Slug)
	}
	if p.Owner != nil {
		t.Errorf("Owner = %v, want nil", *p.Owner)
	}
	if len(p.Skills) != 1 || p.Skills[0] != "code-review" {
		t.Errorf("Skills = %v, want [code-review]", p.Skills)
	}
	if p.HasPendingClaim() {
		t.Error("fresh profile should not have a pending claim")
	}
}

func TestGetBySlug_NotFound(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT.*FROM profiles.*WHERE slug").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(profileCols))

	p, err := repo.GetBySlug(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestGetBySlug_PendingClaim(t *testing.T) {
	repo, mock := newProfileRepo(t)
	expires := time.Now().Add(20 * time.Minute)
	mock.ExpectQuery("SELECT.*FROM profiles.*WHERE slug").
		WithArgs("p-1").
		WillReturnRows(pendingClaimProfileRow("code-abc", expires))

	p, err := repo.GetBySlug(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.HasPendingClaim() {
		t.Error("expected pending claim")
	}
	if *p.ClaimVerificationCode != "code-abc" {
		t.Errorf("code = %s, want code-abc", *p.ClaimVerificationCode)
	}
}

// ---------------------------------------------------------------------------
// Claim transitions
// ---------------------------------------------------------------------------

func TestSetPendingClaim_Updates(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectExec("UPDATE profiles.*claim_gist_url").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SetPendingClaim(context.Background(), "p-1",
		"https://gist.github.com/alice/abc123", "code", "alice", time.Now().Add(20*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected a row to change")
	}
}

func TestSetPendingClaim_UnknownSlug(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectExec("UPDATE profiles.*claim_gist_url").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SetPendingClaim(context.Background(), "nope",
		"https://gist.github.com/alice/abc123", "code", "alice", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no rows to change")
	}
}

func TestFinalizeClaim_TerminalGuard(t *testing.T) {
	repo, mock := newProfileRepo(t)
	// An already-claimed profile matches zero rows because of the
	// owner IS NULL guard.
	mock.ExpectExec("UPDATE profiles.*SET owner").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.FinalizeClaim(context.Background(), "p-1", "bob", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("claimed profile must not be re-claimable")
	}
}

func TestClearExpiredClaims(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectExec("UPDATE profiles.*claim_expires_at <").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ClearExpiredClaims(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("cleared = %d, want 3", n)
	}
}

// ---------------------------------------------------------------------------
// Update / SoftDelete
// ---------------------------------------------------------------------------

func TestSoftDelete(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectExec("UPDATE profiles.*delete_time").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SoftDelete(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected a row to change")
	}
}

func TestList(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT.*FROM profiles.*ORDER BY updated_at DESC").
		WithArgs(10, 0).
		WillReturnRows(sampleProfileRow())
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	profiles, total, err := repo.List(context.Background(), "updated_at", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 1 || total != 1 {
		t.Errorf("got %d profiles (total %d), want 1/1", len(profiles), total)
	}
}

package repository

import (
	"context"
	"testing"
	"time"

	"clouddrive/internal/domain"
	"clouddrive/internal/testutils"
)

func TestAuthTokenRepositoryInvalidate(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	repo := NewAuthTokenRepository(db)
	ctx := context.Background()
	user := testutils.SetupUser(t, db, "alice")
	now := time.Now().UTC()

	for _, raw := range []string{"t1", "t2"} {
		err := repo.Create(ctx, &domain.AuthToken{
			Token:     raw,
			Type:      domain.TokenTypeEmailVerification,
			UserID:    user.ID,
			ExpiresAt: now.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("create %s: %v", raw, err)
		}
	}
	err := repo.Create(ctx, &domain.AuthToken{
		Token: "reset", Type: domain.TokenTypePasswordReset, UserID: user.ID, ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create reset: %v", err)
	}

	n, err := repo.Invalidate(ctx, user.ID, domain.TokenTypeEmailVerification, now)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	testutils.AssertEqual(t, n, int64(2), "invalidated tokens")

	active, err := repo.ListActive(ctx, user.ID, domain.TokenTypePasswordReset, now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	testutils.AssertEqual(t, len(active), 1, "reset tokens left untouched")
}

func TestAuthTokenRepositoryMarkUsedOnce(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	repo := NewAuthTokenRepository(db)
	ctx := context.Background()
	user := testutils.SetupUser(t, db, "alice")

	token := &domain.AuthToken{
		Token: "abc", Type: domain.TokenTypePasswordReset, UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.MarkUsed(ctx, token.ID, time.Now()); err != nil {
		t.Fatalf("first mark used: %v", err)
	}
	if err := repo.MarkUsed(ctx, token.ID, time.Now()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second use, got %v", err)
	}

	got, err := repo.GetByToken(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Used || got.UsedAt == nil {
		t.Fatalf("expected used token, got %+v", got)
	}
}

func TestAuthTokenRepositoryDeleteStale(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	repo := NewAuthTokenRepository(db)
	ctx := context.Background()
	user := testutils.SetupUser(t, db, "alice")
	now := time.Now().UTC()
	longAgo := now.Add(-48 * time.Hour)

	tokens := []*domain.AuthToken{
		{Token: "expired", Type: domain.TokenTypePasswordReset, UserID: user.ID, ExpiresAt: now.Add(-time.Minute)},
		{Token: "used-long-ago", Type: domain.TokenTypePasswordReset, UserID: user.ID, ExpiresAt: now.Add(time.Hour), Used: true, UsedAt: &longAgo},
		{Token: "active", Type: domain.TokenTypePasswordReset, UserID: user.ID, ExpiresAt: now.Add(time.Hour)},
	}
	for _, tok := range tokens {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("create %s: %v", tok.Token, err)
		}
	}

	n, err := repo.DeleteStale(ctx, now, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete stale: %v", err)
	}
	testutils.AssertEqual(t, n, int64(2), "deleted tokens")

	if _, err := repo.GetByToken(ctx, "active"); err != nil {
		t.Fatalf("active token should survive: %v", err)
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"clouddrive/internal/domain"
	"clouddrive/internal/testutils"
)

func signUp(t *testing.T, env *testEnv, username string) *domain.User {
	t.Helper()
	user, err := env.auth.SignUp(context.Background(), SignUpInput{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "password123",
		ConfirmPassword: "password123",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return user
}

func lastToken(t *testing.T, env *testEnv, event string) string {
	t.Helper()
	n, ok := env.notifier.Last(event)
	if !ok {
		t.Fatalf("no %s notification", event)
	}
	return testutils.TokenFromLink(t, n.Link)
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := signUp(t, env, "alice")
	token := lastToken(t, env, "verify_email")

	redirect, err := env.tokens.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	testutils.AssertEqual(t, redirect, "http://app.test/sign-in", "redirect")

	stored, err := env.repos.Users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.IsVerified() {
		t.Error("user should be verified")
	}

	_, err = env.tokens.VerifyEmail(ctx, token)
	testutils.AssertKind(t, err, domain.KindBadRequest)
	testutils.AssertEqual(t, domain.PublicMessage(err), "Token already used", "message")
}

func TestConsumeRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signUp(t, env, "alice")
	verifyToken := lastToken(t, env, "verify_email")

	if err := env.tokens.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatal(err)
	}
	resetToken := lastToken(t, env, "reset_password")

	_, err := env.tokens.VerifyEmail(ctx, "unknown")
	testutils.AssertEqual(t, domain.PublicMessage(err), "Invalid token", "unknown token")

	_, err = env.tokens.VerifyEmail(ctx, resetToken)
	testutils.AssertEqual(t, domain.PublicMessage(err), "Invalid token", "token of another type")

	err = env.tokens.ResetPassword(ctx, verifyToken, "newpassword", "newpassword")
	testutils.AssertEqual(t, domain.PublicMessage(err), "Invalid token", "verification token used for reset")

	env.tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = env.tokens.VerifyEmail(ctx, verifyToken)
	testutils.AssertKind(t, err, domain.KindBadRequest)
	testutils.AssertEqual(t, domain.PublicMessage(err), "Token expired", "expired token")
}

func TestIssueInvalidatesPreviousTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := signUp(t, env, "alice")
	first := lastToken(t, env, "verify_email")

	if err := env.tokens.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	second := lastToken(t, env, "verify_email")
	if first == second {
		t.Fatal("resend should issue a new token")
	}

	active, err := env.repos.Tokens.ListActive(ctx, user.ID, domain.TokenTypeEmailVerification, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	testutils.AssertEqual(t, len(active), 1, "active tokens")

	_, err = env.tokens.VerifyEmail(ctx, first)
	testutils.AssertKind(t, err, domain.KindBadRequest)

	if _, err := env.tokens.VerifyEmail(ctx, second); err != nil {
		t.Fatalf("VerifyEmail with latest token: %v", err)
	}

	err = env.tokens.ResendVerification(ctx, "alice@example.com")
	testutils.AssertEqual(t, domain.PublicMessage(err), "Email already verified.", "resend after verification")
}

func TestIssueKeepsOneLiveToken(t *testing.T) {
	testCases := []domain.AuthTokenType{
		domain.TokenTypeEmailVerification,
		domain.TokenTypePasswordReset,
	}

	for _, typ := range testCases {
		t.Run(string(typ), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			alice := testutils.SetupUser(t, env.db, "alice", testutils.Unverified())

			var last string
			for i := 0; i < 3; i++ {
				token, err := env.tokens.Issue(ctx, alice.ID, typ)
				if err != nil {
					t.Fatalf("Issue #%d: %v", i+1, err)
				}
				last = token

				active, err := env.repos.Tokens.ListActive(ctx, alice.ID, typ, time.Now())
				if err != nil {
					t.Fatal(err)
				}
				testutils.AssertEqual(t, len(active), 1, "live tokens after issue")
			}

			if typ == domain.TokenTypeEmailVerification {
				_, err := env.tokens.VerifyEmail(ctx, last)
				if err != nil {
					t.Fatalf("VerifyEmail: %v", err)
				}
			} else if err := env.tokens.ResetPassword(ctx, last, "newpassword", "newpassword"); err != nil {
				t.Fatalf("ResetPassword: %v", err)
			}

			active, err := env.repos.Tokens.ListActive(ctx, alice.ID, typ, time.Now())
			if err != nil {
				t.Fatal(err)
			}
			testutils.AssertEqual(t, len(active), 0, "live tokens after use")
		})
	}
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutils.SetupUser(t, env.db, "alice")

	if _, err := env.auth.SignIn(ctx, &alice); err != nil {
		t.Fatal(err)
	}

	testutils.AssertKind(t, env.tokens.ForgotPassword(ctx, "nobody@example.com"), domain.KindNotFound)

	if err := env.tokens.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	n, _ := env.notifier.Last("reset_password")
	token := testutils.TokenFromLink(t, n.Link)
	testutils.AssertEqual(t, n.Link, "http://app.test/reset-password?token="+token, "reset link")

	err := env.tokens.ResetPassword(ctx, token, "newpassword", "different")
	testutils.AssertKind(t, err, domain.KindValidation)

	if err := env.tokens.ResetPassword(ctx, token, "newpassword", "newpassword"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, err := env.auth.ValidateUser(ctx, "alice@example.com", "newpassword"); err != nil {
		t.Errorf("new password should be accepted: %v", err)
	}
	_, err = env.auth.ValidateUser(ctx, "alice@example.com", "password123")
	testutils.AssertKind(t, err, domain.KindBadRequest)

	stored, err := env.repos.Users.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.RefreshTokenHash != nil {
		t.Error("password reset should end existing sessions")
	}
	if _, ok := env.notifier.Last("password_changed"); !ok {
		t.Error("password changed notification was not sent")
	}

	err = env.tokens.ResetPassword(ctx, token, "another1", "another1")
	testutils.AssertEqual(t, domain.PublicMessage(err), "Token already used", "reused token")
}

func TestCleanupStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signUp(t, env, "alice")
	signUp(t, env, "bob")

	if _, err := env.tokens.VerifyEmail(ctx, lastToken(t, env, "verify_email")); err != nil {
		t.Fatal(err)
	}

	n, err := env.tokens.CleanupStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	testutils.AssertEqual(t, n, int64(0), "fresh tokens are kept")

	env.tokens.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = env.tokens.CleanupStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	testutils.AssertEqual(t, n, int64(2), "expired and old used tokens are removed")
}

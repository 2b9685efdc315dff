package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"clouddrive/internal/domain"
	"clouddrive/internal/testutils"
)

func TestSignUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.SignUp(ctx, SignUpInput{
		Username:        "alice",
		Email:           "  Alice@Example.com ",
		Password:        "password123",
		ConfirmPassword: "password123",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	testutils.AssertEqual(t, user.Email, "alice@example.com", "email")
	testutils.AssertEqual(t, user.Role, domain.RoleUser, "role")
	if user.IsVerified() {
		t.Error("new user should not be verified")
	}

	n := testutils.MustCount(t, env.db, `SELECT COUNT(*) FROM auth_tokens WHERE user_id = ? AND type = ?`,
		user.ID, domain.TokenTypeEmailVerification)
	testutils.AssertEqual(t, n, 1, "verification tokens")

	if _, ok := env.notifier.Last("welcome"); !ok {
		t.Error("welcome notification was not sent")
	}
	verify, ok := env.notifier.Last("verify_email")
	if !ok {
		t.Fatal("verification notification was not sent")
	}
	if !strings.HasPrefix(verify.Link, "http://api.test/auth/verify-email?token=") {
		t.Errorf("unexpected verification link %q", verify.Link)
	}
}

func TestSignUpRejects(t *testing.T) {
	env := newTestEnv(t)
	testutils.SetupUser(t, env.db, "taken")

	testCases := []struct {
		name  string
		input SignUpInput
		kind  domain.ErrorKind
		msg   string
	}{
		{
			name:  "duplicate email",
			input: SignUpInput{Username: "fresh", Email: "TAKEN@example.com", Password: "password123", ConfirmPassword: "password123"},
			kind:  domain.KindConflict,
			msg:   "Email already in use.",
		},
		{
			name:  "duplicate username",
			input: SignUpInput{Username: "taken", Email: "fresh@example.com", Password: "password123", ConfirmPassword: "password123"},
			kind:  domain.KindConflict,
			msg:   "Username already taken.",
		},
		{
			name:  "password mismatch",
			input: SignUpInput{Username: "fresh", Email: "fresh@example.com", Password: "password123", ConfirmPassword: "password124"},
			kind:  domain.KindValidation,
			msg:   "Passwords do not match.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.SignUp(context.Background(), tc.input)
			testutils.AssertKind(t, err, tc.kind)
			testutils.AssertEqual(t, domain.PublicMessage(err), tc.msg, "message")
		})
	}

	testutils.AssertEqual(t, testutils.MustCount(t, env.db, `SELECT COUNT(*) FROM users`), 1, "users")
}

func TestSignUpIgnoresNotificationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.Err = errors.New("smtp down")

	_, err := env.auth.SignUp(context.Background(), SignUpInput{
		Username: "bob", Email: "bob@example.com", Password: "password123", ConfirmPassword: "password123",
	})
	if err != nil {
		t.Fatalf("SignUp should succeed when notifications fail: %v", err)
	}
	testutils.AssertEqual(t, len(env.notifier.Calls()), 2, "notification attempts")
}

func TestValidateUser(t *testing.T) {
	env := newTestEnv(t)
	testutils.SetupUser(t, env.db, "alice")
	testutils.SetupUser(t, env.db, "pending", testutils.Unverified())

	testCases := []struct {
		name     string
		email    string
		password string
		kind     domain.ErrorKind
		ok       bool
	}{
		{name: "valid", email: "alice@example.com", password: "password123", ok: true},
		{name: "email is case insensitive", email: "ALICE@example.com", password: "password123", ok: true},
		{name: "unknown user", email: "nobody@example.com", password: "password123", kind: domain.KindBadRequest},
		{name: "wrong password", email: "alice@example.com", password: "wrong", kind: domain.KindBadRequest},
		{name: "unverified with wrong password", email: "pending@example.com", password: "wrong", kind: domain.KindBadRequest},
		{name: "unverified", email: "pending@example.com", password: "password123", kind: domain.KindForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			user, err := env.auth.ValidateUser(context.Background(), tc.email, tc.password)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				testutils.AssertEqual(t, user.Username, "alice", "username")
				return
			}
			testutils.AssertKind(t, err, tc.kind)
		})
	}
}

func TestSignInRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutils.SetupUser(t, env.db, "alice")

	pair, err := env.auth.SignIn(ctx, &alice)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	claims, err := env.jwt.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	testutils.AssertEqual(t, claims.Subject, alice.ID, "subject")

	stored, err := env.repos.Users.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.RefreshTokenHash == nil || *stored.RefreshTokenHash == pair.RefreshToken {
		t.Fatal("refresh token hash should be stored, not the token itself")
	}
	if stored.LastLoginAt == nil {
		t.Error("last login should be recorded")
	}

	rotated, err := env.auth.RefreshToken(ctx, alice.ID, pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Error("refresh should rotate the token")
	}

	_, err = env.auth.RefreshToken(ctx, alice.ID, pair.RefreshToken)
	testutils.AssertKind(t, err, domain.KindForbidden)

	if err := env.auth.Logout(ctx, alice.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err = env.auth.RefreshToken(ctx, alice.ID, rotated.RefreshToken)
	testutils.AssertKind(t, err, domain.KindForbidden)

	testutils.AssertKind(t, env.auth.Logout(ctx, "missing"), domain.KindNotFound)
	_, err = env.auth.RefreshToken(ctx, "missing", rotated.RefreshToken)
	testutils.AssertKind(t, err, domain.KindForbidden)
}

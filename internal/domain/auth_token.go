package domain

import "time"

type AuthTokenType string

const (
	TokenTypeEmailVerification AuthTokenType = "EMAIL_VERIFICATION"
	TokenTypePasswordReset     AuthTokenType = "PASSWORD_RESET"
)

// AuthToken - одноразовый токен подтверждения почты или сброса пароля.
type AuthToken struct {
	ID        string        `db:"id"`
	Token     string        `db:"token"`
	Type      AuthTokenType `db:"type"`
	UserID    string        `db:"user_id"`
	ExpiresAt time.Time     `db:"expires_at"`
	Used      bool          `db:"used"`
	UsedAt    *time.Time    `db:"used_at"`
	CreatedAt time.Time     `db:"created_at"`
}

func (t *AuthToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

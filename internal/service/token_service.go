package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"clouddrive/internal/domain"
	"clouddrive/internal/encryption"
	"clouddrive/internal/logs"
	"clouddrive/internal/notify"
	"clouddrive/internal/repository"
)

const (
	tokenBytes = 32
	// usedTokenRetention - сколько хранить использованные токены.
	usedTokenRetention = 24 * time.Hour
)

type TokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	AppURL          string
	FrontendURL     string
}

// TokenService выпускает и погашает одноразовые токены подтверждения
// почты и сброса пароля.
type TokenService struct {
	repos    *repository.Repositories
	hasher   *encryption.Service
	notifier notify.Notifier
	cfg      TokenConfig
	now      func() time.Time
}

func NewTokenService(
	repos *repository.Repositories,
	hasher *encryption.Service,
	notifier notify.Notifier,
	cfg TokenConfig,
) *TokenService {
	return &TokenService{
		repos:    repos,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *TokenService) ttl(typ domain.AuthTokenType) time.Duration {
	if typ == domain.TokenTypePasswordReset {
		return s.cfg.ResetTTL
	}
	return s.cfg.VerificationTTL
}

func (s *TokenService) VerificationLink(token string) string {
	return strings.TrimRight(s.cfg.AppURL, "/") + "/auth/verify-email?token=" + token
}

func (s *TokenService) ResetLink(token string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/reset-password?token=" + token
}

func (s *TokenService) SignInURL() string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/sign-in"
}

// issue гасит прежние активные токены и создает новый. Вызывается внутри транзакции.
func (s *TokenService) issue(ctx context.Context, tokens *repository.AuthTokenRepository, userID string, typ domain.AuthTokenType) (string, error) {
	now := s.now().UTC()
	if _, err := tokens.Invalidate(ctx, userID, typ, now); err != nil {
		return "", err
	}

	raw, err := encryption.RandomToken(tokenBytes)
	if err != nil {
		return "", err
	}

	err = tokens.Create(ctx, &domain.AuthToken{
		Token:     raw,
		Type:      typ,
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl(typ)),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// Issue выпускает новый токен; у пользователя остается только он один активный.
func (s *TokenService) Issue(ctx context.Context, userID string, typ domain.AuthTokenType) (string, error) {
	var raw string
	err := s.repos.Tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		raw, err = s.issue(ctx, s.repos.Tokens.WithTx(tx), userID, typ)
		return err
	})
	if err != nil {
		return "", domain.Internal("failed to issue token", err)
	}
	return raw, nil
}

// consume проверяет токен и в одной транзакции помечает его использованным
// и применяет apply.
func (s *TokenService) consume(
	ctx context.Context,
	raw string,
	typ domain.AuthTokenType,
	apply func(ctx context.Context, tx *sqlx.Tx, t *domain.AuthToken) error,
) error {
	if raw == "" {
		return domain.BadRequest("Invalid token")
	}

	t, err := s.repos.Tokens.GetByToken(ctx, raw)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.BadRequest("Invalid token")
		}
		return domain.Internal("failed to load token", err)
	}

	now := s.now().UTC()
	switch {
	case t.Type != typ:
		return domain.BadRequest("Invalid token")
	case t.Used:
		return domain.BadRequest("Token already used")
	case t.Expired(now):
		return domain.BadRequest("Token expired")
	}

	err = s.repos.Tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repos.Tokens.WithTx(tx).MarkUsed(ctx, t.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.BadRequest("Token already used")
			}
			return err
		}
		return apply(ctx, tx, t)
	})
	return domain.Wrap(err, "failed to consume token")
}

// VerifyEmail подтверждает почту и возвращает адрес страницы входа.
func (s *TokenService) VerifyEmail(ctx context.Context, raw string) (string, error) {
	err := s.consume(ctx, raw, domain.TokenTypeEmailVerification, func(ctx context.Context, tx *sqlx.Tx, t *domain.AuthToken) error {
		return s.repos.Users.WithTx(tx).MarkVerified(ctx, t.UserID, s.now())
	})
	if err != nil {
		return "", err
	}
	return s.SignInURL(), nil
}

// ResetPassword меняет пароль по токену сброса и завершает все сессии.
func (s *TokenService) ResetPassword(ctx context.Context, raw, password, confirmPassword string) error {
	if password != confirmPassword {
		return domain.Validation("Passwords do not match.")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.Internal("failed to hash password", err)
	}

	var user *domain.User
	err = s.consume(ctx, raw, domain.TokenTypePasswordReset, func(ctx context.Context, tx *sqlx.Tx, t *domain.AuthToken) error {
		users := s.repos.Users.WithTx(tx)
		if err := users.UpdatePassword(ctx, t.UserID, hash); err != nil {
			return err
		}
		var err error
		user, err = users.GetByID(ctx, t.UserID)
		return err
	})
	if err != nil {
		return err
	}

	sendNotification(ctx, "password_changed", func(ctx context.Context) error {
		return s.notifier.PasswordChanged(ctx, user.Email, user.Username)
	})
	return nil
}

func (s *TokenService) userByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.repos.Users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(msgUserNotFound)
		}
		return nil, domain.Internal("failed to load user", err)
	}
	return user, nil
}

// ForgotPassword отправляет ссылку для сброса пароля.
func (s *TokenService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}

	raw, err := s.Issue(ctx, user.ID, domain.TokenTypePasswordReset)
	if err != nil {
		return err
	}

	sendNotification(ctx, "reset_password", func(ctx context.Context) error {
		return s.notifier.ResetPassword(ctx, user.Email, user.Username, s.ResetLink(raw))
	})
	return nil
}

// ResendVerification выпускает новый токен подтверждения почты.
func (s *TokenService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified() {
		return domain.BadRequest("Email already verified.")
	}

	raw, err := s.Issue(ctx, user.ID, domain.TokenTypeEmailVerification)
	if err != nil {
		return err
	}

	sendNotification(ctx, "verify_email", func(ctx context.Context) error {
		return s.notifier.VerifyEmail(ctx, user.Email, user.Username, s.VerificationLink(raw))
	})
	return nil
}

// CleanupStale удаляет просроченные и давно использованные токены.
func (s *TokenService) CleanupStale(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.repos.Tokens.DeleteStale(ctx, now, now.Add(-usedTokenRetention))
	if err != nil {
		return 0, domain.Internal("failed to clean up tokens", err)
	}
	if n > 0 {
		logs.Logger.WithField("deleted", n).Info("removed stale auth tokens")
	}
	return n, nil
}

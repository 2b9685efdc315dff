package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"clouddrive/internal/auth"
	"clouddrive/internal/domain"
	"clouddrive/internal/encryption"
	"clouddrive/internal/notify"
	"clouddrive/internal/repository"
)

type SignUpInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// AuthService отвечает за регистрацию, вход и обновление токенов.
type AuthService struct {
	repos    *repository.Repositories
	tokens   *TokenService
	hasher   *encryption.Service
	jwt      *auth.TokenManager
	notifier notify.Notifier
	now      func() time.Time
}

func NewAuthService(
	repos *repository.Repositories,
	tokens *TokenService,
	hasher *encryption.Service,
	jwt *auth.TokenManager,
	notifier notify.Notifier,
) *AuthService {
	return &AuthService{
		repos:    repos,
		tokens:   tokens,
		hasher:   hasher,
		jwt:      jwt,
		notifier: notifier,
		now:      time.Now,
	}
}

// SignUp создает пользователя и токен подтверждения почты в одной транзакции,
// затем отправляет приветственное письмо и ссылку подтверждения.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*domain.User, error) {
	if in.Password != in.ConfirmPassword {
		return nil, domain.Validation("Passwords do not match.")
	}

	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	if _, err := s.repos.Users.GetByEmail(ctx, email); err == nil {
		return nil, domain.Conflict("Email already in use.")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal("failed to check email", err)
	}

	if _, err := s.repos.Users.GetByUsername(ctx, username); err == nil {
		return nil, domain.Conflict("Username already taken.")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal("failed to check username", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, domain.Internal("failed to hash password", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}

	var token string
	err = s.repos.Tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repos.Users.WithTx(tx).Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return domain.Conflict("Email or username already in use.")
			}
			return err
		}
		var err error
		token, err = s.tokens.issue(ctx, s.repos.Tokens.WithTx(tx), user.ID, domain.TokenTypeEmailVerification)
		return err
	})
	if err != nil {
		return nil, domain.Wrap(err, "failed to create user")
	}

	sendNotification(ctx, "welcome", func(ctx context.Context) error {
		return s.notifier.Welcome(ctx, user.Email, user.Username)
	})
	sendNotification(ctx, "verify_email", func(ctx context.Context) error {
		return s.notifier.VerifyEmail(ctx, user.Email, user.Username, s.tokens.VerificationLink(token))
	})

	return user, nil
}

// ValidateUser проверяет почту и пароль. Статус подтверждения проверяется
// после пароля, чтобы не раскрывать его посторонним.
func (s *AuthService) ValidateUser(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.repos.Users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.BadRequest("User does not exist.")
		}
		return nil, domain.Internal("failed to load user", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, domain.BadRequest("Password does not match.")
	}

	if !user.IsVerified() {
		return nil, domain.Forbidden("User email is not verified.")
	}
	return user, nil
}

// SignIn выпускает пару токенов и сохраняет хеш refresh-токена.
func (s *AuthService) SignIn(ctx context.Context, user *domain.User) (auth.TokenPair, error) {
	pair, err := s.jwt.IssuePair(user.ID, user.Email)
	if err != nil {
		return auth.TokenPair{}, domain.Internal("failed to issue tokens", err)
	}

	hash, err := s.hasher.HashSecret(pair.RefreshToken)
	if err != nil {
		return auth.TokenPair{}, domain.Internal("failed to hash refresh token", err)
	}

	if err := s.repos.Users.RecordLogin(ctx, user.ID, hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.TokenPair{}, domain.NotFound(msgUserNotFound)
		}
		return auth.TokenPair{}, domain.Internal("failed to record login", err)
	}
	return pair, nil
}

// RefreshToken меняет действующий refresh-токен на новую пару.
func (s *AuthService) RefreshToken(ctx context.Context, userID, presented string) (auth.TokenPair, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.TokenPair{}, domain.Forbidden("Access denied.")
		}
		return auth.TokenPair{}, domain.Internal("failed to load user", err)
	}

	if user.RefreshTokenHash == nil || !s.hasher.VerifySecret(*user.RefreshTokenHash, presented) {
		return auth.TokenPair{}, domain.Forbidden("Access denied.")
	}
	return s.SignIn(ctx, user)
}

// Logout стирает сохраненный refresh-токен.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.repos.Users.SetRefreshToken(ctx, userID, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound(msgUserNotFound)
		}
		return domain.Internal("failed to log out", err)
	}
	return nil
}

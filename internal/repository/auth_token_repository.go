package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clouddrive/internal/domain"
)

const tokenColumns = `id, token, type, user_id, expires_at, used, used_at, created_at`

type AuthTokenRepository struct {
	db DBTX
}

func NewAuthTokenRepository(db DBTX) *AuthTokenRepository {
	return &AuthTokenRepository{db: db}
}

func (r *AuthTokenRepository) WithTx(tx DBTX) *AuthTokenRepository {
	return &AuthTokenRepository{db: tx}
}

func (r *AuthTokenRepository) Create(ctx context.Context, token *domain.AuthToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO auth_tokens (id, token, type, user_id, expires_at, used, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.Token, token.Type, token.UserID, token.ExpiresAt.UTC(),
		token.Used, token.UsedAt, token.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create auth token: %w", err)
	}
	return nil
}

func (r *AuthTokenRepository) GetByToken(ctx context.Context, token string) (*domain.AuthToken, error) {
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM auth_tokens WHERE token = ?`, tokenColumns))

	var t domain.AuthToken
	if err := r.db.GetContext(ctx, &t, query, token); err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}
	return &t, nil
}

// ListActive возвращает неиспользованные и непросроченные токены пользователя.
func (r *AuthTokenRepository) ListActive(ctx context.Context, userID string, typ domain.AuthTokenType, now time.Time) ([]domain.AuthToken, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s FROM auth_tokens
		WHERE user_id = ? AND type = ? AND used = FALSE AND expires_at > ?
		ORDER BY created_at ASC`, tokenColumns))

	tokens := []domain.AuthToken{}
	if err := r.db.SelectContext(ctx, &tokens, query, userID, typ, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}
	return tokens, nil
}

// Invalidate помечает все активные токены пользователя данного типа использованными.
func (r *AuthTokenRepository) Invalidate(ctx context.Context, userID string, typ domain.AuthTokenType, now time.Time) (int64, error) {
	query := r.db.Rebind(`
		UPDATE auth_tokens SET used = TRUE, used_at = ?
		WHERE user_id = ? AND type = ? AND used = FALSE AND expires_at > ?`)
	res, err := r.db.ExecContext(ctx, query, now.UTC(), userID, typ, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// MarkUsed помечает токен использованным. ErrNotFound означает, что токен
// уже был использован кем-то еще.
func (r *AuthTokenRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE auth_tokens SET used = TRUE, used_at = ? WHERE id = ? AND used = FALSE`)
	res, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	return checkAffected(res)
}

// DeleteStale удаляет просроченные токены и токены, использованные раньше usedBefore.
func (r *AuthTokenRepository) DeleteStale(ctx context.Context, now, usedBefore time.Time) (int64, error) {
	query := r.db.Rebind(`
		DELETE FROM auth_tokens
		WHERE expires_at < ? OR (used = TRUE AND used_at IS NOT NULL AND used_at < ?)`)
	res, err := r.db.ExecContext(ctx, query, now.UTC(), usedBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

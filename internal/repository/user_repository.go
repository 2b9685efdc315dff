package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clouddrive/internal/domain"
)

const userColumns = `id, username, email, password_hash, role, verified_at,
	last_login_at, refresh_token_hash, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx DBTX) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	query := r.db.Rebind(`
		INSERT INTO users (id, username, email, password_hash, role, verified_at,
			last_login_at, refresh_token_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.VerifiedAt,
		user.LastLoginAt, user.RefreshTokenHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*domain.User, error) {
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM users WHERE %s = ?`, userColumns, column))

	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, value); err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	query := r.db.Rebind(fmt.Sprintf(
		`SELECT %s FROM users ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`, userColumns))

	users := []domain.User{}
	if err := r.db.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// SetRefreshToken сохраняет хеш refresh-токена; nil стирает его.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id string, hash *string) error {
	query := r.db.Rebind(`UPDATE users SET refresh_token_hash = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, hash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	return checkAffected(res)
}

// RecordLogin сохраняет хеш нового refresh-токена и время входа.
func (r *UserRepository) RecordLogin(ctx context.Context, id, refreshHash string, at time.Time) error {
	query := r.db.Rebind(`
		UPDATE users SET refresh_token_hash = ?, last_login_at = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, refreshHash, at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return checkAffected(res)
}

func (r *UserRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE users SET verified_at = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	return checkAffected(res)
}

// UpdatePassword меняет хеш пароля и разлогинивает пользователя.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := r.db.Rebind(`
		UPDATE users SET password_hash = ?, refresh_token_hash = NULL, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return checkAffected(res)
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	query := r.db.Rebind(`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, role, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return checkAffected(res)
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clouddrive/internal/domain"
)

const permissionColumns = `id, user_id, drive_item_id, permission, created_at, updated_at`

type PermissionRepository struct {
	db DBTX
}

func NewPermissionRepository(db DBTX) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) WithTx(tx DBTX) *PermissionRepository {
	return &PermissionRepository{db: tx}
}

func (r *PermissionRepository) Create(ctx context.Context, p *domain.DriveItemPermission) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := r.db.Rebind(`
		INSERT INTO drive_item_permissions (id, user_id, drive_item_id, permission, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, p.ID, p.UserID, p.DriveItemID, p.Permission, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

func (r *PermissionRepository) Get(ctx context.Context, userID, itemID string) (*domain.DriveItemPermission, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s FROM drive_item_permissions WHERE user_id = ? AND drive_item_id = ?`, permissionColumns))

	var p domain.DriveItemPermission
	if err := r.db.GetContext(ctx, &p, query, userID, itemID); err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}

func (r *PermissionRepository) Delete(ctx context.Context, userID, itemID string) error {
	query := r.db.Rebind(`DELETE FROM drive_item_permissions WHERE user_id = ? AND drive_item_id = ?`)
	res, err := r.db.ExecContext(ctx, query, userID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return checkAffected(res)
}

func (r *PermissionRepository) DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	query, args, err := in(r.db, `DELETE FROM drive_item_permissions WHERE drive_item_id IN (?)`, itemIDs)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete permissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// Levels возвращает уровни доступа пользователя к любому из элементов itemIDs.
func (r *PermissionRepository) Levels(ctx context.Context, userID string, itemIDs []string) ([]domain.PermissionLevel, error) {
	levels := []domain.PermissionLevel{}
	if len(itemIDs) == 0 {
		return levels, nil
	}
	query, args, err := in(r.db,
		`SELECT permission FROM drive_item_permissions WHERE user_id = ? AND drive_item_id IN (?)`,
		userID, itemIDs)
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &levels, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get permission levels: %w", err)
	}
	return levels, nil
}

type permissionRow struct {
	domain.DriveItemPermission
	Username string `db:"username"`
	Email    string `db:"email"`
}

// ListByItem возвращает выданные на элемент права вместе с данными пользователей.
func (r *PermissionRepository) ListByItem(ctx context.Context, itemID string) ([]domain.DriveItemPermission, error) {
	query := r.db.Rebind(`
		SELECT p.id, p.user_id, p.drive_item_id, p.permission, p.created_at, p.updated_at,
			u.username, u.email
		FROM drive_item_permissions p
		JOIN users u ON u.id = p.user_id
		WHERE p.drive_item_id = ?
		ORDER BY p.created_at ASC`)

	rows := []permissionRow{}
	if err := r.db.SelectContext(ctx, &rows, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	perms := make([]domain.DriveItemPermission, 0, len(rows))
	for _, row := range rows {
		p := row.DriveItemPermission
		p.User = &domain.PublicUser{ID: p.UserID, Username: row.Username, Email: row.Email}
		perms = append(perms, p)
	}
	return perms, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clouddrive/internal/domain"
)

const itemColumns = `id, name, type, owner_id, parent_id, mime_type, size, url,
	deleted_at, created_at, updated_at`

// subtreeCTE выбирает элемент и всех его потомков одного владельца.
const subtreeCTE = `
	WITH RECURSIVE subtree (id) AS (
		SELECT id FROM drive_items WHERE id = ? AND owner_id = ?
		UNION
		SELECT d.id FROM drive_items d
		JOIN subtree s ON d.parent_id = s.id
		WHERE d.owner_id = ?
	)`

// ancestorsCTE выбирает элемент и всю цепочку его родителей.
const ancestorsCTE = `
	WITH RECURSIVE ancestors (id, parent_id) AS (
		SELECT id, parent_id FROM drive_items WHERE id = ?
		UNION
		SELECT d.id, d.parent_id FROM drive_items d
		JOIN ancestors a ON d.id = a.parent_id
	)`

type DriveItemRepository struct {
	db DBTX
}

func NewDriveItemRepository(db DBTX) *DriveItemRepository {
	return &DriveItemRepository{db: db}
}

func (r *DriveItemRepository) WithTx(tx DBTX) *DriveItemRepository {
	return &DriveItemRepository{db: tx}
}

func (r *DriveItemRepository) Create(ctx context.Context, item *domain.DriveItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	query := r.db.Rebind(`
		INSERT INTO drive_items (id, name, type, owner_id, parent_id, mime_type, size, url,
			deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.Name, item.Type, item.OwnerID, item.ParentID, item.MimeType, item.Size,
		item.URL, item.DeletedAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create drive item: %w", err)
	}
	return nil
}

// GetByID возвращает элемент без проверки владельца.
func (r *DriveItemRepository) GetByID(ctx context.Context, id string) (*domain.DriveItem, error) {
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM drive_items WHERE id = ?`, itemColumns))
	return r.get(ctx, query, id)
}

func (r *DriveItemRepository) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*domain.DriveItem, error) {
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM drive_items WHERE id = ? AND owner_id = ?`, itemColumns))
	return r.get(ctx, query, id, ownerID)
}

func (r *DriveItemRepository) get(ctx context.Context, query string, args ...interface{}) (*domain.DriveItem, error) {
	var item domain.DriveItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get drive item: %w", err)
	}
	return &item, nil
}

func (r *DriveItemRepository) selectItems(ctx context.Context, query string, args ...interface{}) ([]domain.DriveItem, error) {
	items := []domain.DriveItem{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list drive items: %w", err)
	}
	return items, nil
}

// ListRoot возвращает корневые элементы владельца, которые не в корзине.
func (r *DriveItemRepository) ListRoot(ctx context.Context, ownerID string) ([]domain.DriveItem, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s FROM drive_items
		WHERE owner_id = ? AND parent_id IS NULL AND deleted_at IS NULL
		ORDER BY type DESC, name ASC`, itemColumns))
	return r.selectItems(ctx, query, ownerID)
}

func (r *DriveItemRepository) ListTrash(ctx context.Context, ownerID string) ([]domain.DriveItem, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s FROM drive_items
		WHERE owner_id = ? AND deleted_at IS NOT NULL
		ORDER BY deleted_at DESC, name ASC`, itemColumns))
	return r.selectItems(ctx, query, ownerID)
}

func (r *DriveItemRepository) ListChildren(ctx context.Context, parentID string) ([]domain.DriveItem, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s FROM drive_items WHERE parent_id = ?
		ORDER BY type DESC, name ASC`, itemColumns))
	return r.selectItems(ctx, query, parentID)
}

// ChildrenOf группирует непосредственных детей по parent_id.
func (r *DriveItemRepository) ChildrenOf(ctx context.Context, parentIDs []string) (map[string][]domain.DriveItem, error) {
	out := make(map[string][]domain.DriveItem, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}

	query, args, err := in(r.db, fmt.Sprintf(`
		SELECT %s FROM drive_items WHERE parent_id IN (?)
		ORDER BY type DESC, name ASC`, itemColumns), parentIDs)
	if err != nil {
		return nil, err
	}
	items, err := r.selectItems(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[*item.ParentID] = append(out[*item.ParentID], item)
	}
	return out, nil
}

// Subtree возвращает элемент и всех его потомков, включая тех, что в корзине.
func (r *DriveItemRepository) Subtree(ctx context.Context, id, ownerID string) ([]domain.DriveItem, error) {
	query := r.db.Rebind(fmt.Sprintf(`%s
		SELECT %s FROM drive_items WHERE id IN (SELECT id FROM subtree)
		ORDER BY created_at ASC`, subtreeCTE, itemColumns))
	return r.selectItems(ctx, query, id, ownerID, ownerID)
}

// AncestorIDs возвращает id самого элемента и всех его предков.
func (r *DriveItemRepository) AncestorIDs(ctx context.Context, id string) ([]string, error) {
	query := r.db.Rebind(ancestorsCTE + ` SELECT id FROM ancestors`)

	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("failed to get ancestors: %w", err)
	}
	return ids, nil
}

// Update сохраняет имя и родителя элемента.
func (r *DriveItemRepository) Update(ctx context.Context, item *domain.DriveItem) error {
	item.UpdatedAt = time.Now().UTC()
	query := r.db.Rebind(`UPDATE drive_items SET name = ?, parent_id = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, item.Name, item.ParentID, item.UpdatedAt, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update drive item: %w", err)
	}
	return checkAffected(res)
}

// SetDeletedAt помещает элемент в корзину или, при nil, восстанавливает его.
func (r *DriveItemRepository) SetDeletedAt(ctx context.Context, id string, at *time.Time) error {
	var deletedAt interface{}
	if at != nil {
		deletedAt = at.UTC()
	}
	query := r.db.Rebind(`UPDATE drive_items SET deleted_at = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, deletedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update deleted_at: %w", err)
	}
	return checkAffected(res)
}

func (r *DriveItemRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := in(r.db, `DELETE FROM drive_items WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete drive items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// ListTrashedBefore возвращает элементы, удаленные в корзину раньше before.
func (r *DriveItemRepository) ListTrashedBefore(ctx context.Context, before time.Time) ([]domain.DriveItem, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s FROM drive_items
		WHERE deleted_at IS NOT NULL AND deleted_at < ?
		ORDER BY deleted_at ASC`, itemColumns))
	return r.selectItems(ctx, query, before.UTC())
}

type sharedItemRow struct {
	domain.SharedItem
	OwnerUsername string `db:"owner_username"`
	OwnerEmail    string `db:"owner_email"`
}

// ListSharedWith возвращает элементы, к которым пользователю выдан прямой доступ.
func (r *DriveItemRepository) ListSharedWith(ctx context.Context, userID string) ([]domain.SharedItem, error) {
	query := r.db.Rebind(`
		SELECT d.id, d.name, d.type, d.owner_id, d.parent_id, d.mime_type, d.size, d.url,
			d.deleted_at, d.created_at, d.updated_at, p.permission,
			u.username AS owner_username, u.email AS owner_email
		FROM drive_item_permissions p
		JOIN drive_items d ON d.id = p.drive_item_id
		JOIN users u ON u.id = d.owner_id
		WHERE p.user_id = ? AND d.deleted_at IS NULL
		ORDER BY d.name ASC`)

	rows := []sharedItemRow{}
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list shared items: %w", err)
	}

	items := make([]domain.SharedItem, 0, len(rows))
	for _, row := range rows {
		item := row.SharedItem
		item.Owner = domain.PublicUser{ID: item.OwnerID, Username: row.OwnerUsername, Email: row.OwnerEmail}
		items = append(items, item)
	}
	return items, nil
}

package service

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
)

// PermissionService выдает доступ к элементам и вычисляет итоговые права.
type PermissionService struct {
	repos *repository.Repositories
}

func NewPermissionService(repos *repository.Repositories) *PermissionService {
	return &PermissionService{repos: repos}
}

// Effective возвращает уровень доступа userID к item. Владелец имеет полный
// доступ, остальные получают максимальный уровень, выданный на сам элемент
// или любую папку выше него.
func (s *PermissionService) Effective(ctx context.Context, userID string, item *domain.DriveItem) (domain.Access, error) {
	if item.OwnerID == userID {
		return domain.AccessOwner, nil
	}

	ids, err := s.repos.Items.AncestorIDs(ctx, item.ID)
	if err != nil {
		return domain.AccessNone, err
	}
	levels, err := s.repos.Permissions.Levels(ctx, userID, ids)
	if err != nil {
		return domain.AccessNone, err
	}

	access := domain.AccessNone
	for _, level := range levels {
		if a := level.Access(); a > access {
			access = a
		}
	}
	return access, nil
}

// Authorize загружает элемент и проверяет доступ userID. Без доступа элемент
// неотличим от несуществующего.
func (s *PermissionService) Authorize(ctx context.Context, id, userID string) (*domain.DriveItem, domain.Access, error) {
	item, err := s.repos.Items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.AccessNone, domain.NotFound(msgItemNotFound)
		}
		return nil, domain.AccessNone, domain.Internal("failed to load drive item", err)
	}

	access, err := s.Effective(ctx, userID, item)
	if err != nil {
		return nil, domain.AccessNone, domain.Internal("failed to resolve permissions", err)
	}
	if access == domain.AccessNone {
		return nil, domain.AccessNone, domain.NotFound(msgItemNotFound)
	}
	return item, access, nil
}

// Grant выдает targetUserID доступ level к элементу владельца ownerID.
// Другой уровень заменяет прежний.
func (s *PermissionService) Grant(ctx context.Context, ownerID, itemID, targetUserID string, level domain.PermissionLevel) (*domain.DriveItemPermission, error) {
	if !level.Valid() {
		return nil, domain.Validation("permission must be one of READ, WRITE")
	}

	item, err := ownedItem(ctx, s.repos.Items, itemID, ownerID)
	if err != nil {
		return nil, err
	}
	if targetUserID == item.OwnerID {
		return nil, domain.BadRequest("Cannot share an item with its owner.")
	}

	target, err := s.repos.Users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(msgUserNotFound)
		}
		return nil, domain.Internal("failed to load user", err)
	}

	existing, err := s.repos.Permissions.Get(ctx, target.ID, item.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal("failed to load permission", err)
	}
	if existing != nil && existing.Permission == level {
		return nil, domain.Conflict("User already has the requested permission.")
	}

	p := &domain.DriveItemPermission{UserID: target.ID, DriveItemID: item.ID, Permission: level}
	err = s.repos.Tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		perms := s.repos.Permissions.WithTx(tx)
		if existing != nil {
			if err := perms.Delete(ctx, target.ID, item.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		if err := perms.Create(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return domain.Conflict("User already has the requested permission.")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(err, "failed to grant permission")
	}

	p.User = &domain.PublicUser{ID: target.ID, Username: target.Username, Email: target.Email}
	return p, nil
}

// Revoke отзывает доступ targetUserID.
func (s *PermissionService) Revoke(ctx context.Context, ownerID, itemID, targetUserID string) error {
	item, err := ownedItem(ctx, s.repos.Items, itemID, ownerID)
	if err != nil {
		return err
	}

	if err := s.repos.Permissions.Delete(ctx, targetUserID, item.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound("Permission not found.")
		}
		return domain.Internal("failed to revoke permission", err)
	}
	return nil
}

// ListUsersWithAccess возвращает выданные на элемент права.
func (s *PermissionService) ListUsersWithAccess(ctx context.Context, ownerID, itemID string) ([]domain.DriveItemPermission, error) {
	item, err := ownedItem(ctx, s.repos.Items, itemID, ownerID)
	if err != nil {
		return nil, err
	}

	perms, err := s.repos.Permissions.ListByItem(ctx, item.ID)
	if err != nil {
		return nil, domain.Internal("failed to list permissions", err)
	}
	return perms, nil
}

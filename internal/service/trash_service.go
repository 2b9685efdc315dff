package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"clouddrive/internal/domain"
	"clouddrive/internal/logs"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

// Trash помещает элемент в корзину. Повторный вызов обновляет метку.
func (s *DriveItemService) Trash(ctx context.Context, id, ownerID string) (*domain.DriveItem, error) {
	item, err := ownedItem(ctx, s.repos.Items, id, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repos.Items.SetDeletedAt(ctx, item.ID, &now); err != nil {
		return nil, domain.Internal("failed to move item to trash", err)
	}
	item.DeletedAt = &now
	return item, nil
}

func (s *DriveItemService) Restore(ctx context.Context, id, ownerID string) (*domain.DriveItem, error) {
	item, err := ownedItem(ctx, s.repos.Items, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !item.IsTrashed() {
		return nil, domain.Forbidden("File is not in the trash.")
	}

	if err := s.repos.Items.SetDeletedAt(ctx, item.ID, nil); err != nil {
		return nil, domain.Internal("failed to restore item", err)
	}
	item.DeletedAt = nil
	return item, nil
}

// PermanentDelete удаляет элемент из корзины вместе со всем поддеревом.
func (s *DriveItemService) PermanentDelete(ctx context.Context, id, ownerID string) error {
	item, err := ownedItem(ctx, s.repos.Items, id, ownerID)
	if err != nil {
		return err
	}
	if !item.IsTrashed() {
		return domain.Forbidden("File is not in the trash.")
	}

	if _, err := s.purge(ctx, item); err != nil {
		return domain.Internal("failed to delete item", err)
	}
	return nil
}

// purge удаляет строки поддерева и права на них одной транзакцией, затем
// убирает объекты из хранилища. Ошибки хранилища только логируются.
func (s *DriveItemService) purge(ctx context.Context, item *domain.DriveItem) ([]string, error) {
	subtree, err := s.repos.Items.Subtree(ctx, item.ID, item.OwnerID)
	if err != nil {
		return nil, err
	}
	if len(subtree) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(subtree))
	for _, d := range subtree {
		ids = append(ids, d.ID)
	}

	err = s.repos.Tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.repos.Permissions.WithTx(tx).DeleteByItemIDs(ctx, ids); err != nil {
			return err
		}
		_, err := s.repos.Items.WithTx(tx).DeleteByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := logs.WithComponent("drive")
	for _, d := range subtree {
		if !d.IsFile() {
			continue
		}
		keys := []string{d.StorageKey()}
		for _, w := range thumbnailWidths {
			keys = append(keys, storage.PreviewKey(d.ID, w))
		}
		for _, key := range keys {
			if key == "" {
				continue
			}
			if err := s.store.Delete(ctx, key); err != nil {
				log.WithError(err).WithFields(logrus.Fields{"item_id": d.ID, "key": key}).
					Warn("failed to delete object from storage")
			}
		}
	}
	return ids, nil
}

// PurgeExpiredTrash окончательно удаляет элементы, пролежавшие в корзине
// дольше retention. Нулевой retention отключает очистку.
func (s *DriveItemService) PurgeExpiredTrash(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	expired, err := s.repos.Items.ListTrashedBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, domain.Internal("failed to list expired trash", err)
	}

	removed := make(map[string]bool)
	for i := range expired {
		item := &expired[i]
		if removed[item.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return len(removed), err
		}

		ids, err := s.purge(ctx, item)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return len(removed), domain.Internal("failed to purge trash", err)
		}
		for _, id := range ids {
			removed[id] = true
		}
	}
	return len(removed), nil
}

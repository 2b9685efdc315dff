package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"clouddrive/internal/domain"
	"clouddrive/internal/logs"
	"clouddrive/internal/repository"
)

const (
	msgItemNotFound = "Drive item not found."
	msgUserNotFound = "User not found."
	notifyTimeout   = 5 * time.Second
	maxNameLength   = 255
)

// sendNotification вызывает fn вне жизненного цикла запроса. Ошибка
// только логируется: письма не должны ломать основной сценарий.
func sendNotification(ctx context.Context, event string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logs.Logger.WithError(err).WithField("event", event).Warn("failed to send notification")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateName проверяет имя файла или папки.
func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", domain.Validation("name should not be empty")
	case len(name) > maxNameLength:
		return "", domain.Validation("name must be at most 255 characters")
	case name == "." || name == "..":
		return "", domain.Validation("name is not allowed")
	case strings.ContainsAny(name, `/\`):
		return "", domain.Validation("name must not contain slashes")
	}
	return name, nil
}

// ownedItem возвращает элемент, только если им владеет ownerID.
func ownedItem(ctx context.Context, items *repository.DriveItemRepository, id, ownerID string) (*domain.DriveItem, error) {
	item, err := items.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(msgItemNotFound)
		}
		return nil, domain.Internal("failed to load drive item", err)
	}
	return item, nil
}

// validateParent проверяет, что parentID может быть родителем элемента
// movingID (пусто для нового элемента) владельца ownerID.
func validateParent(ctx context.Context, items *repository.DriveItemRepository, ownerID, parentID, movingID string) (*domain.DriveItem, error) {
	parent, err := items.GetByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.BadRequest("Parent folder not found.")
		}
		return nil, domain.Internal("failed to load parent folder", err)
	}
	if parent.OwnerID != ownerID {
		return nil, domain.BadRequest("Parent folder not found.")
	}
	if !parent.IsFolder() {
		return nil, domain.BadRequest("Parent must be a folder.")
	}
	if parent.IsTrashed() {
		return nil, domain.BadRequest("Parent folder is in the trash.")
	}

	if movingID != "" {
		// Родитель не может быть самим элементом или его потомком
		ancestors, err := items.AncestorIDs(ctx, parent.ID)
		if err != nil {
			return nil, domain.Internal("failed to check folder hierarchy", err)
		}
		for _, id := range ancestors {
			if id == movingID {
				return nil, domain.BadRequest("Cannot move an item into itself or one of its descendants.")
			}
		}
	}
	return parent, nil
}

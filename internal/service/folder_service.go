package service

import (
	"context"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
)

type FolderService struct {
	items *repository.DriveItemRepository
}

func NewFolderService(items *repository.DriveItemRepository) *FolderService {
	return &FolderService{items: items}
}

// Create создает папку в корне или внутри parentID.
func (s *FolderService) Create(ctx context.Context, ownerID, name string, parentID *string) (*domain.DriveItem, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		if _, err := validateParent(ctx, s.items, ownerID, *parentID, ""); err != nil {
			return nil, err
		}
	}

	folder := &domain.DriveItem{
		Name:     name,
		Type:     domain.DriveItemFolder,
		OwnerID:  ownerID,
		ParentID: parentID,
	}
	if err := s.items.Create(ctx, folder); err != nil {
		return nil, domain.Internal("failed to create folder", err)
	}
	return folder, nil
}

package service

import (
	"context"
	"errors"
	"io"
	"time"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

// DriveItemService работает с деревом файлов и папок: списки, просмотр,
// изменение, корзина и скачивание.
type DriveItemService struct {
	repos *repository.Repositories
	perms *PermissionService
	store storage.Storage
	now   func() time.Time
}

func NewDriveItemService(repos *repository.Repositories, perms *PermissionService, store storage.Storage) *DriveItemService {
	return &DriveItemService{
		repos: repos,
		perms: perms,
		store: store,
		now:   time.Now,
	}
}

// UpdateInput - частичное изменение элемента. При MoveParent элемент
// переносится в ParentID, а nil означает корень.
type UpdateInput struct {
	Name       *string
	MoveParent bool
	ParentID   *string
}

// Download - содержимое для отдачи клиенту: файл из хранилища или
// zip-архив папки, который пишется по мере обхода дерева.
type Download struct {
	Filename    string
	ContentType string
	// Size равен -1, если размер заранее неизвестен.
	Size    int64
	ModTime time.Time
	Inline  bool

	content io.ReadCloser
	archive func(ctx context.Context, w io.Writer) error
}

// Content возвращает поток файла или nil для архива. Для локального
// хранилища поток реализует io.ReadSeeker.
func (d *Download) Content() io.Reader {
	if d.content == nil {
		return nil
	}
	return d.content
}

func (d *Download) Stream(ctx context.Context, w io.Writer) error {
	if d.archive != nil {
		return d.archive(ctx, w)
	}
	_, err := io.Copy(w, d.content)
	return err
}

func (d *Download) Close() error {
	if d.content != nil {
		return d.content.Close()
	}
	return nil
}

// withChildren добавляет к элементам их непосредственных детей не из корзины.
func (s *DriveItemService) withChildren(ctx context.Context, items []domain.DriveItem) ([]domain.DriveItem, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsFolder() {
			ids = append(ids, item.ID)
		}
	}

	children, err := s.repos.Items.ChildrenOf(ctx, ids)
	if err != nil {
		return nil, domain.Internal("failed to load children", err)
	}
	for i := range items {
		items[i].Children = activeOnly(children[items[i].ID])
	}
	return items, nil
}

func activeOnly(items []domain.DriveItem) []domain.DriveItem {
	out := make([]domain.DriveItem, 0, len(items))
	for _, item := range items {
		if !item.IsTrashed() {
			out = append(out, item)
		}
	}
	return out
}

func (s *DriveItemService) ListRoot(ctx context.Context, ownerID string) ([]domain.DriveItem, error) {
	items, err := s.repos.Items.ListRoot(ctx, ownerID)
	if err != nil {
		return nil, domain.Internal("failed to list drive items", err)
	}
	return s.withChildren(ctx, items)
}

func (s *DriveItemService) ListTrash(ctx context.Context, ownerID string) ([]domain.DriveItem, error) {
	items, err := s.repos.Items.ListTrash(ctx, ownerID)
	if err != nil {
		return nil, domain.Internal("failed to list trash", err)
	}
	return s.withChildren(ctx, items)
}

// ListShared возвращает элементы, которыми с пользователем поделились напрямую.
func (s *DriveItemService) ListShared(ctx context.Context, userID string) ([]domain.SharedItem, error) {
	items, err := s.repos.Items.ListSharedWith(ctx, userID)
	if err != nil {
		return nil, domain.Internal("failed to list shared items", err)
	}
	return items, nil
}

// Detail возвращает элемент с родителем и детьми. Родитель показывается,
// только если пользователь имеет к нему доступ.
func (s *DriveItemService) Detail(ctx context.Context, id, userID string) (*domain.DriveItem, error) {
	item, _, err := s.perms.Authorize(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if item.ParentID != nil {
		parent, err := s.repos.Items.GetByID(ctx, *item.ParentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Internal("failed to load parent", err)
		}
		if parent != nil {
			access, err := s.perms.Effective(ctx, userID, parent)
			if err != nil {
				return nil, domain.Internal("failed to resolve permissions", err)
			}
			if access > domain.AccessNone {
				item.Parent = parent
			}
		}
	}

	if item.IsFolder() {
		children, err := s.repos.Items.ListChildren(ctx, item.ID)
		if err != nil {
			return nil, domain.Internal("failed to load children", err)
		}
		item.Children = activeOnly(children)
	}
	return item, nil
}

// Update переименовывает и/или перемещает элемент. Нужен доступ WRITE.
func (s *DriveItemService) Update(ctx context.Context, id, userID string, in UpdateInput) (*domain.DriveItem, error) {
	item, access, err := s.perms.Authorize(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if item.IsTrashed() {
		return nil, domain.Forbidden("Cannot update a deleted file")
	}
	if access < domain.AccessWrite {
		return nil, domain.Forbidden("You do not have permission to update this item.")
	}

	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return nil, err
		}
		item.Name = name
	}

	if in.MoveParent {
		if in.ParentID == nil {
			item.ParentID = nil
		} else {
			parent, err := validateParent(ctx, s.repos.Items, item.OwnerID, *in.ParentID, item.ID)
			if err != nil {
				return nil, err
			}
			item.ParentID = &parent.ID
		}
	}

	if err := s.repos.Items.Update(ctx, item); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(msgItemNotFound)
		}
		return nil, domain.Internal("failed to update drive item", err)
	}
	return item, nil
}

// Download отдает файл или zip-архив папки. Нужен доступ READ.
func (s *DriveItemService) Download(ctx context.Context, id, userID string) (*Download, error) {
	item, _, err := s.perms.Authorize(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if item.IsFolder() {
		return &Download{
			Filename:    item.Name + ".zip",
			ContentType: "application/zip",
			Size:        -1,
			ModTime:     item.UpdatedAt,
			archive: func(ctx context.Context, w io.Writer) error {
				return s.writeArchive(ctx, item, w)
			},
		}, nil
	}
	return openItem(ctx, s.store, item)
}

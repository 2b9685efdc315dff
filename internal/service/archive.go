package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"clouddrive/internal/domain"
	"clouddrive/internal/logs"
	"clouddrive/internal/storage"
)

// writeArchive пишет в w zip-архив содержимого папки root. Пути в архиве
// относительны root, пустые папки хранятся как "dir/", элементы из корзины
// пропускаются вместе с их потомками.
func (s *DriveItemService) writeArchive(ctx context.Context, root *domain.DriveItem, w io.Writer) error {
	subtree, err := s.repos.Items.Subtree(ctx, root.ID, root.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to load folder tree: %w", err)
	}

	children := make(map[string][]domain.DriveItem)
	for _, d := range subtree {
		if d.ParentID != nil && d.ID != root.ID {
			children[*d.ParentID] = append(children[*d.ParentID], d)
		}
	}

	zw := zip.NewWriter(w)
	if err := s.archiveDir(ctx, zw, children, root.ID, ""); err != nil {
		return err
	}
	return zw.Close()
}

func (s *DriveItemService) archiveDir(ctx context.Context, zw *zip.Writer, children map[string][]domain.DriveItem, dirID, prefix string) error {
	used := make(map[string]int)
	for i := range children[dirID] {
		item := &children[dirID][i]
		if item.IsTrashed() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := path.Join(prefix, uniqueName(used, item.Name))
		if item.IsFolder() {
			if _, err := zw.CreateHeader(&zip.FileHeader{
				Name:     name + "/",
				Method:   zip.Store,
				Modified: item.UpdatedAt,
			}); err != nil {
				return fmt.Errorf("failed to add folder %q: %w", name, err)
			}
			if err := s.archiveDir(ctx, zw, children, item.ID, name); err != nil {
				return err
			}
			continue
		}

		if err := s.archiveFile(ctx, zw, item, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *DriveItemService) archiveFile(ctx context.Context, zw *zip.Writer, item *domain.DriveItem, name string) error {
	obj, err := s.store.Open(ctx, item.StorageKey())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			logs.Logger.WithField("item_id", item.ID).Warn("skipping file missing from storage")
			return nil
		}
		return fmt.Errorf("failed to open %q: %w", name, err)
	}
	defer obj.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: item.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to add file %q: %w", name, err)
	}
	if _, err := io.Copy(fw, obj); err != nil {
		return fmt.Errorf("failed to write file %q: %w", name, err)
	}
	return nil
}

// uniqueName добавляет суффикс " (n)" к повторяющимся в одной папке именам.
func uniqueName(used map[string]int, name string) string {
	key := strings.ToLower(name)
	n := used[key]
	used[key] = n + 1
	if n == 0 {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if used[strings.ToLower(candidate)] == 0 {
			used[strings.ToLower(candidate)] = 1
			return candidate
		}
		n++
	}
}

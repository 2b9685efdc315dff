package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"clouddrive/internal/domain"
	"clouddrive/internal/logs"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

const (
	// maxThumbnailSource - предел размера исходного изображения для миниатюры.
	maxThumbnailSource = 32 << 20
	defaultContentType = "application/octet-stream"
	// maxMimeLength совпадает с размером колонки mime_type.
	maxMimeLength = 255
)

// activeContentTypes исполняются браузером, поэтому inline отдаются как текст.
var activeContentTypes = map[string]bool{
	"text/html":             true,
	"text/xml":              true,
	"text/javascript":       true,
	"application/xhtml+xml": true,
	"application/xml":       true,
	"image/svg+xml":         true,
}

// thumbnailWidths - допустимые ширины миниатюр. Запрошенная ширина
// округляется вверх до ближайшей из них.
var thumbnailWidths = []int{64, 128, 256, 512, 1024}

// Thumbnailer уменьшает изображение до ширины width и кодирует его в JPEG.
type Thumbnailer interface {
	Thumbnail(data []byte, width int) ([]byte, error)
}

// VideoThumbnailer берет кадр из видео и кодирует его в JPEG шириной width.
type VideoThumbnailer interface {
	VideoFrame(ctx context.Context, src io.Reader, width int) ([]byte, error)
}

type FileService struct {
	repos     *repository.Repositories
	perms     *PermissionService
	store     storage.Storage
	thumbs    Thumbnailer
	frames    VideoThumbnailer
	maxUpload int64
}

// NewFileService создает сервис файлов. thumbs может быть nil, тогда
// параметр width у превью игнорируется. Если thumbs умеет VideoFrame,
// миниатюры строятся и для видео.
func NewFileService(repos *repository.Repositories, perms *PermissionService, store storage.Storage, thumbs Thumbnailer, maxUpload int64) *FileService {
	s := &FileService{
		repos:     repos,
		perms:     perms,
		store:     store,
		thumbs:    thumbs,
		maxUpload: maxUpload,
	}
	if frames, ok := thumbs.(VideoThumbnailer); ok {
		s.frames = frames
	}
	return s
}

type UploadInput struct {
	OwnerID     string
	ParentID    *string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Upload потоково сохраняет файл в хранилище и создает запись о нем. Если
// запись создать не удалось, объект удаляется.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*domain.DriveItem, error) {
	name, err := validateName(path.Base(strings.ReplaceAll(in.Filename, `\`, "/")))
	if err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		if _, err := validateParent(ctx, s.repos.Items, in.OwnerID, *in.ParentID, ""); err != nil {
			return nil, err
		}
	}

	contentType := detectContentType(name, in.ContentType)
	key := storage.NewKey(in.OwnerID, name)
	log := logs.WithComponent("files").WithField("key", key)

	body := &io.LimitedReader{R: in.Body, N: s.maxUpload + 1}
	size, err := s.store.Save(ctx, key, body, contentType)
	if err != nil {
		s.discard(key)
		return nil, domain.Internal("failed to store file", err)
	}
	if size > s.maxUpload {
		s.discard(key)
		return nil, domain.Validation(fmt.Sprintf("File exceeds the maximum upload size of %d bytes.", s.maxUpload))
	}

	item := &domain.DriveItem{
		Name:     name,
		Type:     domain.DriveItemFile,
		OwnerID:  in.OwnerID,
		ParentID: in.ParentID,
		MimeType: &contentType,
		Size:     &size,
		URL:      &key,
	}
	if err := s.repos.Items.Create(ctx, item); err != nil {
		s.discard(key)
		return nil, domain.Internal("failed to create file record", err)
	}

	log.WithField("size", size).Info("file uploaded")
	return item, nil
}

// discard удаляет объект, даже если контекст запроса уже отменен.
func (s *FileService) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, key); err != nil {
		logs.Logger.WithError(err).WithField("key", key).Warn("failed to remove orphaned object")
	}
}

// detectContentType берет заявленный клиентом тип, если он разбирается и
// помещается в колонку, иначе тип по расширению.
func detectContentType(name, declared string) string {
	if mt, params, err := mime.ParseMediaType(strings.TrimSpace(declared)); err == nil && strings.Contains(mt, "/") && mt != defaultContentType {
		if full := mime.FormatMediaType(mt, params); full != "" && len(full) <= maxMimeLength {
			return full
		}
		if len(mt) <= maxMimeLength {
			return mt
		}
	}
	if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
		return byExt
	}
	return defaultContentType
}

// inlineContentType заменяет активные типы на text/plain, чтобы превью
// не исполнялось в браузере.
func inlineContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || activeContentTypes[mt] {
		return "text/plain; charset=utf-8"
	}
	return contentType
}

// FileDetail возвращает файл. Для папки ответ такой же, как для
// несуществующего файла.
func (s *FileService) FileDetail(ctx context.Context, id, userID string) (*domain.DriveItem, error) {
	item, _, err := s.perms.Authorize(ctx, id, userID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NotFound("File not found.")
		}
		return nil, err
	}
	if !item.IsFile() {
		return nil, domain.NotFound("File not found.")
	}
	return item, nil
}

// Preview отдает файл для встроенного просмотра. Для изображений и видео
// с width > 0 возвращается JPEG-миниатюра, закешированная в хранилище.
func (s *FileService) Preview(ctx context.Context, id, userID string, width int) (*Download, error) {
	item, err := s.FileDetail(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !item.Previewable() {
		return nil, domain.Forbidden("Preview not allowed for this file type.")
	}

	if width > 0 {
		if render := s.renderer(item.Mime()); render != nil {
			if d, ok := s.thumbnail(ctx, item, snapWidth(width), render); ok {
				return d, nil
			}
		}
	}

	d, err := openItem(ctx, s.store, item)
	if err != nil {
		return nil, err
	}
	d.Inline = true
	d.ContentType = inlineContentType(d.ContentType)
	return d, nil
}

type renderFunc func(ctx context.Context, src io.Reader, width int) ([]byte, error)

// renderer выбирает способ построения миниатюры по типу файла. nil
// означает, что миниатюра не строится.
func (s *FileService) renderer(mimeType string) renderFunc {
	mt, _, _ := mime.ParseMediaType(mimeType)
	switch {
	case mt == "image/svg+xml":
		return nil
	case strings.HasPrefix(mt, "image/") && s.thumbs != nil:
		return s.renderImage
	case strings.HasPrefix(mt, "video/") && s.frames != nil:
		return s.frames.VideoFrame
	}
	return nil
}

func (s *FileService) renderImage(_ context.Context, src io.Reader, width int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, maxThumbnailSource+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxThumbnailSource {
		return nil, fmt.Errorf("image exceeds %d bytes", maxThumbnailSource)
	}
	return s.thumbs.Thumbnail(data, width)
}

// thumbnail ищет миниатюру в кеше или строит ее. При ошибке вызывающий
// отдает оригинал.
func (s *FileService) thumbnail(ctx context.Context, item *domain.DriveItem, width int, render renderFunc) (*Download, bool) {
	key := storage.PreviewKey(item.ID, width)
	log := logs.WithComponent("preview").WithFields(logrus.Fields{"item_id": item.ID, "width": width})

	d := &Download{
		Filename:    strings.TrimSuffix(item.Name, path.Ext(item.Name)) + ".jpg",
		ContentType: "image/jpeg",
		ModTime:     item.UpdatedAt,
		Inline:      true,
	}

	if cached, err := s.store.Open(ctx, key); err == nil {
		d.Size = cached.ContentLength()
		d.content = cached
		return d, true
	} else if !errors.Is(err, storage.ErrObjectNotFound) {
		log.WithError(err).Warn("failed to read cached thumbnail")
	}

	src, err := s.store.Open(ctx, item.StorageKey())
	if err != nil {
		log.WithError(err).Warn("failed to open file for thumbnail")
		return nil, false
	}
	thumb, err := render(ctx, src, width)
	src.Close()
	if err != nil {
		log.WithError(err).Warn("failed to generate thumbnail")
		return nil, false
	}
	if _, err := s.store.Save(ctx, key, bytes.NewReader(thumb), "image/jpeg"); err != nil {
		log.WithError(err).Warn("failed to cache thumbnail")
	}

	d.Size = int64(len(thumb))
	d.content = memoryObject{bytes.NewReader(thumb)}
	return d, true
}

func snapWidth(width int) int {
	for _, w := range thumbnailWidths {
		if width <= w {
			return w
		}
	}
	return thumbnailWidths[len(thumbnailWidths)-1]
}

// memoryObject - поток из памяти с поддержкой Seek.
type memoryObject struct {
	*bytes.Reader
}

func (memoryObject) Close() error { return nil }

func openItem(ctx context.Context, store storage.Storage, item *domain.DriveItem) (*Download, error) {
	obj, err := store.Open(ctx, item.StorageKey())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			logs.Logger.WithField("item_id", item.ID).Warn("file content is missing from storage")
			return nil, domain.NotFound("File content not found.")
		}
		return nil, domain.Internal("failed to open file", err)
	}

	contentType := item.Mime()
	if contentType == "" {
		contentType = defaultContentType
	}
	size := obj.ContentLength()
	if size < 0 && item.Size != nil {
		size = *item.Size
	}
	return &Download{
		Filename:    item.Name,
		ContentType: contentType,
		Size:        size,
		ModTime:     item.UpdatedAt,
		content:     obj,
	}, nil
}

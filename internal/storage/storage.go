// Package storage хранит содержимое файлов: на локальном диске или в S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("object not found")

// Object - открытый на чтение объект хранилища. Реализации для локального
// диска дополнительно поддерживают io.Seeker.
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// Storage определяет интерфейс для работы с хранилищем файлов.
type Storage interface {
	// Save потоково записывает r под ключом key и возвращает число записанных байт.
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (Object, error)
	// Delete не считает ошибкой отсутствие объекта.
	Delete(ctx context.Context, key string) error
}

// NewKey строит ключ вида user-<ownerID>/<uuid><ext>.
func NewKey(ownerID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return fmt.Sprintf("user-%s/%s%s", ownerID, uuid.NewString(), ext)
}

// PreviewKey - ключ закешированной миниатюры.
func PreviewKey(itemID string, width int) string {
	return fmt.Sprintf("previews/%s_w%d.jpg", itemID, width)
}

type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 { return o.contentLength }

func (o *object) ContentType() string { return o.contentType }

// countingReader считает прочитанные байты.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

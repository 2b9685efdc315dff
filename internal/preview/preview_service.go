// Package preview строит миниатюры изображений через libvips (bimg) и
// кадры из видео через ffmpeg (goffmpeg).
package preview

import (
	"fmt"

	"github.com/h2non/bimg"
)

const (
	jpegQuality = 85
	// maxSourcePixels ограничивает размер исходного изображения.
	maxSourcePixels = 50_000_000
)

type Service struct {
	quality int
}

// NewService создает генератор миниатюр.
func NewService() *Service {
	return &Service{quality: jpegQuality}
}

// Thumbnail уменьшает изображение до ширины width с сохранением пропорций
// и кодирует результат в JPEG. Изображения уже нужной ширины не
// увеличиваются.
func (s *Service) Thumbnail(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid thumbnail width %d", width)
	}

	image := bimg.NewImage(data)
	size, err := image.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to get image size: %w", err)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", size.Width, size.Height)
	}
	if size.Width*size.Height > maxSourcePixels {
		return nil, fmt.Errorf("image is too large: %dx%d", size.Width, size.Height)
	}

	newWidth, newHeight := scaleToWidth(size.Width, size.Height, width)

	processed, err := image.Process(bimg.Options{
		Width:   newWidth,
		Height:  newHeight,
		Quality: s.quality,
		Type:    bimg.JPEG,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return processed, nil
}

// scaleToWidth вычисляет размеры с сохранением пропорций
func scaleToWidth(width, height, maxWidth int) (newWidth, newHeight int) {
	if width <= maxWidth {
		return width, height
	}
	newWidth = maxWidth
	newHeight = height * maxWidth / width
	if newHeight < 1 {
		newHeight = 1
	}
	return newWidth, newHeight
}

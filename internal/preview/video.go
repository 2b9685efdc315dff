package preview

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xfrr/goffmpeg/transcoder"

	"clouddrive/internal/logs"
)

const (
	// frameOffsetRatio - позиция кадра относительно длительности видео.
	frameOffsetRatio = 0.1
	maxFrameOffset   = 30 * time.Second
	ffmpegTimeout    = 30 * time.Second
)

// VideoFrame сохраняет видео во временный файл, берет один кадр через
// ffmpeg и приводит его к ширине width тем же путем, что и изображения.
func (s *Service) VideoFrame(ctx context.Context, src io.Reader, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid thumbnail width %d", width)
	}

	dir, err := os.MkdirTemp("", "clouddrive-frame-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input")
	output := filepath.Join(dir, "frame.jpg")
	if err := writeFile(input, src); err != nil {
		return nil, err
	}

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(input, output); err != nil {
		return nil, fmt.Errorf("failed to initialize transcoder: %w", err)
	}

	media := trans.MediaFile()
	media.SetSeekTime(frameOffset(media.Metadata().Format.Duration))
	media.SetVframes(1)
	media.SetVideoFilter(fmt.Sprintf("scale='min(%d,iw)':-2", width))

	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	select {
	case err := <-trans.Run(false):
		if err != nil {
			return nil, fmt.Errorf("failed to extract frame: %w", err)
		}
	case <-ctx.Done():
		if err := trans.Stop(); err != nil {
			logs.WithComponent("preview").WithError(err).Warn("failed to stop ffmpeg")
		}
		return nil, fmt.Errorf("frame extraction aborted: %w", ctx.Err())
	}

	frame, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return s.Thumbnail(frame, width)
}

func writeFile(name string, src io.Reader) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("failed to save video data: %w", err)
	}
	return f.Close()
}

// frameOffset переводит длительность из метаданных ffmpeg (секунды строкой) в
// позицию кадра для -ss. Неизвестная длительность дает первый кадр.
func frameOffset(duration string) string {
	secs, err := strconv.ParseFloat(duration, 64)
	if err != nil || secs <= 0 {
		return "0"
	}
	offset := time.Duration(secs * frameOffsetRatio * float64(time.Second))
	if offset > maxFrameOffset {
		offset = maxFrameOffset
	}
	return strconv.FormatFloat(offset.Seconds(), 'f', 3, 64)
}

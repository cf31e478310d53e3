package media

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

type ThumbnailExtractor interface {
	ExtractFrame(ctx context.Context, src string, seek time.Duration, outPath string) error
}

type FFmpegThumbnailer struct {
	path    string
	runner  Runner
	width   int
	quality int
}

// NewFFmpegThumbnailer returns an extractor that grabs one frame with ffmpeg
// and re-encodes it. width 0 keeps the frame's own size.
func NewFFmpegThumbnailer(path string, runner Runner, width, quality int) *FFmpegThumbnailer {
	return &FFmpegThumbnailer{path: path, runner: runner, width: width, quality: quality}
}

// ExtractFrame writes the frame at seek to outPath, encoded by its extension.
// Nothing is left at outPath on failure.
func (t *FFmpegThumbnailer) ExtractFrame(ctx context.Context, src string, seek time.Duration, outPath string) error {
	scratch := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".frame.jpg"
	defer os.Remove(scratch)

	_, err := t.runner.Run(ctx, t.path,
		"-hide_banner", "-y",
		"-ss", FormatSeek(seek),
		"-i", src,
		"-vframes", "1",
		"-q:v", "2",
		scratch,
	)
	if err != nil {
		return err
	}

	if err := t.convert(scratch, outPath); err != nil {
		os.Remove(outPath)
		return err
	}
	return nil
}

func (t *FFmpegThumbnailer) convert(framePath, outPath string) error {
	f, err := os.Open(framePath)
	if err != nil {
		return fmt.Errorf("failed to open extracted frame: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	if t.width > 0 {
		img = imaging.Resize(img, t.width, 0, imaging.Lanczos)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	err = EncodeImage(out, img, strings.TrimPrefix(filepath.Ext(outPath), "."), t.quality)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}

// EncodeImage writes img as jpeg, png or webp. Unknown formats fall back to jpeg.
func EncodeImage(w io.Writer, img image.Image, format string, quality int) error {
	var err error
	switch strings.ToLower(format) {
	case "png":
		err = png.Encode(w, img)
	case "webp":
		err = webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}

// ThumbnailExt maps a configured output format to a file extension.
func ThumbnailExt(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "png"
	case "webp":
		return "webp"
	default:
		return "jpg"
	}
}

// FormatSeek renders d as an ffmpeg timestamp, e.g. 00:00:01 or 00:01:02.500.
func FormatSeek(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	ms := int(d % time.Second / time.Millisecond)
	if ms > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

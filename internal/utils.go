package utils

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ErrTooLarge is returned by SpoolToTemp when the source exceeds its limit.
var ErrTooLarge = errors.New("input exceeds size limit")

var contentTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ContentType guesses a MIME type from the file extension. Media types are
// resolved from a fixed table so the result does not depend on the host's
// mime.types.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// SpoolToTemp copies r into a new file under dir and returns its path and
// size. At most limit bytes are accepted when limit > 0. The file is removed
// again if anything fails.
func SpoolToTemp(dir, pattern string, r io.Reader, limit int64) (string, int64, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && limit > 0 && n > limit {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}

	return path, n, nil
}

// RemoveAll deletes path and logs instead of failing; cleanup runs on paths
// that already returned their own error.
func RemoveAll(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		logger.Warn("failed to remove local state", "path", path, "error", err)
	}
}

// RegularFile reports whether path is an existing, non-empty regular file.
func RegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}

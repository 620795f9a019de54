package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-variants/internal/logging"
)

// Exists reports whether path names a regular, non-empty file right now.
// Zero-byte files count as missing: an encoder that crashed after creating
// its output must not satisfy a variant.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// TempSibling creates an empty temp file next to dest that keeps dest's
// extension, so tools that infer the container from the name still work.
// The caller owns the returned path and must Commit or Discard it.
func TempSibling(dest string) (string, error) {
	dir := filepath.Dir(dest)
	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(filepath.Base(dest), ext)

	f, err := os.CreateTemp(dir, "."+base+".*.partial"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", dest, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp file %s: %w", name, err)
	}
	return name, nil
}

// Commit atomically moves a finished temp file over dest.
func Commit(tmp, dest string) error {
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, dest, err)
	}
	return nil
}

// Discard removes a temp file, ignoring a file that is already gone.
func Discard(tmp string) {
	if tmp == "" {
		return
	}
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		logging.Warn("failed to remove temp file %s: %v", tmp, err)
	}
}

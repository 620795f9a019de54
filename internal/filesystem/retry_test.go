package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatWithRetry_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Expected size 4, got %d", info.Size())
	}
}

func TestStatWithRetry_NotExist(t *testing.T) {
	start := time.Now()
	_, err := StatWithRetry(filepath.Join(t.TempDir(), "missing"), DefaultRetryConfig())
	if !os.IsNotExist(err) {
		t.Fatalf("Expected not-exist error, got %v", err)
	}
	// Non-ESTALE errors must not back off.
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("StatWithRetry slept on a non-retryable error (%v)", elapsed)
	}
}

func TestOpenWithRetry_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error = %v", err)
	}
	defer f.Close()
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.webp")
	empty := filepath.Join(dir, "empty.webp")
	if err := os.WriteFile(full, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"non-empty file", full, true},
		{"empty file", empty, false},
		{"directory", dir, false},
		{"missing", filepath.Join(dir, "missing.webp"), false},
		{"empty path", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Exists(tt.path); got != tt.want {
				t.Errorf("Exists(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestTempSiblingKeepsExtension(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "clip.av1.webm")

	tmp, err := TempSibling(dest)
	if err != nil {
		t.Fatalf("TempSibling() error = %v", err)
	}
	defer Discard(tmp)

	if filepath.Dir(tmp) != filepath.Dir(dest) {
		t.Errorf("Expected temp file in %s, got %s", filepath.Dir(dest), tmp)
	}
	if !strings.HasSuffix(tmp, ".webm") {
		t.Errorf("Expected temp file to keep .webm extension, got %s", tmp)
	}
	if !strings.HasPrefix(filepath.Base(tmp), ".clip.av1.") {
		t.Errorf("Expected hidden temp name derived from dest, got %s", filepath.Base(tmp))
	}
}

func TestDiscardMissingIsNoop(t *testing.T) {
	Discard(filepath.Join(t.TempDir(), "never-created"))
	Discard("")
}

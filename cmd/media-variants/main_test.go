package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-variants/internal/database"
	"media-variants/internal/orchestrator"
	"media-variants/internal/variant"
)

type cliTestEnv struct {
	baseDir    string
	mediaDir   string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		mediaDir:   filepath.Join(base, "media"),
		configPath: filepath.Join(base, "config.yaml"),
	}
	if err := os.MkdirAll(env.mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}

	config := strings.Join([]string{
		"media_dir: " + env.mediaDir,
		"base_url: /media",
		"database_path: " + filepath.Join(base, "db", "test.db"),
		"lock_dir: " + filepath.Join(base, "locks"),
		"metrics_enabled: false",
		"vips_enabled: false",
		"exec_enabled: true",
		"log_level: error",
		"",
	}, "\n")
	if err := os.WriteFile(env.configPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *cliTestEnv) writeMedia(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(e.mediaDir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// =============================================================================
// Asset commands
// =============================================================================

func TestAddUnsupportedFileFails(t *testing.T) {
	env := setupCLITestEnv(t)
	notes := env.writeMedia(t, "notes.txt", "hello")

	out, err := env.run(t, "add", notes)
	if !errors.Is(err, orchestrator.ErrUnsupported) {
		t.Fatalf("Expected ErrUnsupported, got %v", err)
	}
	if !strings.Contains(out, string(orchestrator.OutcomeSkippedUnsupported)) {
		t.Errorf("Expected skipped-unsupported in output, got %q", out)
	}
	if !strings.Contains(out, "Processed 1 asset:") {
		t.Errorf("Expected summary line, got %q", out)
	}

	out, err = env.run(t, "state", "1")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if !strings.Contains(out, `"path": "`+notes+`"`) {
		t.Errorf("Expected registered path in state output, got %q", out)
	}
	if !strings.Contains(out, `"variants": {}`) {
		t.Errorf("Expected empty variants, got %q", out)
	}
}

func TestAddMissingFile(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "add", filepath.Join(env.mediaDir, "gone.jpg"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestReprocessMissingAsset(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "reprocess", "99")
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReprocessAllDoesNotFailOnSkips(t *testing.T) {
	env := setupCLITestEnv(t)
	notes := env.writeMedia(t, "notes.txt", "hello")
	if _, err := env.run(t, "add", notes); err == nil {
		t.Fatal("Expected add to report the unsupported file")
	}

	out, err := env.run(t, "reprocess", "--all")
	if err != nil {
		t.Fatalf("Expected bulk reprocess to succeed, got %v", err)
	}
	if !strings.Contains(out, "Processed 1 asset: skipped-unsupported=1") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestScanRegisterOnly(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeMedia(t, "a.jpg", "not really a jpeg")
	env.writeMedia(t, "clip.mp4", "not really a video")
	env.writeMedia(t, "clip.jpg", "poster")
	env.writeMedia(t, "notes.txt", "hello")

	out, err := env.run(t, "scan", "--register-only")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out, "Found 2 source(s), registered 2 new") {
		t.Errorf("Unexpected output %q", out)
	}

	out, err = env.run(t, "scan", "--register-only")
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if !strings.Contains(out, "registered 0 new") {
		t.Errorf("Expected nothing new on rescan, got %q", out)
	}
}

func TestReprocessArgumentValidation(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"nothing", []string{"reprocess"}},
		{"all with ids", []string{"reprocess", "--all", "1"}},
		{"bad id", []string{"reprocess", "abc"}},
		{"zero id", []string{"reprocess", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.run(t, tt.args...); err == nil {
				t.Errorf("Expected error for %v", tt.args)
			}
		})
	}
}

// =============================================================================
// Documents
// =============================================================================

func TestDraftAndPublish(t *testing.T) {
	env := setupCLITestEnv(t)
	page := filepath.Join(env.baseDir, "post.html")
	if err := os.WriteFile(page, []byte(`<p>no media here</p>`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := env.run(t, "draft", page)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if !strings.Contains(out, "Created draft document 1") {
		t.Errorf("Unexpected draft output %q", out)
	}

	out, err = env.run(t, "publish", "1")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if !strings.Contains(out, "Published document 1 (unchanged)") {
		t.Errorf("Unexpected publish output %q", out)
	}

	if _, err := env.run(t, "publish", "2"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown document, got %v", err)
	}
}

// =============================================================================
// Root and helpers
// =============================================================================

func TestVersionSkipsConfig(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", "/nonexistent/config.yaml", "version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Expected version to ignore config, got %v", err)
	}
	if !strings.HasPrefix(out.String(), "media-variants ") {
		t.Errorf("Unexpected version output %q", out.String())
	}
}

func TestInvalidConfigFails(t *testing.T) {
	env := setupCLITestEnv(t)
	bad := "publish_rewrite_policy: explicit\n"
	if err := os.WriteFile(env.configPath, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := env.run(t, "state", "1"); err == nil {
		t.Error("Expected validation error for explicit policy without a format")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		results []runResult
		want    string
	}{
		{"empty", nil, "Processed 0 assets"},
		{
			"single",
			[]runResult{{ID: 1, Report: orchestrator.Report{Outcome: orchestrator.OutcomeSuccess}}},
			"Processed 1 asset: success=1",
		},
		{
			"mixed",
			[]runResult{
				{ID: 1, Report: orchestrator.Report{Outcome: orchestrator.OutcomeSuccess}},
				{ID: 2, Err: errors.New("boom")},
				{ID: 3, Report: orchestrator.Report{Outcome: orchestrator.OutcomeSuccess}},
			},
			"Processed 3 assets: success=2, error=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.results); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWriteReportsPlain(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	writeReports(&out, []runResult{{
		ID: 4,
		Report: orchestrator.Report{
			Path:     "/m/a.jpg",
			Outcome:  orchestrator.OutcomePartial,
			Created:  []variant.FormatKey{"avif"},
			Failed:   []variant.FormatKey{"webp"},
			Pending:  true,
			Duration: 1500 * time.Millisecond,
		},
	}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), out.String())
	}
	want := "4\t/m/a.jpg\tpartial\tavif\twebp\tpending\t1.5s"
	if lines[0] != want {
		t.Errorf("Expected %q, got %q", want, lines[0])
	}
}

func TestRenderTable(t *testing.T) {
	t.Parallel()

	got := renderTable([]string{"ID", "Outcome"}, [][]string{{"1", "success"}, {"2"}}, []columnAlignment{alignRight})
	for _, want := range []string{"ID", "Outcome", "success"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected table to contain %q:\n%s", want, got)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("Expected empty table for no headers")
	}
}

func TestServerTimeouts(t *testing.T) {
	t.Parallel()

	api := newAPIServer(":0", nil)
	if api.ReadTimeout != 15*time.Second || api.WriteTimeout != 0 || api.IdleTimeout != 60*time.Second {
		t.Errorf("Unexpected API server timeouts: read=%v write=%v idle=%v",
			api.ReadTimeout, api.WriteTimeout, api.IdleTimeout)
	}

	m := newMetricsServer(":0", nil)
	if m.ReadTimeout != 10*time.Second || m.WriteTimeout != 10*time.Second || m.IdleTimeout != 30*time.Second {
		t.Errorf("Unexpected metrics server timeouts: read=%v write=%v idle=%v",
			m.ReadTimeout, m.WriteTimeout, m.IdleTimeout)
	}
}

package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-variants/internal/mediatypes"
	"media-variants/internal/variant"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "log_level: info\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.PublishRewritePolicy != PolicyAuto {
		t.Errorf("Expected auto policy, got %s", cfg.PublishRewritePolicy)
	}
	if len(cfg.EnabledFormats) != 4 {
		t.Errorf("Expected 4 enabled formats, got %v", cfg.EnabledFormats)
	}
	if cfg.RetryDelay != 5*time.Minute {
		t.Errorf("Expected 5m retry delay, got %v", cfg.RetryDelay)
	}
	if !filepath.IsAbs(cfg.MediaDir) {
		t.Errorf("Expected absolute media dir, got %s", cfg.MediaDir)
	}
}

func TestLoadConfigFileAndEnvLayering(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"media_dir: /srv/media",
		"base_url: https://example.com/uploads/",
		"enabled_formats: [avif]",
		"quality_params:",
		"  avif: 40",
		"  webm_vp9: 999",
		"retry_delay: 1m",
		"scan_interval: 10m",
		"",
	}, "\n"))

	t.Setenv("MV_ENABLED_FORMATS", "webp, webm_vp9")
	t.Setenv("MV_QUALITY_WEBP", "70")
	t.Setenv("MV_RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("MV_DELETE_ORIGINALS", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MediaDir != filepath.Clean("/srv/media") {
		t.Errorf("Expected media dir from file, got %s", cfg.MediaDir)
	}
	if cfg.BaseURL != "https://example.com/uploads" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.BaseURL)
	}
	if len(cfg.EnabledFormats) != 2 || cfg.EnabledFormats[0] != "webp" || cfg.EnabledFormats[1] != "webm_vp9" {
		t.Errorf("Expected env formats to win, got %v", cfg.EnabledFormats)
	}
	if cfg.QualityParams["avif"] != 40 || cfg.QualityParams["webp"] != 70 {
		t.Errorf("Unexpected quality params: %v", cfg.QualityParams)
	}
	if cfg.RetryDelay != time.Minute || cfg.RetryMaxAttempts != 3 {
		t.Errorf("Unexpected retry settings: %v / %d", cfg.RetryDelay, cfg.RetryMaxAttempts)
	}
	if !cfg.DeleteOriginals {
		t.Error("Expected delete_originals from env")
	}
	if cfg.ScanInterval != 10*time.Minute {
		t.Errorf("Expected scan interval 10m, got %v", cfg.ScanInterval)
	}

	s := cfg.VariantSettings()
	if !s.Enabled[variant.FormatWebP] || s.Enabled[variant.FormatAVIF] {
		t.Errorf("Unexpected enabled set: %v", s.Enabled)
	}
	specs := s.SpecsFor(mediatypes.KindVideo)
	if specs[0].Key != variant.FormatWebmVP9 || specs[0].Quality != 63 {
		t.Errorf("Expected configured CRF 999 clamped to 63, got %+v", specs[0])
	}
}

func TestBitrateParamsReachSpecs(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"bitrate_params:",
		"  webm_vp9: 2M",
		"",
	}, "\n"))
	t.Setenv("MV_BITRATE_WEBM_AV1", "1500k")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := map[variant.FormatKey]string{
		variant.FormatWebmVP9: "2M",
		variant.FormatWebmAV1: "1500k",
	}
	for _, spec := range cfg.VariantSettings().SpecsFor(mediatypes.KindVideo) {
		if spec.Bitrate != want[spec.Key] {
			t.Errorf("Expected %s bitrate %q, got %q", spec.Key, want[spec.Key], spec.Bitrate)
		}
	}
	for _, spec := range cfg.VariantSettings().SpecsFor(mediatypes.KindImage) {
		if spec.Bitrate != "" {
			t.Errorf("Expected no bitrate for %s, got %q", spec.Key, spec.Bitrate)
		}
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown format", "enabled_formats: [gif]\n", "EnabledFormats"},
		{"unknown policy", "publish_rewrite_policy: sometimes\n", "PublishRewritePolicy"},
		{"explicit without format", "publish_rewrite_policy: explicit\n", "publish_rewrite_format is required"},
		{"negative width", "max_output_width: -1\n", "MaxOutputWidth"},
		{"no backends", "exec_enabled: false\nvips_enabled: false\n", "at least one of"},
		{"delete without rewrite", "delete_originals: true\npublish_rewrite_policy: none\n", "delete_originals requires"},
		{"bitrate for image format", "bitrate_params:\n  avif: 2M\n", "BitrateParams"},
		{"malformed bitrate", "bitrate_params:\n  webm_vp9: fast\n", "BitrateParams"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"MV_MEDIA_DIR":      "media_dir",
		"MV_QUALITY_AVIF":   "quality_params.avif",
		"MV_QUALITY_PARAMS": "quality_params",
		"MV_RETRY_DELAY":    "retry_delay",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRewriteOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeliveryPreferenceOrder = []string{"webp", "webm_vp9", "avif"}

	img := cfg.RewriteOrder(mediatypes.KindImage)
	if len(img) != 2 || img[0] != variant.FormatWebP || img[1] != variant.FormatAVIF {
		t.Errorf("Unexpected image order: %v", img)
	}
	vid := cfg.RewriteOrder(mediatypes.KindVideo)
	if len(vid) != 1 || vid[0] != variant.FormatWebmVP9 {
		t.Errorf("Unexpected video order: %v", vid)
	}
}

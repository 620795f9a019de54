package variant

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-variants/internal/mediatypes"
)

func TestDerivativePath(t *testing.T) {
	tests := []struct {
		source   string
		key      FormatKey
		expected string
	}{
		{"/media/clip.mp4", FormatWebmVP9, "/media/clip.webm"},
		{"/media/clip.mp4", FormatWebmAV1, "/media/clip.av1.webm"},
		{"/media/clip.mp4", FormatPoster, "/media/clip.jpg"},
		{"/media/photo.png", FormatAVIF, "/media/photo.avif"},
		{"/media/photo.png", FormatWebP, "/media/photo.webp"},
		{"/media/a.b/photo.jpeg", FormatWebP, "/media/a.b/photo.webp"},
		{"uploads/clip.mp4", FormatWebmAV1, "uploads/clip.av1.webm"},
		{"/media/photo.png", FormatKey("bogus"), ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.key)+"/"+tt.source, func(t *testing.T) {
			got := DerivativePath(tt.source, tt.key)
			if got != tt.expected {
				t.Errorf("DerivativePath(%q, %q) = %q, expected %q", tt.source, tt.key, got, tt.expected)
			}
		})
	}
}

func TestClampQuality(t *testing.T) {
	tests := []struct {
		key      FormatKey
		in       int
		expected int
	}{
		{FormatWebmVP9, 999, 63},
		{FormatWebmAV1, 999, 63},
		{FormatWebmVP9, -5, 0},
		{FormatWebmAV1, 30, 30},
		{FormatAVIF, 150, 100},
		{FormatWebP, -1, 0},
		{FormatWebP, 75, 75},
		{FormatPoster, 0, 1},
	}

	for _, tt := range tests {
		if got := ClampQuality(tt.key, tt.in); got != tt.expected {
			t.Errorf("ClampQuality(%s, %d) = %d, expected %d", tt.key, tt.in, got, tt.expected)
		}
	}
}

func TestSpecsForClampsBeforeEncoding(t *testing.T) {
	s := Settings{
		Enabled: map[FormatKey]bool{FormatWebmVP9: true},
		Quality: map[FormatKey]int{FormatWebmVP9: 999},
	}

	specs := s.SpecsFor(mediatypes.KindVideo)
	if len(specs) != 2 {
		t.Fatalf("Expected 2 video specs, got %d", len(specs))
	}
	if specs[0].Key != FormatWebmVP9 || specs[1].Key != FormatWebmAV1 {
		t.Errorf("Expected declared order [webm_vp9 webm_av1], got [%s %s]", specs[0].Key, specs[1].Key)
	}
	if specs[0].Quality != 63 {
		t.Errorf("Expected CRF clamped to 63, got %d", specs[0].Quality)
	}
	if specs[1].Enabled {
		t.Error("Expected webm_av1 to be disabled")
	}
	if specs[1].Quality != 35 {
		t.Errorf("Expected default CRF 35 for av1, got %d", specs[1].Quality)
	}
}

func TestTargetsForExcludesPoster(t *testing.T) {
	for _, key := range TargetsFor(mediatypes.KindVideo) {
		if key == FormatPoster {
			t.Error("Poster must not be a retry-driving target")
		}
	}
	if got := TargetsFor(mediatypes.KindOther); len(got) != 0 {
		t.Errorf("Expected no targets for other kind, got %v", got)
	}
}

func TestPreferenceFor(t *testing.T) {
	order := []FormatKey{FormatWebP, FormatWebmVP9, FormatAVIF, FormatWebP, "nope"}

	got := PreferenceFor(mediatypes.KindImage, order)
	if len(got) != 2 || got[0] != FormatWebP || got[1] != FormatAVIF {
		t.Errorf("Expected [webp avif], got %v", got)
	}

	got = PreferenceFor(mediatypes.KindVideo, []FormatKey{FormatAVIF})
	if len(got) != 2 || got[0] != FormatWebmAV1 {
		t.Errorf("Expected default video order, got %v", got)
	}
}

func TestScaledSize(t *testing.T) {
	tests := []struct {
		w, h, max int
		ew, eh    int
	}{
		{1920, 1080, 0, 1920, 1080},
		{1920, 1080, 4000, 1920, 1080},
		{1920, 1080, 1280, 1280, 720},
		{1001, 333, 500, 500, 166},
		{3, 1001, 1, 2, 334},
	}

	for _, tt := range tests {
		w, h := ScaledSize(tt.w, tt.h, tt.max)
		if w != tt.ew || h != tt.eh {
			t.Errorf("ScaledSize(%d, %d, %d) = %dx%d, expected %dx%d", tt.w, tt.h, tt.max, w, h, tt.ew, tt.eh)
		}
	}
}

func TestStateMutualExclusion(t *testing.T) {
	s := NewState()
	s.SetError(FormatAVIF, ErrorRecord{Timestamp: 1, Output: "boom"})
	s.SetVariant(FormatAVIF, "photo.avif")

	if _, ok := s.LastError[FormatAVIF]; ok {
		t.Error("Expected error cleared when variant installed")
	}

	s.SetError(FormatAVIF, ErrorRecord{Timestamp: 2})
	if s.Has(FormatAVIF) {
		t.Error("Expected variant dropped when error installed")
	}

	s.Forget(FormatAVIF)
	if s.Has(FormatAVIF) || len(s.LastError) != 0 {
		t.Error("Expected Forget to clear both records")
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	s := NewState()
	s.SetVariant(FormatWebP, "a.webp")

	c := s.Clone()
	c.SetVariant(FormatAVIF, "a.avif")
	c.SetError(FormatWebP, ErrorRecord{})

	if !s.Has(FormatWebP) || s.Has(FormatAVIF) {
		t.Error("Expected clone mutations not to leak into the original")
	}
}

func TestReconcileDropsMissingFiles(t *testing.T) {
	s := NewState()
	s.SetVariant(FormatWebP, "sub/a.webp")
	s.SetVariant(FormatAVIF, "sub/a.avif")
	s.SetError(FormatPoster, ErrorRecord{Output: "x"})

	present := map[string]bool{filepath.Join("/root", "sub", "a.webp"): true}
	stale := s.Reconcile("/root", func(p string) bool { return present[p] })

	if len(stale) != 1 || stale[0] != FormatAVIF {
		t.Errorf("Expected [avif] stale, got %v", stale)
	}
	if !s.Has(FormatWebP) || s.Has(FormatAVIF) {
		t.Errorf("Unexpected variants after reconcile: %v", s.Variants)
	}
	if _, ok := s.LastError[FormatPoster]; !ok {
		t.Error("Expected errors to survive reconcile")
	}
}

func TestTruncateOutput(t *testing.T) {
	short := "ok"
	if TruncateOutput(short) != short {
		t.Error("Expected short output unchanged")
	}

	long := strings.Repeat("é", MaxOutputLen+10) + "FATAL"
	got := TruncateOutput(long)
	if n := len([]rune(got)); n != MaxOutputLen {
		t.Errorf("Expected %d runes, got %d", MaxOutputLen, n)
	}
	if !strings.HasSuffix(got, "FATAL") {
		t.Error("Expected tail of output to be kept")
	}

	rec := NewErrorRecord(time.Unix(42, 0), "ffmpeg -i x", long)
	if rec.Timestamp != 42 || rec.Command != "ffmpeg -i x" || len([]rune(rec.Output)) != MaxOutputLen {
		t.Errorf("Unexpected error record: ts=%d cmd=%q", rec.Timestamp, rec.Command)
	}
}

func TestRelAndAbsPath(t *testing.T) {
	root := filepath.FromSlash("/srv/media")

	if got := RelPath(root, filepath.Join(root, "uploads", "clip.webm")); got != "uploads/clip.webm" {
		t.Errorf("Expected uploads/clip.webm, got %q", got)
	}
	outside := filepath.FromSlash("/elsewhere/clip.webm")
	if got := RelPath(root, outside); got != filepath.ToSlash(outside) {
		t.Errorf("Expected outside path kept, got %q", got)
	}
	if got := AbsPath(root, "uploads/clip.webm"); got != filepath.Join(root, "uploads", "clip.webm") {
		t.Errorf("Unexpected abs path %q", got)
	}
	if got := AbsPath(root, outside); got != outside {
		t.Errorf("Expected absolute path unchanged, got %q", got)
	}
}

func TestCounterparts(t *testing.T) {
	s := Settings{Enabled: map[FormatKey]bool{FormatWebmVP9: true, FormatWebmAV1: true, FormatWebP: true}}

	tests := []struct {
		path string
		want []string
	}{
		{"/m/clip.mp4", []string{"/m/clip.webm", "/m/clip.av1.webm"}},
		{"/m/photo.png", []string{"/m/photo.webp"}},
		{"/m/readme.txt", nil},
	}
	for _, tt := range tests {
		got := s.Counterparts(tt.path)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Counterparts(%s): expected %v, got %v", tt.path, tt.want, got)
		}
	}
}

package variant

import "media-variants/internal/mediatypes"

// TargetFormatSpec is the per-run description of one wanted derivative.
type TargetFormatSpec struct {
	Key      FormatKey
	Enabled  bool
	Suffix   string
	Quality  int
	Bitrate  string
	MaxWidth int
}

// Settings is the subset of configuration that shapes target specs.
type Settings struct {
	Enabled        map[FormatKey]bool
	Quality        map[FormatKey]int
	Bitrate        map[FormatKey]string
	MaxWidth       int
	GeneratePoster bool
}

// SpecsFor builds one spec per target format of kind, in declared order,
// including disabled formats so their bookkeeping can be retracted.
// Quality values are clamped here, before any encoder sees them.
func (s Settings) SpecsFor(kind mediatypes.Kind) []TargetFormatSpec {
	keys := TargetsFor(kind)
	specs := make([]TargetFormatSpec, 0, len(keys))
	for _, key := range keys {
		specs = append(specs, s.spec(key, s.Enabled[key]))
	}
	return specs
}

// PosterSpec returns the auxiliary poster spec for video sources.
func (s Settings) PosterSpec() TargetFormatSpec {
	return s.spec(FormatPoster, s.GeneratePoster)
}

func (s Settings) spec(key FormatKey, enabled bool) TargetFormatSpec {
	f, _ := Lookup(key)
	q, ok := s.Quality[key]
	if !ok {
		q = f.QualityDefault
	}
	return TargetFormatSpec{
		Key:      key,
		Enabled:  enabled,
		Suffix:   f.Suffix,
		Quality:  ClampQuality(key, q),
		Bitrate:  s.Bitrate[key],
		MaxWidth: s.MaxWidth,
	}
}

// Counterparts lists the conventional paths of the enabled target
// derivatives of path. Only these may justify deleting path.
func (s Settings) Counterparts(path string) []string {
	var out []string
	for _, key := range TargetsFor(mediatypes.SourceKind(path, "")) {
		if s.Enabled[key] {
			out = append(out, DerivativePath(path, key))
		}
	}
	return out
}

package variant

import (
	"path/filepath"
	"strings"

	"media-variants/internal/mediatypes"
)

// FormatKey is a stable identifier for one derivative kind.
type FormatKey string

const (
	FormatWebmVP9 FormatKey = "webm_vp9"
	FormatWebmAV1 FormatKey = "webm_av1"
	FormatAVIF    FormatKey = "avif"
	FormatWebP    FormatKey = "webp"
	FormatPoster  FormatKey = "poster"
)

// Format holds the static properties of a derivative format.
type Format struct {
	Key FormatKey
	// Kind is the source kind this format is produced from.
	Kind mediatypes.Kind
	// Suffix replaces the source extension, e.g. ".av1.webm".
	Suffix string
	// MimeType is what a client sees; SourceType adds codec hints for
	// <source type="..."> negotiation.
	MimeType   string
	SourceType string
	// Quality bounds. For video formats this is a CRF (lower is better).
	QualityMin     int
	QualityMax     int
	QualityDefault int
	// Auxiliary formats never drive retries.
	Auxiliary bool
}

// declared order is the evaluation order within a run
var formats = []Format{
	{
		Key: FormatWebmVP9, Kind: mediatypes.KindVideo, Suffix: ".webm",
		MimeType: "video/webm", SourceType: "video/webm; codecs=vp9",
		QualityMin: 0, QualityMax: 63, QualityDefault: 32,
	},
	{
		Key: FormatWebmAV1, Kind: mediatypes.KindVideo, Suffix: ".av1.webm",
		MimeType: "video/webm", SourceType: "video/webm; codecs=av01.0.05M.08",
		QualityMin: 0, QualityMax: 63, QualityDefault: 35,
	},
	{
		Key: FormatAVIF, Kind: mediatypes.KindImage, Suffix: ".avif",
		MimeType: "image/avif", SourceType: "image/avif",
		QualityMin: 0, QualityMax: 100, QualityDefault: 50,
	},
	{
		Key: FormatWebP, Kind: mediatypes.KindImage, Suffix: ".webp",
		MimeType: "image/webp", SourceType: "image/webp",
		QualityMin: 0, QualityMax: 100, QualityDefault: 80,
	},
	{
		Key: FormatPoster, Kind: mediatypes.KindVideo, Suffix: ".jpg",
		MimeType: "image/jpeg", SourceType: "image/jpeg",
		QualityMin: 1, QualityMax: 100, QualityDefault: 82,
		Auxiliary: true,
	},
}

// Lookup returns the format definition for key.
func Lookup(key FormatKey) (Format, bool) {
	for _, f := range formats {
		if f.Key == key {
			return f, true
		}
	}
	return Format{}, false
}

// KnownKeys returns every format key in declared order.
func KnownKeys() []FormatKey {
	keys := make([]FormatKey, 0, len(formats))
	for _, f := range formats {
		keys = append(keys, f.Key)
	}
	return keys
}

// IsKnown reports whether key names a defined format.
func IsKnown(key FormatKey) bool {
	_, ok := Lookup(key)
	return ok
}

// TargetsFor returns the non-auxiliary formats produced from a source kind,
// in declared order.
func TargetsFor(kind mediatypes.Kind) []FormatKey {
	var keys []FormatKey
	for _, f := range formats {
		if f.Kind == kind && !f.Auxiliary {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// DefaultPreference is the efficiency-first order used when configuration
// does not supply one.
func DefaultPreference(kind mediatypes.Kind) []FormatKey {
	switch kind {
	case mediatypes.KindImage:
		return []FormatKey{FormatAVIF, FormatWebP}
	case mediatypes.KindVideo:
		return []FormatKey{FormatWebmAV1, FormatWebmVP9}
	default:
		return nil
	}
}

// PreferenceFor filters a configured order down to the formats that apply
// to kind. An order with no applicable entries falls back to DefaultPreference.
func PreferenceFor(kind mediatypes.Kind, order []FormatKey) []FormatKey {
	var out []FormatKey
	seen := make(map[FormatKey]bool)
	for _, key := range order {
		f, ok := Lookup(key)
		if !ok || f.Kind != kind || f.Auxiliary || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	if len(out) == 0 {
		return DefaultPreference(kind)
	}
	return out
}

// DerivativePath names the derivative of source for key: same directory and
// base name, extension replaced by the format suffix.
func DerivativePath(source string, key FormatKey) string {
	f, ok := Lookup(key)
	if !ok {
		return ""
	}
	ext := filepath.Ext(source)
	return strings.TrimSuffix(source, ext) + f.Suffix
}

// ClampQuality bounds q to the documented range for key.
func ClampQuality(key FormatKey, q int) int {
	f, ok := Lookup(key)
	if !ok {
		return q
	}
	if q < f.QualityMin {
		return f.QualityMin
	}
	if q > f.QualityMax {
		return f.QualityMax
	}
	return q
}

// ScaledSize returns the output size for a max-width constraint. Widths are
// only reduced, aspect ratio is kept, and both sides are rounded to even
// numbers because the YUV 4:2:0 encoders reject odd dimensions.
func ScaledSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= 0 || height <= 0 || width <= maxWidth {
		return width, height
	}
	w := maxWidth
	h := int(float64(height)*float64(maxWidth)/float64(width) + 0.5)
	w -= w % 2
	h -= h % 2
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}

package rewrite

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"media-variants/internal/filesystem"
	"media-variants/internal/mediatypes"
	"media-variants/internal/variant"
)

// Candidate is one on-disk derivative of a managed source.
type Candidate struct {
	Key  variant.FormatKey
	URL  string
	Path string
	// Type is the value for a <source type> attribute.
	Type string
}

// Resolver maps document URLs to managed sources and their derivatives.
type Resolver interface {
	// Resolve returns the source file a URL refers to, and its kind.
	Resolve(rawURL string) (string, mediatypes.Kind, bool)
	// Candidates lists the derivatives of rawURL present on disk, in the
	// order of keys.
	Candidates(rawURL string, keys []variant.FormatKey) []Candidate
}

// PathResolver resolves URLs under BaseURL to files under MediaDir.
type PathResolver struct {
	mediaDir string
	basePath string
	exists   func(string) bool
}

// NewPathResolver returns a resolver for media served at baseURL. baseURL
// may be a path ("/media") or an absolute URL; only its path is matched.
func NewPathResolver(mediaDir, baseURL string) *PathResolver {
	base := baseURL
	if u, err := url.Parse(baseURL); err == nil {
		base = u.Path
	}
	base = "/" + strings.Trim(base, "/")
	if base == "/" {
		base = ""
	}
	return &PathResolver{
		mediaDir: filepath.Clean(mediaDir),
		basePath: base,
		exists:   filesystem.Exists,
	}
}

// MediaPrefix is the URL path prefix media is served under, with a
// trailing slash.
func (r *PathResolver) MediaPrefix() string {
	return r.basePath + "/"
}

// Resolve implements Resolver. Only supported source files are managed.
func (r *PathResolver) Resolve(rawURL string) (string, mediatypes.Kind, bool) {
	file, ok := r.FilePath(rawURL)
	if !ok {
		return "", mediatypes.KindOther, false
	}
	kind := mediatypes.SourceKind(file, "")
	if kind == mediatypes.KindOther {
		return "", kind, false
	}
	return file, kind, true
}

// FilePath maps any URL under the base path to a file under the media
// root, whatever its type. Paths escaping the root are rejected.
func (r *PathResolver) FilePath(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Path == "" {
		return "", false
	}
	p := path.Clean("/" + strings.TrimPrefix(u.Path, "/"))
	if u.Scheme == "" && u.Host == "" && !strings.HasPrefix(u.Path, "/") {
		return "", false
	}
	prefix := r.basePath + "/"
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(p, prefix)
	if rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return filepath.Join(r.mediaDir, filepath.FromSlash(rel)), true
}

// URLFor returns the public URL path of a file under the media root.
func (r *PathResolver) URLFor(file string) (string, bool) {
	rel, err := filepath.Rel(r.mediaDir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return r.basePath + "/" + strings.Join(segments, "/"), true
}

// Candidates implements Resolver. Derivative URLs keep the scheme and host
// of rawURL and drop any query or fragment.
func (r *PathResolver) Candidates(rawURL string, keys []variant.FormatKey) []Candidate {
	file, kind, ok := r.Resolve(rawURL)
	if !ok {
		return nil
	}
	bare := stripQuery(strings.TrimSpace(rawURL))
	ext := path.Ext(bare)

	var out []Candidate
	for _, key := range keys {
		f, ok := variant.Lookup(key)
		if !ok || f.Kind != kind || f.Auxiliary {
			continue
		}
		dp := variant.DerivativePath(file, key)
		if !r.exists(dp) {
			continue
		}
		out = append(out, Candidate{
			Key:  key,
			URL:  strings.TrimSuffix(bare, ext) + f.Suffix,
			Path: dp,
			Type: f.SourceType,
		})
	}
	return out
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-variants/internal/database"
	"media-variants/internal/logging"
	"media-variants/internal/mediatypes"
	"media-variants/internal/metrics"
	"media-variants/internal/variant"
)

// Registry is the asset store the indexer writes to.
type Registry interface {
	GetAssetByPath(ctx context.Context, path string) (mediatypes.Asset, error)
	UpsertAsset(ctx context.Context, a mediatypes.Asset) (mediatypes.Asset, error)
}

// Prober reads pixel dimensions of a source.
type Prober interface {
	Probe(ctx context.Context, path string, kind mediatypes.Kind) (int, int, error)
}

// NewAssetFunc is called for each asset registered by a scan.
type NewAssetFunc func(ctx context.Context, asset mediatypes.Asset)

// Result summarizes one scan.
type Result struct {
	Sources     int
	Derivatives int
	Registered  []mediatypes.Asset
	Duration    time.Duration
}

// Indexer scans the media directory for unregistered sources.
type Indexer struct {
	registry Registry
	prober   Prober
	mediaDir string
	interval time.Duration
	onNew    NewAssetFunc

	scanMu   sync.Mutex
	lastScan time.Time
}

// New creates an Indexer. prober may be nil, in which case dimensions are
// left at zero. interval is only used by Serve.
func New(registry Registry, prober Prober, mediaDir string, interval time.Duration) *Indexer {
	return &Indexer{
		registry: registry,
		prober:   prober,
		mediaDir: filepath.Clean(mediaDir),
		interval: interval,
	}
}

// SetOnNew sets the callback invoked for newly registered assets.
func (idx *Indexer) SetOnNew(fn NewAssetFunc) {
	idx.onNew = fn
}

// LastScan returns when the last scan finished.
func (idx *Indexer) LastScan() time.Time {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()
	return idx.lastScan
}

// Scan walks the media directory once. Concurrent calls are serialized.
func (idx *Indexer) Scan(ctx context.Context) (Result, error) {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()

	metrics.IndexerRunsTotal.Inc()
	start := time.Now()
	var result Result

	sources, files, err := idx.walk(ctx)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return result, err
	}

	derived := derivativeSet(sources, files)
	for _, path := range sources {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if derived[path] {
			result.Derivatives++
			continue
		}
		result.Sources++

		asset, created, err := idx.register(ctx, path)
		if err != nil {
			logging.Warn("Failed to register %s: %v", path, err)
			continue
		}
		if !created {
			continue
		}
		result.Registered = append(result.Registered, asset)
		metrics.IndexerAssetsRegistered.Inc()
		logging.Info("Registered asset %d: %s", asset.ID, asset.Path)
		if idx.onNew != nil {
			idx.onNew(ctx, asset)
		}
	}

	result.Duration = time.Since(start)
	idx.lastScan = time.Now()
	metrics.IndexerLastRunDuration.Set(result.Duration.Seconds())
	logging.Info("Scan complete: %d sources, %d new, %d derivatives skipped in %v",
		result.Sources, len(result.Registered), result.Derivatives, result.Duration.Round(time.Millisecond))
	return result, nil
}

// walk returns every supported source path under the media directory and
// the set of all visible files.
func (idx *Indexer) walk(ctx context.Context) ([]string, map[string]bool, error) {
	var sources []string
	files := make(map[string]bool)
	err := filepath.WalkDir(idx.mediaDir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == idx.mediaDir {
				return err
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if path != idx.mediaDir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		files[path] = true
		if mediatypes.IsSupportedSource(path, "") {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", idx.mediaDir, err)
	}
	return sources, files, nil
}

// derivativeSet marks sources that are derivative outputs of another source.
// A poster also counts when only its video derivative remains, as happens
// after the original was promoted away.
func derivativeSet(sources []string, files map[string]bool) map[string]bool {
	derived := make(map[string]bool)
	poster, _ := variant.Lookup(variant.FormatPoster)
	for path := range files {
		for _, key := range variant.TargetsFor(mediatypes.KindVideo) {
			f, _ := variant.Lookup(key)
			if stem, ok := strings.CutSuffix(path, f.Suffix); ok {
				derived[stem+poster.Suffix] = true
			}
		}
	}
	for _, src := range sources {
		kind := mediatypes.SourceKind(src, "")
		for _, key := range variant.KnownKeys() {
			if f, _ := variant.Lookup(key); f.Kind != kind {
				continue
			}
			if p := variant.DerivativePath(src, key); p != src {
				derived[p] = true
			}
		}
	}
	return derived
}

func (idx *Indexer) register(ctx context.Context, path string) (mediatypes.Asset, bool, error) {
	existing, err := idx.registry.GetAssetByPath(ctx, path)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return existing, false, err
	}

	asset := mediatypes.Asset{
		Path:     path,
		MimeType: mediatypes.GetMimeType(filepath.Ext(path)),
	}
	if idx.prober != nil {
		kind := mediatypes.SourceKind(path, asset.MimeType)
		if w, h, err := idx.prober.Probe(ctx, path, kind); err == nil {
			asset.Width, asset.Height = w, h
		} else {
			logging.Debug("Could not probe %s: %v", path, err)
		}
	}

	asset, err = idx.registry.UpsertAsset(ctx, asset)
	return asset, err == nil, err
}

// Serve scans immediately and then every interval until ctx is canceled.
// It implements suture.Service.
func (idx *Indexer) Serve(ctx context.Context) error {
	interval := idx.interval
	if interval <= 0 {
		interval = time.Hour
	}
	logging.Info("Indexer started (interval: %v)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := idx.Scan(ctx); err != nil && ctx.Err() == nil {
			logging.Error("Scan failed: %v", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logging.Info("Indexer stopped")
			return ctx.Err()
		}
	}
}

func (idx *Indexer) String() string {
	return "indexer"
}

package swap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"media-variants/internal/filesystem"
	"media-variants/internal/logging"
	"media-variants/internal/mediatypes"
	"media-variants/internal/metrics"
	"media-variants/internal/variant"
)

var (
	// ErrNoCounterpart means no derivative of the original exists on disk.
	ErrNoCounterpart = errors.New("no derivative counterpart exists")
	// ErrDerivativeMissing means the chosen derivative is not on disk.
	ErrDerivativeMissing = errors.New("derivative file missing")
)

// AssetUpdater repoints an asset row at a new file.
type AssetUpdater interface {
	UpdateAssetFile(ctx context.Context, id int64, path, mimeType string) error
}

// PathLocker serializes work on a single file path.
type PathLocker interface {
	LockPath(ctx context.Context, path string) (func(), error)
}

// Swapper performs primary swaps and guarded deletions.
type Swapper struct {
	root   string
	assets AssetUpdater
	locks  PathLocker
	exists func(string) bool
	remove func(string) error
}

// New returns a Swapper for files under mediaRoot.
func New(mediaRoot string, assets AssetUpdater, locks PathLocker) *Swapper {
	return &Swapper{
		root:   mediaRoot,
		assets: assets,
		locks:  locks,
		exists: filesystem.Exists,
		remove: os.Remove,
	}
}

// Promote makes the key derivative the asset's primary file and deletes the
// original. The returned state records the swap; the returned asset carries
// the new path and mime type.
func (s *Swapper) Promote(ctx context.Context, asset mediatypes.Asset, state variant.State, key variant.FormatKey) (variant.State, mediatypes.Asset, error) {
	rel, ok := state.Variants[key]
	if !ok {
		metrics.PrimarySwapsTotal.WithLabelValues("refused").Inc()
		return state, asset, fmt.Errorf("asset %d has no %s variant: %w", asset.ID, key, ErrDerivativeMissing)
	}
	derivative := variant.AbsPath(s.root, rel)
	if !s.exists(derivative) {
		metrics.PrimarySwapsTotal.WithLabelValues("refused").Inc()
		return state, asset, fmt.Errorf("%s: %w", derivative, ErrDerivativeMissing)
	}

	f, _ := variant.Lookup(key)
	if err := s.assets.UpdateAssetFile(ctx, asset.ID, derivative, f.MimeType); err != nil {
		metrics.PrimarySwapsTotal.WithLabelValues("error").Inc()
		return state, asset, fmt.Errorf("failed to repoint asset %d: %w", asset.ID, err)
	}
	metrics.PrimarySwapsTotal.WithLabelValues("promoted").Inc()

	next := state.Clone()
	next.Primary = key
	next.Original = variant.RelPath(s.root, asset.Path)

	promoted := asset
	promoted.Path = derivative
	promoted.MimeType = f.MimeType

	logging.Info("Asset %d now served from %s (%s)", asset.ID, derivative, key)

	if err := s.RemoveOriginal(ctx, asset.Path, []string{derivative}); err != nil {
		// The asset no longer references the original; a leftover file is
		// harmless and the next publish or swap retries the removal.
		logging.Warn("Original %s kept after swap: %v", asset.Path, err)
	}
	return next, promoted, nil
}

// RemoveOriginal deletes path if at least one of counterparts exists right
// now. The path and every counterpart are locked, in sorted order, for the
// duration of the check and the removal, so two originals that stand in for
// each other can never both be removed.
func (s *Swapper) RemoveOriginal(ctx context.Context, path string, counterparts []string) error {
	unlock, err := s.lockAll(ctx, append([]string{path}, counterparts...))
	if err != nil {
		metrics.OriginalDeletionsTotal.WithLabelValues("error").Inc()
		return err
	}
	defer unlock()

	found := ""
	for _, c := range counterparts {
		if c != path && s.exists(c) {
			found = c
			break
		}
	}
	if found == "" {
		metrics.OriginalDeletionsTotal.WithLabelValues("refused").Inc()
		return fmt.Errorf("%s: %w", path, ErrNoCounterpart)
	}

	if err := s.remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug("Original %s already removed", path)
			return nil
		}
		metrics.OriginalDeletionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	metrics.OriginalDeletionsTotal.WithLabelValues("deleted").Inc()
	logging.Info("Removed original %s (counterpart %s)", path, found)
	return nil
}

func (s *Swapper) lockAll(ctx context.Context, paths []string) (func(), error) {
	paths = slices.Compact(slices.Sorted(slices.Values(paths)))
	unlocks := make([]func(), 0, len(paths))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, p := range paths {
		unlock, err := s.locks.LockPath(ctx, p)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", p, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

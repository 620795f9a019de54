package assetlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"media-variants/internal/logging"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const defaultRetryDelay = 100 * time.Millisecond

type slot struct {
	sem  chan struct{}
	refs int
}

// Locker hands out per-key locks. The zero value is not usable; call New.
type Locker struct {
	dir        string
	retryDelay time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

// New returns a Locker that keeps lock files in dir. An empty dir limits
// locking to the current process.
func New(dir string) (*Locker, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}
	return &Locker{
		dir:        dir,
		retryDelay: defaultRetryDelay,
		slots:      make(map[string]*slot),
	}, nil
}

// LockAsset blocks until the asset's lock is held or ctx ends.
func (l *Locker) LockAsset(ctx context.Context, assetID int64) (func(), error) {
	return l.Lock(ctx, fmt.Sprintf("asset-%d", assetID))
}

// LockPath blocks until the lock for a file path is held or ctx ends.
func (l *Locker) LockPath(ctx context.Context, path string) (func(), error) {
	key := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.Clean(path))).String()
	return l.Lock(ctx, "path-"+key)
}

// Lock acquires the lock named key. The returned func releases it and is
// safe to call once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquireSlot(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(key, s)
		return nil, ctx.Err()
	}

	var fl *flock.Flock
	if l.dir != "" {
		fl = flock.New(filepath.Join(l.dir, key+".lock"))
		ok, err := fl.TryLockContext(ctx, l.retryDelay)
		if err != nil || !ok {
			<-s.sem
			l.releaseSlot(key, s)
			if err == nil {
				err = fmt.Errorf("lock %s not acquired", key)
			}
			return nil, fmt.Errorf("acquire lock file for %s: %w", key, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if fl != nil {
				if err := fl.Unlock(); err != nil {
					logging.Warn("failed to release lock file %s: %v", fl.Path(), err)
				}
			}
			<-s.sem
			l.releaseSlot(key, s)
		})
	}, nil
}

func (l *Locker) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Locker) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

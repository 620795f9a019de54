package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-variants/internal/database"
	"media-variants/internal/logging"
	"media-variants/internal/metrics"
)

// ErrExhausted is returned by Schedule when attempt exceeds MaxAttempts.
var ErrExhausted = errors.New("retry attempts exhausted")

// Queue is the durable task store. *database.Database satisfies it.
type Queue interface {
	EnqueueRetry(ctx context.Context, assetID int64, attempt int, dueAt time.Time) (bool, error)
	CancelRetry(ctx context.Context, assetID int64) (bool, error)
	ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]database.RetryTask, error)
	CompleteRetry(ctx context.Context, taskID string) error
	RecoverStaleRetries(ctx context.Context, cutoff time.Time) (int64, error)
	CountRetries(ctx context.Context) (map[string]int, error)
}

// Config controls delays and the polling worker.
type Config struct {
	Delay        time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	PollInterval time.Duration
	Lease        time.Duration
	BatchSize    int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Delay:        5 * time.Minute,
		MaxDelay:     6 * time.Hour,
		MaxAttempts:  8,
		PollInterval: 15 * time.Second,
		Lease:        time.Hour,
		BatchSize:    16,
	}
}

// Scheduler enqueues and cancels retry tasks.
type Scheduler struct {
	queue Queue
	cfg   Config
	now   func() time.Time
}

// NewScheduler returns a Scheduler over queue. Zero fields in cfg fall back
// to DefaultConfig.
func NewScheduler(queue Queue, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.MaxDelay < cfg.Delay {
		cfg.MaxDelay = cfg.Delay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	return &Scheduler{queue: queue, cfg: cfg, now: time.Now}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Backoff returns the delay before the given attempt (1-based).
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := s.cfg.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.cfg.MaxDelay || d <= 0 {
			return s.cfg.MaxDelay
		}
	}
	if d > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return d
}

// Schedule queues attempt for assetID after the backoff delay. It reports
// false when a pending task already existed.
func (s *Scheduler) Schedule(ctx context.Context, assetID int64, attempt int) (bool, error) {
	if s.cfg.MaxAttempts > 0 && attempt > s.cfg.MaxAttempts {
		metrics.RetriesExhaustedTotal.Inc()
		return false, fmt.Errorf("asset %d attempt %d of %d: %w", assetID, attempt, s.cfg.MaxAttempts, ErrExhausted)
	}

	delay := s.Backoff(attempt)
	queued, err := s.queue.EnqueueRetry(ctx, assetID, attempt, s.now().Add(delay))
	if err != nil {
		return false, fmt.Errorf("schedule retry for asset %d: %w", assetID, err)
	}
	if queued {
		metrics.RetriesScheduledTotal.Inc()
		logging.Info("Scheduled retry %d for asset %d in %v", attempt, assetID, delay)
	} else {
		logging.Debug("Retry already pending for asset %d", assetID)
	}
	return queued, nil
}

// Cancel removes a pending retry for assetID, if any.
func (s *Scheduler) Cancel(ctx context.Context, assetID int64) error {
	removed, err := s.queue.CancelRetry(ctx, assetID)
	if err != nil {
		return fmt.Errorf("cancel retry for asset %d: %w", assetID, err)
	}
	if removed {
		metrics.RetriesCanceledTotal.Inc()
		logging.Debug("Canceled pending retry for asset %d", assetID)
	}
	return nil
}

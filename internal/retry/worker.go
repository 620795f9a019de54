package retry

import (
	"context"
	"time"

	"media-variants/internal/database"
	"media-variants/internal/logging"
	"media-variants/internal/metrics"
)

// RunFunc performs one retry run for an asset.
type RunFunc func(ctx context.Context, assetID int64, attempt int) error

// Worker consumes due retry tasks. It implements suture.Service.
type Worker struct {
	sched *Scheduler
	run   RunFunc
	name  string
}

// NewWorker returns a Worker that drains sched's queue through run.
func NewWorker(sched *Scheduler, run RunFunc) *Worker {
	return &Worker{sched: sched, run: run, name: "retry-worker"}
}

// Serve recovers stale tasks, then polls until ctx is canceled.
func (w *Worker) Serve(ctx context.Context) error {
	w.recover(ctx)

	cfg := w.sched.cfg
	logging.Info("Retry worker started (poll interval: %v, lease: %v)", cfg.PollInterval, cfg.Lease)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.Drain(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logging.Info("Retry worker stopped")
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (w *Worker) String() string {
	return w.name
}

// Drain runs every task that is due now and returns how many were run.
func (w *Worker) Drain(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		tasks, err := w.sched.queue.ClaimDueRetries(ctx, w.sched.now(), w.sched.cfg.BatchSize)
		if err != nil {
			logging.Error("Failed to claim retry tasks: %v", err)
			break
		}
		if len(tasks) == 0 {
			break
		}
		for _, task := range tasks {
			metrics.RetriesFiredTotal.Inc()
			logging.Info("Running retry %d for asset %d", task.Attempt, task.AssetID)
			if err := w.run(ctx, task.AssetID, task.Attempt); err != nil {
				if ctx.Err() != nil {
					// Left running; lease recovery hands it back.
					return total
				}
				logging.Warn("Retry run for asset %d failed: %v", task.AssetID, err)
			}
			if err := w.sched.queue.CompleteRetry(ctx, task.ID); err != nil {
				logging.Error("Failed to complete retry task %s: %v", task.ID, err)
			}
			total++
		}
	}
	w.updateDepth(ctx)
	return total
}

func (w *Worker) recover(ctx context.Context) {
	cutoff := w.sched.now().Add(-w.sched.cfg.Lease)
	n, err := w.sched.queue.RecoverStaleRetries(ctx, cutoff)
	if err != nil {
		logging.Error("Failed to recover stale retry tasks: %v", err)
		return
	}
	if n > 0 {
		logging.Warn("Returned %d stale retry tasks to pending", n)
	}
}

func (w *Worker) updateDepth(ctx context.Context) {
	counts, err := w.sched.queue.CountRetries(ctx)
	if err != nil {
		return
	}
	metrics.RetryQueueDepth.Set(float64(counts[database.TaskPending]))
}

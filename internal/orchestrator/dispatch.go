package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"media-variants/internal/logging"
	"media-variants/internal/metrics"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Submit when no more jobs can be buffered.
var ErrQueueFull = errors.New("reprocess queue full")

const (
	defaultDispatchWorkers = 1
	defaultDispatchDepth   = 64
)

// Runner runs one pass for an asset. *Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, assetID int64, opts Options) (Report, error)
}

// Job is a queued run.
type Job struct {
	ID      string
	AssetID int64
	Options Options
	Queued  time.Time
}

// Dispatcher runs submitted jobs on its own goroutines, detached from the
// submitter. A run that has started is never canceled; stopping the
// dispatcher only stops new runs from being picked up.
type Dispatcher struct {
	runner  Runner
	workers int
	jobs    chan Job
}

// NewDispatcher creates a Dispatcher with the given worker count and queue
// depth. Non-positive values take the defaults.
func NewDispatcher(runner Runner, workers, depth int) *Dispatcher {
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	if depth <= 0 {
		depth = defaultDispatchDepth
	}
	return &Dispatcher{
		runner:  runner,
		workers: workers,
		jobs:    make(chan Job, depth),
	}
}

// Submit queues a run and returns immediately.
func (d *Dispatcher) Submit(assetID int64, opts Options) (Job, error) {
	job := Job{
		ID:      uuid.NewString(),
		AssetID: assetID,
		Options: opts,
		Queued:  time.Now(),
	}
	select {
	case d.jobs <- job:
		metrics.DispatchQueueDepth.Set(float64(len(d.jobs)))
		logging.Debug("Queued job %s for asset %d", job.ID, assetID)
		return job, nil
	default:
		return Job{}, ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet started.
func (d *Dispatcher) Pending() int {
	return len(d.jobs)
}

// Serve runs workers until ctx is canceled, then waits for in-flight runs.
// It implements suture.Service.
func (d *Dispatcher) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()
	if n := len(d.jobs); n > 0 {
		logging.Warn("Dispatcher stopped with %d queued job(s)", n)
	}
	return ctx.Err()
}

func (d *Dispatcher) work(ctx context.Context) {
	runCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.jobs:
			metrics.DispatchQueueDepth.Set(float64(len(d.jobs)))
			d.run(runCtx, job)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	metrics.DispatchWaitDuration.Observe(time.Since(job.Queued).Seconds())
	rep, err := d.runner.Run(ctx, job.AssetID, job.Options)
	if err != nil {
		logging.Error("Job %s for asset %d failed: %v", job.ID, job.AssetID, err)
		return
	}
	logging.Info("Job %s for asset %d: %s", job.ID, job.AssetID, rep.Outcome)
}

func (d *Dispatcher) String() string {
	return "reprocess-dispatcher"
}

package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

type dispatchCall struct {
	assetID int64
	opts    Options
	ctxErr  error
}

type blockingRunner struct {
	release chan struct{}
	calls   chan dispatchCall
}

func (r *blockingRunner) Run(ctx context.Context, assetID int64, opts Options) (Report, error) {
	<-r.release
	r.calls <- dispatchCall{assetID: assetID, opts: opts, ctxErr: ctx.Err()}
	return Report{AssetID: assetID, Outcome: OutcomeSuccess}, nil
}

func serveDispatcher(t *testing.T, d *Dispatcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestDispatcherRunsSubmittedJobs(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{}), calls: make(chan dispatchCall, 4)}
	close(r.release)
	d := NewDispatcher(r, 2, 4)
	serveDispatcher(t, d)

	job, err := d.Submit(9, Options{Force: true})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.ID == "" || job.AssetID != 9 {
		t.Errorf("Unexpected job: %+v", job)
	}

	select {
	case c := <-r.calls:
		if c.assetID != 9 || !c.opts.Force {
			t.Errorf("Unexpected run: %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the job to run")
	}
}

func TestDispatcherFinishesRunAfterStop(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{}), calls: make(chan dispatchCall, 1)}
	d := NewDispatcher(r, 1, 1)
	cancel, done := serveDispatcher(t, d)

	if _, err := d.Submit(3, Options{}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	// wait for the worker to pick the job up before stopping
	deadline := time.Now().Add(2 * time.Second)
	for d.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(r.release)

	c := <-r.calls
	if c.ctxErr != nil {
		t.Errorf("Expected in-flight run to keep a live context, got %v", c.ctxErr)
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Serve, got %v", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(&blockingRunner{}, 1, 2)

	for i := range 2 {
		if _, err := d.Submit(int64(i+1), Options{}); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	if _, err := d.Submit(3, Options{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if d.Pending() != 2 {
		t.Errorf("Expected 2 pending, got %d", d.Pending())
	}
}

func TestNewDispatcherDefaults(t *testing.T) {
	d := NewDispatcher(&blockingRunner{}, 0, -1)
	if d.workers != defaultDispatchWorkers {
		t.Errorf("Expected %d workers, got %d", defaultDispatchWorkers, d.workers)
	}
	if cap(d.jobs) != defaultDispatchDepth {
		t.Errorf("Expected depth %d, got %d", defaultDispatchDepth, cap(d.jobs))
	}
}

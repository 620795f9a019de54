package retry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-variants/internal/database"
	"media-variants/internal/mediatypes"
)

func setupQueue(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "retry.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func addAsset(t *testing.T, db *database.Database, path string) int64 {
	t.Helper()
	a, err := db.UpsertAsset(context.Background(), mediatypes.Asset{Path: path, MimeType: "image/png"})
	if err != nil {
		t.Fatalf("UpsertAsset failed: %v", err)
	}
	return a.ID
}

func TestBackoff(t *testing.T) {
	s := NewScheduler(nil, Config{Delay: time.Minute, MaxDelay: 10 * time.Minute})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{60, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := s.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(nil, Config{Delay: time.Hour, MaxDelay: time.Minute, MaxAttempts: -1})
	cfg := s.Config()
	if cfg.MaxDelay != time.Hour {
		t.Errorf("Expected MaxDelay raised to Delay, got %v", cfg.MaxDelay)
	}
	if cfg.MaxAttempts != 0 {
		t.Errorf("Expected negative MaxAttempts to mean unbounded, got %d", cfg.MaxAttempts)
	}
	if cfg.PollInterval != DefaultConfig().PollInterval {
		t.Errorf("Expected default poll interval, got %v", cfg.PollInterval)
	}
}

func TestScheduleIsIdempotentWhilePending(t *testing.T) {
	db := setupQueue(t)
	ctx := context.Background()
	id := addAsset(t, db, "/media/a.png")

	now := time.Unix(1_700_000_000, 0)
	s := NewScheduler(db, Config{Delay: time.Minute, MaxDelay: time.Hour})
	s.now = func() time.Time { return now }

	queued, err := s.Schedule(ctx, id, 1)
	if err != nil || !queued {
		t.Fatalf("Expected first schedule to queue, got %v, %v", queued, err)
	}
	queued, err = s.Schedule(ctx, id, 2)
	if err != nil {
		t.Fatalf("Second schedule failed: %v", err)
	}
	if queued {
		t.Error("Expected second schedule to be a no-op")
	}

	task, err := db.GetRetryTask(ctx, id)
	if err != nil {
		t.Fatalf("GetRetryTask failed: %v", err)
	}
	if task.Attempt != 1 {
		t.Errorf("Expected attempt 1 kept, got %d", task.Attempt)
	}
	if !task.DueAt.Equal(now.Add(time.Minute)) {
		t.Errorf("Expected due at %v, got %v", now.Add(time.Minute), task.DueAt)
	}
}

func TestScheduleRefusesBeyondMaxAttempts(t *testing.T) {
	db := setupQueue(t)
	id := addAsset(t, db, "/media/a.png")
	s := NewScheduler(db, Config{Delay: time.Minute, MaxAttempts: 3})

	if _, err := s.Schedule(context.Background(), id, 3); err != nil {
		t.Fatalf("Attempt 3 should schedule, got %v", err)
	}
	if err := s.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	_, err := s.Schedule(context.Background(), id, 4)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}
	if _, err := db.GetRetryTask(context.Background(), id); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected no task after exhaustion, got %v", err)
	}
}

func TestScheduleUnboundedWhenMaxAttemptsZero(t *testing.T) {
	db := setupQueue(t)
	id := addAsset(t, db, "/media/a.png")
	s := NewScheduler(db, Config{Delay: time.Minute, MaxDelay: time.Hour})

	if _, err := s.Schedule(context.Background(), id, 1000); err != nil {
		t.Errorf("Expected unbounded scheduling, got %v", err)
	}
}

func TestCancelWithoutTask(t *testing.T) {
	db := setupQueue(t)
	s := NewScheduler(db, Config{})
	if err := s.Cancel(context.Background(), 42); err != nil {
		t.Errorf("Cancel without a task should succeed, got %v", err)
	}
}

func TestWorkerDrainRunsDueTasks(t *testing.T) {
	db := setupQueue(t)
	ctx := context.Background()
	due := addAsset(t, db, "/media/due.png")
	later := addAsset(t, db, "/media/later.png")

	now := time.Unix(1_700_000_000, 0)
	s := NewScheduler(db, Config{Delay: time.Minute, MaxDelay: time.Hour})
	s.now = func() time.Time { return now }

	if _, err := db.EnqueueRetry(ctx, due, 2, now.Add(-time.Second)); err != nil {
		t.Fatalf("EnqueueRetry failed: %v", err)
	}
	if _, err := db.EnqueueRetry(ctx, later, 1, now.Add(time.Hour)); err != nil {
		t.Fatalf("EnqueueRetry failed: %v", err)
	}

	var mu sync.Mutex
	calls := map[int64]int{}
	w := NewWorker(s, func(_ context.Context, assetID int64, attempt int) error {
		mu.Lock()
		defer mu.Unlock()
		calls[assetID] = attempt
		return nil
	})

	if n := w.Drain(ctx); n != 1 {
		t.Fatalf("Expected 1 task run, got %d", n)
	}
	if calls[due] != 2 {
		t.Errorf("Expected asset %d run with attempt 2, got %v", due, calls)
	}
	if _, ok := calls[later]; ok {
		t.Error("Task not yet due should not run")
	}
	if _, err := db.GetRetryTask(ctx, due); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected completed task removed, got %v", err)
	}
	if _, err := db.GetRetryTask(ctx, later); err != nil {
		t.Errorf("Expected future task kept, got %v", err)
	}
}

func TestWorkerKeepsRescheduledTask(t *testing.T) {
	db := setupQueue(t)
	ctx := context.Background()
	id := addAsset(t, db, "/media/a.png")

	now := time.Unix(1_700_000_000, 0)
	s := NewScheduler(db, Config{Delay: time.Minute, MaxDelay: time.Hour})
	s.now = func() time.Time { return now }

	if _, err := db.EnqueueRetry(ctx, id, 1, now); err != nil {
		t.Fatalf("EnqueueRetry failed: %v", err)
	}

	w := NewWorker(s, func(ctx context.Context, assetID int64, attempt int) error {
		_, err := s.Schedule(ctx, assetID, attempt+1)
		return err
	})
	if n := w.Drain(ctx); n != 1 {
		t.Fatalf("Expected 1 task run, got %d", n)
	}

	task, err := db.GetRetryTask(ctx, id)
	if err != nil {
		t.Fatalf("Expected rescheduled task to survive completion, got %v", err)
	}
	if task.Attempt != 2 || task.State != database.TaskPending {
		t.Errorf("Expected pending attempt 2, got %s attempt %d", task.State, task.Attempt)
	}
}

func TestWorkerRecoversStaleTasks(t *testing.T) {
	db := setupQueue(t)
	ctx := context.Background()
	id := addAsset(t, db, "/media/a.png")

	now := time.Unix(1_700_000_000, 0)
	if _, err := db.EnqueueRetry(ctx, id, 1, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("EnqueueRetry failed: %v", err)
	}
	if _, err := db.ClaimDueRetries(ctx, now.Add(-2*time.Hour), 10); err != nil {
		t.Fatalf("ClaimDueRetries failed: %v", err)
	}

	s := NewScheduler(db, Config{Lease: time.Hour})
	s.now = func() time.Time { return now }
	w := NewWorker(s, func(context.Context, int64, int) error { return nil })
	w.recover(ctx)

	task, err := db.GetRetryTask(ctx, id)
	if err != nil {
		t.Fatalf("GetRetryTask failed: %v", err)
	}
	if task.State != database.TaskPending {
		t.Errorf("Expected stale task back to pending, got %s", task.State)
	}
}

func TestWorkerServeStopsOnCancel(t *testing.T) {
	db := setupQueue(t)
	s := NewScheduler(db, Config{PollInterval: 10 * time.Millisecond})
	w := NewWorker(s, func(context.Context, int64, int) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if w.String() != "retry-worker" {
		t.Errorf("Expected service name retry-worker, got %q", w.String())
	}
}

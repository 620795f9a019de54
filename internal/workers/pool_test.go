package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEachPreservesOrder(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results, ok := Each(context.Background(), 3, items, func(_ context.Context, v int) int {
		return v * v
	})

	for i, v := range items {
		if !ok[i] {
			t.Errorf("Expected item %d to run", i)
		}
		if results[i] != v*v {
			t.Errorf("Expected %d, got %d", v*v, results[i])
		}
	}
}

func TestEachBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	items := make([]int, 20)
	Each(context.Background(), 2, items, func(_ context.Context, _ int) struct{} {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return struct{}{}
	})

	if got := peak.Load(); got > 2 {
		t.Errorf("Expected at most 2 concurrent calls, got %d", got)
	}
}

func TestEachStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := Each(ctx, 1, []int{1, 2, 3}, func(_ context.Context, v int) int { return v })
	ran := 0
	for _, o := range ok {
		if o {
			ran++
		}
	}
	if ran != 0 {
		t.Errorf("Expected no items to run after cancel, got %d", ran)
	}
}

func TestEachCancelMidway(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items := []int{10, 20, 30, 40, 50, 60}
	results, ok := Each(ctx, 1, items, func(_ context.Context, v int) int {
		if v == 30 {
			cancel()
		}
		return v + 1
	})

	// with a single worker, everything up to the canceling item ran in order
	for i := 0; i < 3; i++ {
		if !ok[i] || results[i] != items[i]+1 {
			t.Errorf("Expected item %d to run with result %d, got ok=%v result=%d", i, items[i]+1, ok[i], results[i])
		}
	}
	for i := 4; i < len(items); i++ {
		if ok[i] {
			t.Errorf("Expected item %d to be skipped after cancel", i)
		}
		if results[i] != 0 {
			t.Errorf("Expected zero result for skipped item %d, got %d", i, results[i])
		}
	}
}

func TestEachEmpty(t *testing.T) {
	t.Parallel()

	results, ok := Each(context.Background(), 4, nil, func(_ context.Context, v int) int { return v })
	if len(results) != 0 || len(ok) != 0 {
		t.Errorf("Expected empty results, got %v %v", results, ok)
	}
}

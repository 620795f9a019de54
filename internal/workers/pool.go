package workers

import (
	"context"
	"sync"
)

// Each calls fn for every item using at most n goroutines. Items not yet
// started when ctx is canceled are skipped. Results are returned in input
// order; skipped items keep the zero value and ok=false.
func Each[T, R any](ctx context.Context, n int, items []T, fn func(context.Context, T) R) (results []R, ok []bool) {
	results = make([]R, len(items))
	ok = make([]bool, len(items))
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = fn(ctx, items[i])
				ok[i] = true
			}
		}()
	}

feed:
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return results, ok
}

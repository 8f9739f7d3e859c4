package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a new pool where each task respects context cancellation.
// Wait() will only return the first error seen.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// NewIsolatedPool returns a result pool where a failing task does not cancel
// its siblings. Results of failed tasks are dropped and Wait() joins every error.
func NewIsolatedPool[T any](ctx context.Context, maxGoroutines int) *pool.ResultContextPool[T] {
	return pool.NewWithResults[T]().
		WithContext(ctx).
		WithMaxGoroutines(maxGoroutines)
}

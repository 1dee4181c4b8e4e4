// Package pool runs independent tasks with a fixed upper bound on concurrency.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one task. Err is set exactly when OK is false.
type Result[R any] struct {
	OK    bool
	Value R
	Err   error
}

// PanicError is the error recorded for a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// RunBounded applies task to every item with at most limit tasks in flight
// and returns one Result per item in input order. A limit below 1 is treated
// as 1.
//
// Workers pull the next unclaimed index from a shared counter, so a slow item
// never holds up the rest of the queue. A failing or panicking task is
// recorded in its slot and never stops the other workers. Cancellation is the
// task's concern: RunBounded itself never abandons an item.
func RunBounded[T, R any](ctx context.Context, items []T, limit int, task func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}
	workers := min(max(limit, 1), len(items))

	var next atomic.Int64
	var g errgroup.Group

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= len(items) {
					return nil
				}
				results[i] = runOne(ctx, items[i], task)
			}
		})
	}

	// Workers never return an error.
	_ = g.Wait()
	return results
}

func runOne[T, R any](ctx context.Context, item T, task func(context.Context, T) (R, error)) (res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[R]{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()

	v, err := task(ctx, item)
	if err != nil {
		return Result[R]{Err: err}
	}
	return Result[R]{OK: true, Value: v}
}

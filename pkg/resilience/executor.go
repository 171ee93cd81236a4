// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jllopis/agentnet/pkg/errors"
)

// Result is the outcome of processing one item.
type Result[T any] struct {
	// Index is the position of the item in the input slice.
	Index int
	Value T
	Err   error
}

// OK reports whether the item was processed without error.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// ProcessOptions configures Process.
type ProcessOptions struct {
	// MaxConcurrency bounds in-flight processor calls. Values < 1 mean 1.
	MaxConcurrency int

	// PreserveOrder returns results in input order instead of completion order.
	PreserveOrder bool

	// Retry, if set, wraps every processor call in the retry policy.
	Retry *RetryConfig
}

// Process runs processor over every item with at most MaxConcurrency calls in
// flight. A failing item never aborts the batch: its Result carries the error
// and a zero Value. Panics in processor are recovered into errors.
// Canceling ctx stops new items from starting; they report CONTEXT_LOST.
func Process[I, O any](ctx context.Context, items []I, processor func(context.Context, I) (O, error), opts ProcessOptions) []Result[O] {
	if len(items) == 0 {
		return nil
	}
	limit := opts.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}
	sem := semaphore.NewWeighted(int64(limit))

	run := func(ctx context.Context, item I) (O, error) {
		if opts.Retry != nil {
			return Retry(ctx, *opts.Retry, func(ctx context.Context) (O, error) {
				return safeCall(ctx, item, processor)
			})
		}
		return safeCall(ctx, item, processor)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		ordered = make([]Result[O], len(items))
		arrival = make([]Result[O], 0, len(items))
	)
	collect := func(r Result[O]) {
		mu.Lock()
		ordered[r.Index] = r
		arrival = append(arrival, r)
		mu.Unlock()
	}

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Everything from here on never starts.
			for j := i; j < len(items); j++ {
				collect(Result[O]{Index: j, Err: errors.New(errors.CodeContextLost, "batch canceled before item started", err)})
			}
			break
		}
		wg.Add(1)
		go func(i int, item I) {
			defer wg.Done()
			defer sem.Release(1)
			value, err := run(ctx, item)
			collect(Result[O]{Index: i, Value: value, Err: err})
		}(i, item)
	}
	wg.Wait()

	if opts.PreserveOrder {
		return ordered
	}
	return arrival
}

// Values returns the successful values of results, preserving their order.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}

func safeCall[I, O any](ctx context.Context, item I, processor func(context.Context, I) (O, error)) (value O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.CodeInternal, "processor panicked", fmt.Errorf("%v", r))
		}
	}()
	return processor(ctx, item)
}

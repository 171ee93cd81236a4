// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
)

// Fallback produces a value after the primary operation failed with err.
type Fallback[T any] func(ctx context.Context, err error) (T, error)

// Static returns a fallback that always yields value.
func Static[T any](value T) Fallback[T] {
	return func(context.Context, error) (T, error) {
		return value, nil
	}
}

// WithFallback runs primary and, on error, tries each fallback in order.
// Every fallback receives the most recent error. The last error is returned
// if all of them fail.
func WithFallback[T any](ctx context.Context, primary func(context.Context) (T, error), fallbacks ...Fallback[T]) (T, error) {
	value, err := primary(ctx)
	if err == nil {
		return value, nil
	}
	for _, fb := range fallbacks {
		if ctx.Err() != nil {
			break
		}
		var fbErr error
		value, fbErr = fb(ctx, err)
		if fbErr == nil {
			return value, nil
		}
		err = fbErr
	}
	var zero T
	return zero, err
}

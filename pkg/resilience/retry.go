// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// RetryCount is the number of retries after the first attempt.
	RetryCount int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration

	// BackoffFactor is the geometric growth factor (default 2.0).
	BackoffFactor float64

	// Jitter multiplies each delay by a uniform factor in [0.5, 1.5).
	Jitter bool

	// RetryOn selects the errors worth retrying.
	// If nil, isRetryableDefault is used.
	RetryOn func(error) bool

	// OnRetry is called before sleeping for the given attempt (0-based).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		RetryCount:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// WithRetryCount returns a new config with RetryCount set.
func (rc RetryConfig) WithRetryCount(n int) RetryConfig {
	rc.RetryCount = n
	return rc
}

// WithInitialBackoff returns a new config with InitialBackoff set.
func (rc RetryConfig) WithInitialBackoff(d time.Duration) RetryConfig {
	rc.InitialBackoff = d
	return rc
}

// WithMaxBackoff returns a new config with MaxBackoff set.
func (rc RetryConfig) WithMaxBackoff(d time.Duration) RetryConfig {
	rc.MaxBackoff = d
	return rc
}

// WithRetryOn returns a new config with RetryOn set.
func (rc RetryConfig) WithRetryOn(fn func(error) bool) RetryConfig {
	rc.RetryOn = fn
	return rc
}

// WithoutJitter returns a new config with jitter disabled.
func (rc RetryConfig) WithoutJitter() RetryConfig {
	rc.Jitter = false
	return rc
}

// Do executes fn with retry logic. When retries are exhausted the last error
// is returned unchanged.
func (rc RetryConfig) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Retry(ctx, rc, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry executes fn with the retry policy in rc and returns its value.
func Retry[T any](ctx context.Context, rc RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	if rc.RetryCount < 0 {
		rc.RetryCount = 0
	}
	retryOn := rc.RetryOn
	if retryOn == nil {
		retryOn = isRetryableDefault
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= rc.RetryCount; attempt++ {
		if attempt > 0 {
			delay := rc.Backoff(attempt - 1)
			if rc.OnRetry != nil {
				rc.OnRetry(attempt-1, delay, lastErr)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, errors.New(errors.CodeContextLost, "context canceled during retry", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("last_error", lastErr.Error())
			case <-timer.C:
			}
		}

		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !retryOn(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// Backoff computes the delay before retry number attempt (0-based):
// InitialBackoff * BackoffFactor^attempt capped at MaxBackoff, optionally jittered.
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	factor := rc.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	delay := float64(rc.InitialBackoff) * math.Pow(factor, float64(attempt))
	if rc.MaxBackoff > 0 && delay > float64(rc.MaxBackoff) {
		delay = float64(rc.MaxBackoff)
	}
	if rc.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// isRetryableDefault retries transient failures. Typed errors use their
// Recoverable flag; context errors and open circuits are never retried.
func isRetryableDefault(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *errors.Error
	if stderrors.As(err, &ae) {
		return ae.Recoverable
	}
	return true
}

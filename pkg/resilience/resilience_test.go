// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	aerrors "github.com/jllopis/agentnet/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	rc := DefaultRetryConfig().WithInitialBackoff(time.Millisecond).WithoutJitter()
	err := rc.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustedReturnsLastError(t *testing.T) {
	attempts := 0
	last := errors.New("last")
	rc := DefaultRetryConfig().WithRetryCount(2).WithInitialBackoff(time.Millisecond)
	err := rc.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts == 3 {
			return last
		}
		return errors.New("earlier")
	})
	if err != last {
		t.Fatalf("expected the last error unchanged, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryOnlyDesignatedErrors(t *testing.T) {
	attempts := 0
	rc := DefaultRetryConfig().WithInitialBackoff(time.Millisecond).WithRetryOn(func(err error) bool {
		return errors.Is(err, errBoom)
	})
	err := rc.Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("not retryable")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("expected a single attempt, got %d (err=%v)", attempts, err)
	}
}

func TestRetryTypedErrorsUseRecoverableFlag(t *testing.T) {
	attempts := 0
	rc := DefaultRetryConfig().WithInitialBackoff(time.Millisecond)
	_ = rc.Do(context.Background(), func(context.Context) error {
		attempts++
		return aerrors.Validation("bad input")
	})
	if attempts != 1 {
		t.Fatalf("validation errors must not be retried, got %d attempts", attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := DefaultRetryConfig().WithInitialBackoff(200 * time.Millisecond).WithoutJitter()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := rc.Do(ctx, failing)
	if !aerrors.HasCode(err, aerrors.CodeContextLost) {
		t.Fatalf("expected CONTEXT_LOST, got %v", err)
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	rc := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := rc.Backoff(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	rc := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2, Jitter: true}
	for i := 0; i < 200; i++ {
		d := rc.Backoff(1)
		if d < 100*time.Millisecond || d >= 300*time.Millisecond {
			t.Fatalf("jittered delay %v outside [0.5, 1.5) of 200ms", d)
		}
	}
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:              "test",
		FailureThreshold:  3,
		RecoveryTimeout:   10 * time.Second,
		HalfOpenMaxTrials: 2,
		ResetTimeout:      time.Hour,
		Clock:             clock.Now,
	})
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), failing, nil); err != errBoom {
			t.Fatalf("call %d: expected errBoom, got %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	invoked := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	}, nil)
	if invoked {
		t.Fatalf("wrapped function must not run while open")
	}
	if !aerrors.HasCode(err, aerrors.CodeCircuitOpen) {
		t.Fatalf("expected CIRCUIT_OPEN, got %v", err)
	}
}

func TestCircuitBreakerFallbackOnRejection(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	cb.Open()

	var seen error
	err := cb.Execute(context.Background(), succeeding, func(_ context.Context, err error) error {
		seen = err
		return nil
	})
	if err != nil {
		t.Fatalf("fallback result expected, got %v", err)
	}
	if !aerrors.HasCode(seen, aerrors.CodeCircuitOpen) {
		t.Fatalf("fallback should receive CIRCUIT_OPEN, got %v", seen)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing, nil)
	_ = cb.Execute(ctx, failing, nil)
	_ = cb.Execute(ctx, succeeding, nil)
	_ = cb.Execute(ctx, failing, nil)
	_ = cb.Execute(ctx, failing, nil)
	if cb.State() != StateClosed {
		t.Fatalf("non-consecutive failures must not open the breaker")
	}
}

func TestCircuitBreakerHalfOpenSingleTrial(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	ctx := context.Background()
	cb.Open()

	clock.Advance(11 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		}, nil)
	}()
	<-entered

	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", cb.State())
	}
	if err := cb.Execute(ctx, succeeding, nil); !aerrors.HasCode(err, aerrors.CodeCircuitOpen) {
		t.Fatalf("second concurrent trial must be rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial failed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("one success of two must keep half_open, got %s", cb.State())
	}
	if err := cb.Execute(ctx, succeeding, nil); err != nil {
		t.Fatalf("second trial: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after %d trials, got %s", 2, cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	ctx := context.Background()
	cb.Open()
	clock.Advance(11 * time.Second)

	if err := cb.Execute(ctx, failing, nil); err != errBoom {
		t.Fatalf("expected trial to run and fail, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open after half-open failure, got %s", cb.State())
	}
	if err := cb.Execute(ctx, succeeding, nil); !aerrors.HasCode(err, aerrors.CodeCircuitOpen) {
		t.Fatalf("expected rejection right after reopening, got %v", err)
	}
}

func TestCircuitBreakerResetTimeoutSafetyValve(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "valve",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
		ResetTimeout:     time.Minute,
		Clock:            clock.Now,
	})
	ctx := context.Background()
	_ = cb.Execute(ctx, failing, nil)
	if cb.State() != StateOpen {
		t.Fatalf("expected open")
	}
	clock.Advance(2 * time.Minute)
	if err := cb.Execute(ctx, succeeding, nil); err != nil {
		t.Fatalf("expected forced reset to let the call through, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled }, nil)
	}
	if cb.State() != StateClosed {
		t.Fatalf("cancellations must not trip the breaker")
	}
}

func TestCallTyped(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	v, err := Call(context.Background(), cb, func(context.Context) (string, error) { return "ok", nil }, nil)
	if err != nil || v != "ok" {
		t.Fatalf("unexpected %q %v", v, err)
	}
	cb.Open()
	v, err = Call(context.Background(), cb, func(context.Context) (string, error) { return "ok", nil },
		func(context.Context, error) (string, error) { return "fallback", nil })
	if err != nil || v != "fallback" {
		t.Fatalf("expected fallback, got %q %v", v, err)
	}
}

func TestRegistryReusesBreakers(t *testing.T) {
	var transitions []string
	reg := NewRegistry(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to CircuitBreakerState) {
			transitions = append(transitions, name+":"+string(to))
		},
	}, nil)
	a := reg.Get("agent:a")
	if reg.Get("agent:a") != a {
		t.Fatalf("expected the same breaker")
	}
	_ = a.Execute(context.Background(), failing, nil)
	if len(transitions) != 1 || transitions[0] != "agent:a:open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	reg.Get("agent:b")
	snaps := reg.Snapshots()
	if len(snaps) != 2 || snaps[0].Name != "agent:a" || snaps[0].State != StateOpen {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !aerrors.HasCode(err, aerrors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if err := WithTimeout(context.Background(), 0, succeeding); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWithFallbackChain(t *testing.T) {
	var calls []string
	v, err := WithFallback(context.Background(),
		func(context.Context) (string, error) { calls = append(calls, "primary"); return "", errBoom },
		func(_ context.Context, err error) (string, error) {
			calls = append(calls, "second")
			return "", errors.New("second failed")
		},
		Static("static"),
	)
	if err != nil || v != "static" {
		t.Fatalf("expected static value, got %q %v", v, err)
	}
	if len(calls) != 2 {
		t.Fatalf("unexpected calls %v", calls)
	}
}

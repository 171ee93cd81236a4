// SPDX-License-Identifier: Apache-2.0
// Package resilience provides circuit breaking, retry with backoff, token-bucket
// rate limiting and bounded concurrent execution for agentnet.
package resilience

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed means the circuit breaker is working normally.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen means the circuit breaker is rejecting calls.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen means the circuit breaker is letting a trial call through.
	StateHalfOpen CircuitBreakerState = "half_open"
)

// Gauge maps the state to the value exported by the breaker state metric
// (0=open, 1=half-open, 2=closed).
func (s CircuitBreakerState) Gauge() int64 {
	switch s {
	case StateOpen:
		return 0
	case StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name is the circuit breaker identifier for logging/metrics.
	Name string

	// FailureThreshold is the number of consecutive failures in closed state
	// before the circuit opens.
	FailureThreshold int

	// RecoveryTimeout is how long after the last failure an open circuit
	// waits before allowing a half-open trial.
	RecoveryTimeout time.Duration

	// HalfOpenMaxTrials is the number of consecutive half-open successes
	// needed to close the circuit.
	HalfOpenMaxTrials int

	// ResetTimeout forces the breaker back to closed when it has stayed in a
	// non-closed state longer than this. Zero disables the safety valve.
	ResetTimeout time.Duration

	// IsFailure decides whether an error counts against the breaker.
	// If nil, every error except context cancellation counts.
	IsFailure func(error) bool

	// OnStateChange is invoked after every transition, outside the lock.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultCircuitBreakerConfig returns the defaults used for per-agent breakers.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenMaxTrials: 2,
		ResetTimeout:      5 * time.Minute,
	}
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Name            string              `json:"name"`
	State           CircuitBreakerState `json:"state"`
	Failures        int                 `json:"failures"`
	Successes       int                 `json:"successes"`
	LastFailure     time.Time           `json:"last_failure,omitempty"`
	LastStateChange time.Time           `json:"last_state_change,omitempty"`
}

// CircuitBreaker prevents cascading failures using the circuit breaker pattern.
// The lock is never held while the protected function runs.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitBreakerState
	failures        int
	successes       int
	trialInFlight   bool
	lastFailure     time.Time
	lastStateChange time.Time
	leftClosedAt    time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.HalfOpenMaxTrials < 1 {
		config.HalfOpenMaxTrials = 1
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool {
			return !stderrors.Is(err, context.Canceled)
		}
	}
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: config.Clock(),
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs fn if the breaker allows it and records the outcome.
// When the call is rejected, fallback is invoked with a CIRCUIT_OPEN error if
// given; otherwise that error is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error, fallback func(context.Context, error) error) error {
	if err := cb.acquire(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// Call is the typed counterpart of Execute.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	var zero T
	if err := cb.acquire(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return zero, err
	}
	value, err := fn(ctx)
	cb.record(err)
	return value, err
}

// acquire decides whether a call may proceed and performs time-driven transitions.
func (cb *CircuitBreaker) acquire() error {
	var transitions [][2]CircuitBreakerState

	cb.mu.Lock()
	now := cb.config.Clock()

	if cb.state != StateClosed && cb.config.ResetTimeout > 0 && now.Sub(cb.leftClosedAt) > cb.config.ResetTimeout {
		transitions = append(transitions, cb.transition(StateClosed, now))
	}

	if cb.state == StateOpen && now.Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
		transitions = append(transitions, cb.transition(StateHalfOpen, now))
	}

	var err error
	switch cb.state {
	case StateOpen:
		err = errors.CircuitOpen(cb.config.Name).WithContext("state", string(StateOpen))
	case StateHalfOpen:
		if cb.trialInFlight {
			err = errors.CircuitOpen(cb.config.Name).WithContext("state", string(StateHalfOpen))
		} else {
			cb.trialInFlight = true
		}
	}
	cb.mu.Unlock()

	cb.notify(transitions)
	return err
}

// record updates counters and state from the outcome of a call.
func (cb *CircuitBreaker) record(callErr error) {
	var transitions [][2]CircuitBreakerState

	cb.mu.Lock()
	now := cb.config.Clock()
	failed := callErr != nil && cb.config.IsFailure(callErr)

	switch cb.state {
	case StateClosed:
		if failed {
			cb.failures++
			cb.lastFailure = now
			if cb.failures >= cb.config.FailureThreshold {
				transitions = append(transitions, cb.transition(StateOpen, now))
			}
		} else if callErr == nil {
			cb.failures = 0
		}
	case StateHalfOpen:
		cb.trialInFlight = false
		if failed {
			cb.lastFailure = now
			transitions = append(transitions, cb.transition(StateOpen, now))
		} else if callErr == nil {
			cb.successes++
			if cb.successes >= cb.config.HalfOpenMaxTrials {
				transitions = append(transitions, cb.transition(StateClosed, now))
			}
		}
	case StateOpen:
		// A call admitted before a concurrent transition to open; only keep the
		// failure time fresh.
		if failed {
			cb.lastFailure = now
		}
	}
	cb.mu.Unlock()

	cb.notify(transitions)
}

// transition changes state and resets counters. Must be called under lock.
func (cb *CircuitBreaker) transition(to CircuitBreakerState, now time.Time) [2]CircuitBreakerState {
	from := cb.state
	if from == StateClosed && to != StateClosed {
		cb.leftClosedAt = now
	}
	cb.state = to
	cb.lastStateChange = now
	cb.failures = 0
	cb.successes = 0
	cb.trialInFlight = false
	return [2]CircuitBreakerState{from, to}
}

func (cb *CircuitBreaker) notify(transitions [][2]CircuitBreakerState) {
	if cb.config.OnStateChange == nil {
		return
	}
	for _, t := range transitions {
		if t[0] != t[1] {
			cb.config.OnStateChange(cb.config.Name, t[0], t[1])
		}
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a copy of the breaker's counters and state.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		Name:            cb.config.Name,
		State:           cb.state,
		Failures:        cb.failures,
		Successes:       cb.successes,
		LastFailure:     cb.lastFailure,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.transition(StateClosed, cb.config.Clock())
	cb.mu.Unlock()
	cb.notify([][2]CircuitBreakerState{t})
}

// Open manually forces the circuit breaker to open state.
func (cb *CircuitBreaker) Open() {
	cb.mu.Lock()
	now := cb.config.Clock()
	t := cb.transition(StateOpen, now)
	cb.lastFailure = now
	cb.mu.Unlock()
	cb.notify([][2]CircuitBreakerState{t})
}

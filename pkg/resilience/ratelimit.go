// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
)

// BucketSpec describes a token bucket's shape.
type BucketSpec struct {
	// Capacity is the maximum number of tokens the bucket holds.
	Capacity float64

	// RefillRate is the number of tokens added per RefillInterval.
	RefillRate float64

	// RefillInterval is the period over which RefillRate tokens are added.
	RefillInterval time.Duration
}

// Validate checks the spec is usable.
func (s BucketSpec) Validate() error {
	if s.Capacity <= 0 {
		return errors.Validation("bucket capacity must be positive")
	}
	if s.RefillRate <= 0 {
		return errors.Validation("bucket refill rate must be positive")
	}
	if s.RefillInterval <= 0 {
		return errors.Validation("bucket refill interval must be positive")
	}
	return nil
}

// Decision is the outcome of a single check-and-consume.
type Decision struct {
	Allowed   bool
	Remaining float64
	Wait      time.Duration
}

// BucketStore performs the refill, decide and consume sequence for a key as
// one atomic step. Implementations shared by several processes must do it
// server side.
type BucketStore interface {
	Take(ctx context.Context, key string, spec BucketSpec, tokens float64, now time.Time) (Decision, error)
}

// refill computes the lazily refilled bucket and the decision for a request.
// It is the reference algorithm mirrored by the Redis script.
func refill(spec BucketSpec, tokens float64, last, now time.Time, requested float64) (float64, Decision) {
	if now.After(last) {
		elapsed := float64(now.Sub(last))
		tokens = math.Min(spec.Capacity, tokens+elapsed/float64(spec.RefillInterval)*spec.RefillRate)
	}
	if tokens >= requested {
		tokens -= requested
		return tokens, Decision{Allowed: true, Remaining: tokens}
	}
	missing := requested - tokens
	wait := time.Duration(math.Ceil(missing / spec.RefillRate * float64(spec.RefillInterval)))
	return tokens, Decision{Allowed: false, Remaining: tokens, Wait: wait}
}

type memoryBucket struct {
	tokens float64
	last   time.Time
}

// MemoryBucketStore keeps buckets in process memory. It is linearizable
// within one process only.
type MemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

// NewMemoryBucketStore creates an empty in-process bucket store.
func NewMemoryBucketStore() *MemoryBucketStore {
	return &MemoryBucketStore{buckets: make(map[string]*memoryBucket)}
}

// Take implements BucketStore.
func (s *MemoryBucketStore) Take(_ context.Context, key string, spec BucketSpec, tokens float64, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		b = &memoryBucket{tokens: spec.Capacity, last: now}
		s.buckets[key] = b
	}
	remaining, decision := refill(spec, b.tokens, b.last, now, tokens)
	b.tokens = remaining
	if now.After(b.last) {
		b.last = now
	}
	return decision, nil
}

// LimiterConfig configures a TokenBucketLimiter.
type LimiterConfig struct {
	BucketSpec

	// MaxWait caps how long Wait blocks before retrying once.
	MaxWait time.Duration

	// KeyPrefix namespaces bucket keys in the store.
	KeyPrefix string

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// OnDenied is called for every denied request.
	OnDenied func(key string, wait time.Duration)
}

// TokenBucketLimiter applies a token bucket per caller key against a shared store.
type TokenBucketLimiter struct {
	store  BucketStore
	config LimiterConfig
	logger *slog.Logger
}

// NewTokenBucketLimiter creates a limiter backed by store.
func NewTokenBucketLimiter(store BucketStore, config LimiterConfig, logger *slog.Logger) (*TokenBucketLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("bucket store is nil")
	}
	if err := config.BucketSpec.Validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenBucketLimiter{store: store, config: config, logger: logger}, nil
}

// Allow consumes tokens for key if available. A denied decision carries the
// minimal wait until enough tokens have refilled.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string, tokens float64) (Decision, error) {
	if tokens <= 0 {
		tokens = 1
	}
	if tokens > l.config.Capacity {
		return Decision{}, errors.Validation("requested %v tokens exceeds bucket capacity %v", tokens, l.config.Capacity)
	}
	d, err := l.store.Take(ctx, l.config.KeyPrefix+key, l.config.BucketSpec, tokens, l.config.Clock())
	if err != nil {
		return Decision{}, errors.New(errors.CodeStoreError, "rate limit store failed", err).
			WithContext("key", key).
			WithRecoverable(true)
	}
	if !d.Allowed {
		l.logger.DebugContext(ctx, "resilience.ratelimit.denied",
			slog.String("key", key),
			slog.Duration("wait", d.Wait),
		)
		if l.config.OnDenied != nil {
			l.config.OnDenied(key, d.Wait)
		}
	}
	return d, nil
}

// Check consumes one token for key and returns a RATE_LIMITED error carrying
// the wait hint when the budget is exhausted.
func (l *TokenBucketLimiter) Check(ctx context.Context, key string) error {
	d, err := l.Allow(ctx, key, 1)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return errors.RateLimited(key, d.Wait)
	}
	return nil
}

// Wait is like Check but, when denied with a wait no longer than MaxWait,
// sleeps for the computed wait and retries once.
func (l *TokenBucketLimiter) Wait(ctx context.Context, key string, tokens float64) error {
	d, err := l.Allow(ctx, key, tokens)
	if err != nil {
		return err
	}
	if d.Allowed {
		return nil
	}
	if l.config.MaxWait <= 0 || d.Wait > l.config.MaxWait {
		return errors.RateLimited(key, d.Wait)
	}
	timer := time.NewTimer(d.Wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return errors.New(errors.CodeContextLost, "context canceled waiting for rate limit", ctx.Err())
	case <-timer.C:
	}
	d, err = l.Allow(ctx, key, tokens)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return errors.RateLimited(key, d.Wait)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jllopis/agentnet/pkg/errors"
)

// HealthRegistry runs the registered checkers of the backing stores (Redis,
// SQLite, Qdrant, providers) and caches their results for a short TTL.
type HealthRegistry struct {
	checkers map[string]HealthChecker
	mu       sync.RWMutex
	cache    map[string]HealthResult
	cacheTTL time.Duration
}

// NewHealthRegistry creates a registry. A zero cacheTTL defaults to 10s.
func NewHealthRegistry(cacheTTL time.Duration) *HealthRegistry {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &HealthRegistry{
		checkers: make(map[string]HealthChecker),
		cache:    make(map[string]HealthResult),
		cacheTTL: cacheTTL,
	}
}

// Register registers a health checker for a component.
func (p *HealthRegistry) Register(name string, checker HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkers[name] = checker
	delete(p.cache, name)
}

// Check checks the health of a specific component.
func (p *HealthRegistry) Check(ctx context.Context, name string) (HealthResult, error) {
	p.mu.RLock()
	checker, exists := p.checkers[name]
	cached, hit := p.cache[name]
	p.mu.RUnlock()

	if !exists {
		return HealthResult{}, errors.NotFound("health checker", name)
	}
	if hit && time.Since(cached.LastCheck) < p.cacheTTL {
		return cached, nil
	}

	result := checker.Check(ctx)
	result.Component = name
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	p.mu.Lock()
	p.cache[name] = result
	p.mu.Unlock()
	return result, nil
}

// CheckAll checks every registered component concurrently. The overall
// status is the worst individual status. Results are sorted by component.
func (p *HealthRegistry) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	p.mu.RLock()
	names := make([]string, 0, len(p.checkers))
	for name := range p.checkers {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)

	results := make([]HealthResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			r, err := p.Check(gctx, name)
			if err != nil {
				r = HealthResult{Status: HealthUnhealthy, Component: name, Error: err, Message: err.Error(), LastCheck: time.Now()}
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	overall := HealthHealthy
	for _, r := range results {
		switch r.Status {
		case HealthUnhealthy:
			overall = HealthUnhealthy
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}
	return results, overall
}

// FunctionHealthChecker wraps a function as a health checker.
type FunctionHealthChecker struct {
	fn func(ctx context.Context) HealthResult
}

// NewFunctionHealthChecker creates a health checker from a function.
func NewFunctionHealthChecker(fn func(ctx context.Context) HealthResult) *FunctionHealthChecker {
	return &FunctionHealthChecker{fn: fn}
}

// Check calls the underlying function.
func (f *FunctionHealthChecker) Check(ctx context.Context) HealthResult {
	result := f.fn(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	return result
}

// PingChecker reports a dependency healthy when ping succeeds within
// timeout and unhealthy otherwise.
func PingChecker(timeout time.Duration, ping func(ctx context.Context) error) HealthChecker {
	return NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := ping(ctx); err != nil {
			return HealthResult{Status: HealthUnhealthy, Message: err.Error(), Error: err}
		}
		return HealthResult{Status: HealthHealthy, Message: "ok"}
	})
}

// StaticChecker always reports status. Used for components that are
// in-process and cannot fail independently.
func StaticChecker(status HealthStatus, message string) HealthChecker {
	return NewFunctionHealthChecker(func(context.Context) HealthResult {
		return HealthResult{Status: status, Message: message}
	})
}

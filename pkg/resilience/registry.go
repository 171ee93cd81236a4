// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Registry hands out one CircuitBreaker per protected callee name.
// Breakers are created lazily from the template config.
type Registry struct {
	mu       sync.Mutex
	template CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
	logger   *slog.Logger
}

// NewRegistry creates a registry whose breakers share template's thresholds.
// template.Name is ignored; template.OnStateChange is chained after logging.
func NewRegistry(template CircuitBreakerConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		template: template,
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cfg := r.template
	cfg.Name = name
	hook := r.template.OnStateChange
	logger := r.logger
	cfg.OnStateChange = func(name string, from, to CircuitBreakerState) {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "resilience.breaker.transition",
			slog.String("breaker", name),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		if hook != nil {
			hook(name, from, to)
		}
	}
	cb := NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// Remove drops the breaker for name, e.g. when an agent is deleted.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}

// Snapshots returns the state of every breaker ordered by name.
func (r *Registry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

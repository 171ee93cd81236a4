// Package runtime supervises the background work of an agentnet process:
// memory rotation and pruning, network retention and any other periodic
// sweep registered by the caller.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Runtime defines the minimal lifecycle for background work.
type Runtime interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// LocalRuntime runs registered sweeps in-process, one goroutine per sweep.
type LocalRuntime struct {
	mu      sync.Mutex
	started bool
	tracer  trace.Tracer
	logger  *slog.Logger
	sweeps  []Sweep
	running []*sweeper
	onSweep func(name string, result SweepResult)
}

// NewLocal creates a new LocalRuntime instance.
func NewLocal(logger *slog.Logger) *LocalRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRuntime{
		tracer: otel.Tracer("agentnet/runtime"),
		logger: logger,
	}
}

// AddSweep registers a sweep. Sweeps added after Start run from the next Start.
func (r *LocalRuntime) AddSweep(s Sweep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps = append(r.sweeps, s)
}

// OnSweep installs a hook called after every sweep tick, successful or not.
func (r *LocalRuntime) OnSweep(fn func(name string, result SweepResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSweep = fn
}

// Start launches every registered sweep.
func (r *LocalRuntime) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("runtime already started")
	}
	r.started = true
	for _, s := range r.sweeps {
		if s.Interval <= 0 || s.Run == nil {
			r.logger.Info("runtime.sweeper.disabled", slog.String("sweep", s.Name))
			continue
		}
		sw := newSweeper(s, r.tracer, r.logger, r.onSweep)
		sw.start()
		r.running = append(r.running, sw)
	}
	return nil
}

// Stop halts every sweep and waits for in-flight ticks to finish.
func (r *LocalRuntime) Stop(_ context.Context) error {
	r.mu.Lock()
	running := r.running
	r.running = nil
	r.started = false
	r.mu.Unlock()
	for _, sw := range running {
		sw.stop()
	}
	return nil
}

// RunOnce executes the named sweep immediately with the same error boundary
// as a scheduled tick.
func (r *LocalRuntime) RunOnce(ctx context.Context, name string) (SweepResult, error) {
	r.mu.Lock()
	var found *Sweep
	for i := range r.sweeps {
		if r.sweeps[i].Name == name {
			found = &r.sweeps[i]
			break
		}
	}
	hook := r.onSweep
	r.mu.Unlock()
	if found == nil {
		return SweepResult{}, errors.New("unknown sweep " + name)
	}
	sw := newSweeper(*found, r.tracer, r.logger, hook)
	res := sw.tick(ctx)
	return res, res.Err
}

func traceIDs(span trace.Span) (string, string) {
	sc := span.SpanContext()
	return sc.TraceID().String(), sc.SpanID().String()
}

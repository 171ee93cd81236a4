package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Sweep is a periodic maintenance job. Run returns how many items it touched.
type Sweep struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single tick. Zero means no per-tick timeout.
	Timeout time.Duration
	Run     func(ctx context.Context) (int, error)
}

// SweepResult describes one tick of a sweep.
type SweepResult struct {
	Affected int
	Duration time.Duration
	Err      error
}

type sweeper struct {
	sweep  Sweep
	tracer trace.Tracer
	logger *slog.Logger
	hook   func(string, SweepResult)

	cancel context.CancelFunc
	done   chan struct{}
}

func newSweeper(s Sweep, tracer trace.Tracer, logger *slog.Logger, hook func(string, SweepResult)) *sweeper {
	initSweepMetrics()
	return &sweeper{sweep: s, tracer: tracer, logger: logger, hook: hook}
}

func (s *sweeper) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.sweep.Interval)
		defer ticker.Stop()
		s.logger.Info("runtime.sweeper.start",
			slog.String("sweep", s.sweep.Name),
			slog.Duration("interval", s.sweep.Interval),
		)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("runtime.sweeper.stop", slog.String("sweep", s.sweep.Name))
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *sweeper) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// tick runs the sweep once. Errors and panics are logged and recorded; they
// never stop the ticker.
func (s *sweeper) tick(ctx context.Context) (res SweepResult) {
	start := time.Now()
	sweepCtx := ctx
	var cancel context.CancelFunc
	if s.sweep.Timeout > 0 {
		sweepCtx, cancel = context.WithTimeout(ctx, s.sweep.Timeout)
		defer cancel()
	}
	sweepCtx, span := s.tracer.Start(sweepCtx, "runtime.sweep",
		trace.WithAttributes(
			attribute.String("agentnet.sweep.name", s.sweep.Name),
			attribute.String("timeout", s.sweep.Timeout.String()),
		),
	)
	defer span.End()
	traceID, spanID := traceIDs(span)
	attrs := metric.WithAttributes(attribute.String("sweep", s.sweep.Name))

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("sweep %s panicked: %v", s.sweep.Name, r)
		}
		res.Duration = time.Since(start)
		durationMs := float64(res.Duration.Seconds() * 1000)
		sweepCounter.Add(ctx, 1, attrs)
		sweepLatencyMs.Record(ctx, durationMs, attrs)
		if res.Err != nil {
			sweepErrorCounter.Add(ctx, 1, attrs)
			span.RecordError(res.Err)
			s.logger.Warn("runtime.sweep.error",
				slog.String("sweep", s.sweep.Name),
				slog.Float64("duration_ms", durationMs),
				slog.String("trace_id", traceID),
				slog.String("span_id", spanID),
				slog.String("error", res.Err.Error()),
			)
		} else {
			span.SetAttributes(attribute.Int("affected", res.Affected))
			s.logger.Info("runtime.sweep.complete",
				slog.String("sweep", s.sweep.Name),
				slog.Int("affected", res.Affected),
				slog.Float64("duration_ms", durationMs),
				slog.String("trace_id", traceID),
				slog.String("span_id", spanID),
			)
		}
		if s.hook != nil {
			s.hook(s.sweep.Name, res)
		}
	}()

	res.Affected, res.Err = s.sweep.Run(sweepCtx)
	return res
}

var (
	sweepMetricsOnce  sync.Once
	sweepCounter      metric.Int64Counter
	sweepErrorCounter metric.Int64Counter
	sweepLatencyMs    metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("agentnet/runtime")
		sweepCounter, _ = meter.Int64Counter("agentnet.runtime.sweep.count")
		sweepErrorCounter, _ = meter.Int64Counter("agentnet.runtime.sweep.error.count")
		sweepLatencyMs, _ = meter.Float64Histogram("agentnet.runtime.sweep.latency_ms")
	})
}

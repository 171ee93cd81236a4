// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/agentnet/pkg/errors"
)

// Metrics holds the OTel instruments recorded by the orchestrator, the
// resilience primitives and the memory sweeper. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// taskCounter counts finished tasks by terminal status
	taskCounter metric.Int64Counter

	// subtaskCounter counts delegated subtasks by agent type and outcome
	subtaskCounter metric.Int64Counter

	// iterationHist records delegation iterations used per task
	iterationHist metric.Int64Histogram

	// generationCounter counts model calls, including fallbacks
	generationCounter metric.Int64Counter

	// errorCounter tracks errors by code and component
	errorCounter metric.Int64Counter

	// breakerStateGauge tracks breaker state (0=open, 1=half-open, 2=closed)
	breakerStateGauge metric.Int64Gauge

	// rateLimitDenied counts rejected token requests
	rateLimitDenied metric.Int64Counter

	// memoryMigrations counts tier moves by direction
	memoryMigrations metric.Int64Counter

	// sweepDuration records sweep latency in milliseconds
	sweepDuration metric.Float64Histogram
}

// NewMetrics creates the agentnet instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("agentnet")
	m := &Metrics{}
	var err error

	if m.taskCounter, err = meter.Int64Counter(
		"agentnet.tasks.total",
		metric.WithDescription("Finished tasks by terminal status"),
	); err != nil {
		return nil, err
	}
	if m.subtaskCounter, err = meter.Int64Counter(
		"agentnet.subtasks.total",
		metric.WithDescription("Delegated subtasks by agent type and outcome"),
	); err != nil {
		return nil, err
	}
	if m.iterationHist, err = meter.Int64Histogram(
		"agentnet.tasks.iterations",
		metric.WithDescription("Delegation iterations used per task"),
	); err != nil {
		return nil, err
	}
	if m.generationCounter, err = meter.Int64Counter(
		"agentnet.generations.total",
		metric.WithDescription("Model calls by model and outcome"),
	); err != nil {
		return nil, err
	}
	if m.errorCounter, err = meter.Int64Counter(
		"agentnet.errors.total",
		metric.WithDescription("Errors by code and component"),
	); err != nil {
		return nil, err
	}
	if m.breakerStateGauge, err = meter.Int64Gauge(
		"agentnet.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state (0=open, 1=half-open, 2=closed)"),
	); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter(
		"agentnet.ratelimit.denied",
		metric.WithDescription("Rejected rate limit requests"),
	); err != nil {
		return nil, err
	}
	if m.memoryMigrations, err = meter.Int64Counter(
		"agentnet.memory.migrations",
		metric.WithDescription("Memory items moved between tiers"),
	); err != nil {
		return nil, err
	}
	if m.sweepDuration, err = meter.Float64Histogram(
		"agentnet.sweep.duration",
		metric.WithDescription("Background sweep latency"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordTask records a finished task.
func (m *Metrics) RecordTask(ctx context.Context, status string, iterations int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrTaskStatus, status))
	m.taskCounter.Add(ctx, 1, attrs)
	m.iterationHist.Record(ctx, int64(iterations), attrs)
}

// RecordSubtask records one delegated subtask.
func (m *Metrics) RecordSubtask(ctx context.Context, agentType string, ok bool) {
	if m == nil {
		return
	}
	m.subtaskCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAgentType, agentType),
		attribute.Bool("success", ok),
	))
}

// RecordGeneration records one model call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, fallback bool, err error) {
	if m == nil {
		return
	}
	m.generationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrLLMModel, model),
		attribute.Bool(AttrLLMFallback, fallback),
		attribute.Bool("success", err == nil),
	))
}

// RecordError records an error for the given component. Non agentnet errors
// are counted as INTERNAL_ERROR.
func (m *Metrics) RecordError(ctx context.Context, component string, err error) {
	if m == nil || err == nil {
		return
	}
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.CodeInternal
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(code)),
		attribute.String("component", component),
	))
}

// RecordBreakerState records a breaker state as its gauge value.
func (m *Metrics) RecordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil {
		return
	}
	m.breakerStateGauge.Record(ctx, state, metric.WithAttributes(attribute.String(AttrBreakerName, name)))
}

// RecordRateLimitDenied counts a denied rate limit request.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, key string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRateLimitKey, key)))
}

// RecordMigrations counts items moved between memory tiers.
func (m *Metrics) RecordMigrations(ctx context.Context, direction string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.memoryMigrations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordSweep records how long a named sweep took.
func (m *Metrics) RecordSweep(ctx context.Context, name string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attribute.String(AttrSweepName, name)))
}

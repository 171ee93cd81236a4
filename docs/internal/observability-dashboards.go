//go:build ignore

// SPDX-License-Identifier: Apache-2.0
// Agentnet Orchestration & Resilience Dashboards
// This file documents dashboard templates for an OpenTelemetry UI or Grafana.
//
// DASHBOARD: Task Outcomes
//   How tasks finish and how much delegation they need.
//
//   Queries:
//   - agentnet.tasks.total{agentnet.task.status} (rate 5m)
//     Metric: Finished tasks by terminal status
//     Display: Stacked bars (completed, partial, failed)
//     Alert Threshold: failed / total > 10% over 15m
//
//   - agentnet.tasks.iterations (p50, p95)
//     Metric: Delegation iterations used per task
//     Display: Heatmap
//     Insight: p95 pinned at max_iterations means coordinators rarely converge
//
//   - agentnet.subtasks.total{agentnet.agent.type, outcome}
//     Metric: Delegated subtasks per specialist
//     Display: Table sorted by error share
//
// DASHBOARD: Generation
//   Calls to language model providers, including fallback models.
//
//   Queries:
//   - agentnet.generations.total{gen_ai.request.model, agentnet.generation.fallback, outcome}
//     Metric: Generation attempts per model
//     Display: Line chart per model
//     Alert Threshold: fallback="true" above 20% of calls for 10m
//
//   - agentnet.circuitbreaker.state{agentnet.breaker.name}
//     Metric: Breaker state (0=open, 1=half-open, 2=closed)
//     Display: Status panels per breaker
//     Meaning:
//       OPEN (0): Calls rejected with CIRCUIT_OPEN until reset_timeout passes
//       HALF_OPEN (1): Probing recovery with a limited number of calls
//       CLOSED (2): Normal operation
//
// DASHBOARD: Errors & Admission
//
//   Queries:
//   - agentnet.errors.total{error.code, component} (rate 5m)
//     Display: Line chart with legend (GENERATION_ERROR, TIMEOUT, STORE_ERROR, etc)
//     Alert Threshold: > 5 errors/min for STORE_ERROR or MEMORY_ERROR
//
//   - agentnet.ratelimit.denied{agentnet.ratelimit.key} (rate 1m)
//     Metric: Submissions refused by the token bucket
//     Display: Top 10 callers by denial rate
//     Insight: sustained denials for one caller suggest raising its capacity
//
// DASHBOARD: Memory Tiers
//
//   Queries:
//   - agentnet.memory.migrations{direction} (increase 1h)
//     Metric: Items moved between hot and cold tiers by rotation
//     Display: Mirrored bars (promote above, demote below)
//
//   - agentnet.sweep.duration{agentnet.sweep.name} (p95)
//     Metric: Duration of memory.rotate, memory.prune and retention sweeps in ms
//     Display: Line chart per sweep
//     Alert Threshold: p95 above the sweep interval means sweeps overlap
//
// INTEGRATION PATTERNS:
//
// 1. Breaker Flapping:
//    PromQL: changes(agentnet.circuitbreaker.state[1h]) by (agentnet.breaker.name)
//    A breaker flipping more than a few times an hour points at a flaky provider;
//    add a fallback model for the agents that use it.
//
// 2. Health Checks:
//    The health MCP tool and `agentnet status` report redis, store, memory.vectors,
//    memory.cold and breakers components. Scrape them alongside the metrics
//    above to correlate STORE_ERROR spikes with an unhealthy backend.
//
// 3. Retention:
//    The retention sweep reports affected networks. A flat zero while
//    networks accumulate usually means retention_days is unset on them.
//
package main

// This file is documentation only and is not compiled.
// See pkg/telemetry/metrics.go for the instrument definitions.

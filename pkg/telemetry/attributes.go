// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing and metrics wiring for agentnet.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on agentnet spans and metrics.
const (
	// Network attributes
	AttrNetworkID   = "agentnet.network.id"
	AttrNetworkName = "agentnet.network.name"

	// Agent attributes
	AttrAgentID     = "agentnet.agent.id"
	AttrAgentType   = "agentnet.agent.type"
	AttrAgentModel  = "agentnet.agent.model"
	AttrAgentStatus = "agentnet.agent.status"

	// Task attributes
	AttrTaskID        = "agentnet.task.id"
	AttrTaskStatus    = "agentnet.task.status"
	AttrTaskIteration = "agentnet.task.iteration"
	AttrTaskMaxIter   = "agentnet.task.max_iterations"
	AttrSubtaskCount  = "agentnet.task.subtask_count"

	// Memory attributes
	AttrMemoryID    = "agentnet.memory.id"
	AttrMemoryType  = "agentnet.memory.type"
	AttrMemoryTier  = "agentnet.memory.tier"
	AttrMemoryCount = "agentnet.memory.count"

	// Resilience attributes
	AttrBreakerName  = "agentnet.breaker.name"
	AttrBreakerState = "agentnet.breaker.state"
	AttrRateLimitKey = "agentnet.ratelimit.key"

	// Generation attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMFallback     = "agentnet.generation.fallback"

	// Sweep attributes
	AttrSweepName = "agentnet.sweep.name"
)

// TaskAttributes returns common attributes for task spans.
func TaskAttributes(networkID, taskID string, iteration, maxIter int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrNetworkID, networkID),
		attribute.String(AttrTaskID, taskID),
	}
	if iteration > 0 {
		attrs = append(attrs, attribute.Int(AttrTaskIteration, iteration))
	}
	if maxIter > 0 {
		attrs = append(attrs, attribute.Int(AttrTaskMaxIter, maxIter))
	}
	return attrs
}

// AgentAttributes returns attributes for spans executed on behalf of an agent.
func AgentAttributes(agentID, agentType, model string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrAgentType, agentType),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	return attrs
}

// MemoryAttributes returns attributes for memory operations.
func MemoryAttributes(id, memType, tier string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrMemoryID, id)}
	if memType != "" {
		attrs = append(attrs, attribute.String(AttrMemoryType, memType))
	}
	if tier != "" {
		attrs = append(attrs, attribute.String(AttrMemoryTier, tier))
	}
	return attrs
}

// Truncate shortens s to at most maxLen bytes for span attributes.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 500
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

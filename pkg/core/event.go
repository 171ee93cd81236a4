// SPDX-License-Identifier: Apache-2.0

// Package core holds the small cross-cutting types shared by the
// orchestrator, the memory store and the event buses: lifecycle events, run
// ids and component health checks.
package core

import (
	"context"
	"time"
)

// EventType identifies a lifecycle event emitted by the orchestrator.
type EventType string

const (
	EventTaskStarted      EventType = "task_started"
	EventTaskCompleted    EventType = "task_completed"
	EventTaskFailed       EventType = "task_failed"
	EventSubtaskStarted   EventType = "subtask_started"
	EventSubtaskCompleted EventType = "subtask_completed"
	EventSubtaskFailed    EventType = "subtask_failed"
	EventAgentStatus      EventType = "agent_status_changed"
	EventMemoryAdded      EventType = "memory_added"
	EventMemoryUpdated    EventType = "memory_updated"
	EventMemoryRemoved    EventType = "memory_removed"
	EventMemoryExpired    EventType = "memory_expired"
	EventNetworkDeleted   EventType = "network_deleted"
)

// Event captures one lifecycle event.
type Event struct {
	Type      EventType      `json:"type"`
	NetworkID string         `json:"network_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Channels returns the pub/sub channels the event belongs to: the task
// channel when it carries a task id, then the network channel.
func (e Event) Channels() []string {
	var out []string
	if e.TaskID != "" {
		out = append(out, TaskChannel(e.TaskID))
	}
	if e.NetworkID != "" {
		out = append(out, NetworkChannel(e.NetworkID))
	}
	return out
}

// TaskChannel is the channel carrying events of one task.
func TaskChannel(taskID string) string { return "agentnet:task:" + taskID }

// NetworkChannel is the channel carrying events of one network.
func NetworkChannel(networkID string) string { return "agentnet:network:" + networkID }

// EventEmitter receives lifecycle events. Emit must not block on slow
// consumers and never fails the caller.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// EventEmitterFunc adapts a function to EventEmitter.
type EventEmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EventEmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds an event stamped with the current time. The run carried by
// ctx supplies the run id and fills in missing network and task ids.
func NewEvent(ctx context.Context, eventType EventType, networkID, taskID string, payload map[string]any) Event {
	run, _ := RunFrom(ctx)
	if networkID == "" {
		networkID = run.NetworkID
	}
	if taskID == "" {
		taskID = run.TaskID
	}
	return Event{
		Type:      eventType,
		NetworkID: networkID,
		TaskID:    taskID,
		RunID:     run.ID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// WithAgent returns a copy of e naming agentID.
func (e Event) WithAgent(agentID string) Event {
	e.AgentID = agentID
	return e
}

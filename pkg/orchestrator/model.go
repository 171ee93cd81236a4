// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"time"

	"github.com/jllopis/agentnet/pkg/agent"
	"github.com/jllopis/agentnet/pkg/errors"
)

// NetworkStatus is the lifecycle state of a network.
type NetworkStatus string

const (
	NetworkActive   NetworkStatus = "active"
	NetworkArchived NetworkStatus = "archived"
)

// AgentStatus is what an agent is doing right now.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentError   AgentStatus = "error"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskPartial    TaskStatus = "partial"
)

// Terminal reports whether s is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskPartial
}

// Network groups agents, tasks and shared memory. Deleting it cascades to
// all three.
type Network struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Status         NetworkStatus  `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	MaxIterations  int            `json:"max_iterations"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	SharedContext  map[string]any `json:"shared_context,omitempty"`
	RetentionDays  int            `json:"retention_days"`
	Owner          string         `json:"owner"`
}

// Timeout is the wall clock budget for processing one task.
func (n Network) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Retention is how long the network lives after creation.
func (n Network) Retention() time.Duration {
	return time.Duration(n.RetentionDays) * 24 * time.Hour
}

// ExpiresAt is when the retention sweep removes the network.
func (n Network) ExpiresAt() time.Time {
	return n.CreatedAt.Add(n.Retention())
}

func (n Network) withStatus(s NetworkStatus, now time.Time) Network {
	n.Status = s
	n.UpdatedAt = now
	return n
}

// Agent is a worker bound to a capability profile.
type Agent struct {
	ID            string      `json:"id"`
	NetworkID     string      `json:"network_id"`
	Name          string      `json:"name"`
	Type          agent.Type  `json:"type"`
	Model         string      `json:"model"`
	Temperature   float64     `json:"temperature"`
	MaxTokens     int         `json:"max_tokens"`
	Capabilities  []string    `json:"capabilities"`
	Status        AgentStatus `json:"status"`
	Confidence    float64     `json:"confidence"`
	AssignedTasks []string    `json:"assigned_tasks,omitempty"`
	LastAction    string      `json:"last_action,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Roster returns the view of the agent handed to the coordinator.
func (a Agent) Roster() agent.RosterEntry {
	return agent.RosterEntry{
		ID:           a.ID,
		Name:         a.Name,
		Type:         a.Type,
		Capabilities: a.Capabilities,
		Status:       string(a.Status),
	}
}

func (a Agent) withStatus(s AgentStatus, action string, now time.Time) Agent {
	a.Status = s
	if action != "" {
		a.LastAction = action
	}
	a.UpdatedAt = now
	return a
}

func (a Agent) withConfidence(c float64) Agent {
	a.Confidence = c
	return a
}

// withAssigned records taskID once in the agent's assignments.
func (a Agent) withAssigned(taskID string) Agent {
	for _, id := range a.AssignedTasks {
		if id == taskID {
			return a
		}
	}
	a.AssignedTasks = append(append([]string(nil), a.AssignedTasks...), taskID)
	return a
}

// HistoryKind labels an execution history entry.
type HistoryKind string

const (
	HistoryCoordinator HistoryKind = "coordinator"
	HistorySubtask     HistoryKind = "subtask"
	HistoryMemory      HistoryKind = "memory"
	HistorySynthesis   HistoryKind = "synthesis"
)

// HistoryEntry records one coordinator turn, subtask or synthesis step.
type HistoryEntry struct {
	Iteration   int         `json:"iteration"`
	Kind        HistoryKind `json:"kind"`
	AgentID     string      `json:"agent_id,omitempty"`
	AgentType   agent.Type  `json:"agent_type,omitempty"`
	Description string      `json:"description,omitempty"`
	Output      any         `json:"output,omitempty"`
	Confidence  float64     `json:"confidence"`
	ModelUsed   string      `json:"model_used,omitempty"`
	Fallback    bool        `json:"fallback,omitempty"`
	Error       string      `json:"error,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Task is a unit of work submitted to a network.
type Task struct {
	ID            string         `json:"id"`
	NetworkID     string         `json:"network_id"`
	Description   string         `json:"description"`
	Context       map[string]any `json:"context,omitempty"`
	Priority      int            `json:"priority"`
	Deadline      *time.Time     `json:"deadline,omitempty"`
	Status        TaskStatus     `json:"status"`
	Iterations    int            `json:"iterations"`
	MaxIterations int            `json:"max_iterations"`
	Result        any            `json:"result,omitempty"`
	History       []HistoryEntry `json:"history,omitempty"`
	Owner         string         `json:"owner"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

func (t Task) withStatus(s TaskStatus, now time.Time) Task {
	t.Status = s
	t.UpdatedAt = now
	if s == TaskInProgress && t.StartedAt == nil {
		t.StartedAt = &now
	}
	return t
}

func (t Task) withIteration(n int, now time.Time) Task {
	t.Iterations = n
	t.UpdatedAt = now
	return t
}

// withHistory appends entries on a fresh backing array so earlier copies
// of the task never observe them.
func (t Task) withHistory(entries ...HistoryEntry) Task {
	h := make([]HistoryEntry, 0, len(t.History)+len(entries))
	t.History = append(append(h, t.History...), entries...)
	return t
}

// withOutcome moves t to a terminal status. The result and error of a
// terminal task are write-once.
func (t Task) withOutcome(s TaskStatus, result any, err error, now time.Time) (Task, error) {
	if t.Status.Terminal() {
		return t, errors.Validation("task %s already %s", t.ID, t.Status)
	}
	if !s.Terminal() {
		return t, errors.Validation("%s is not a terminal status", s)
	}
	t = t.withStatus(s, now)
	t.FinishedAt = &now
	if result != nil {
		t.Result = result
	}
	if err != nil {
		t.Error = err.Error()
		t.ErrorCode = string(errors.CodeOf(err))
	}
	return t, nil
}

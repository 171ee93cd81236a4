// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jllopis/agentnet/pkg/agent"
	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/llm"
)

const (
	minNameLen        = 3
	maxNameLen        = 100
	maxDescriptionLen = 1000
	minTaskLen        = 5
	maxTaskLen        = 5000
	minPriority       = 1
	maxPriority       = 10
	maxIterationsCap  = 100
	maxTimeoutSeconds = 24 * 60 * 60
	maxRetentionDays  = 3650
)

// AgentConfig describes an agent to create. Zero profile fields take the
// kind's defaults.
type AgentConfig struct {
	Name         string     `json:"name" yaml:"name"`
	Type         agent.Type `json:"type" yaml:"type"`
	Model        string     `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  *float64   `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int        `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// NetworkSpec is the input of CreateNetwork. Zero numeric fields take the
// orchestrator defaults.
type NetworkSpec struct {
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	Agents         []AgentConfig  `json:"agents,omitempty" yaml:"agents,omitempty"`
	SharedContext  map[string]any `json:"shared_context,omitempty" yaml:"shared_context,omitempty"`
	MaxIterations  int            `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	RetentionDays  int            `json:"retention_days,omitempty" yaml:"retention_days,omitempty"`
}

// TaskSpec is the input of SubmitTask. Priority zero means 1.
type TaskSpec struct {
	Description string         `json:"description" yaml:"description"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	Priority    int            `json:"priority,omitempty" yaml:"priority,omitempty"`
	Deadline    *time.Time     `json:"deadline,omitempty" yaml:"deadline,omitempty"`
}

// MemoryInput is a caller provided memory item.
type MemoryInput struct {
	Type       string         `json:"type"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func validateNetwork(spec NetworkSpec, catalog *llm.Catalog) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(spec.Name)); n < minNameLen || n > maxNameLen {
		return errors.Validation("network name must be %d-%d characters", minNameLen, maxNameLen)
	}
	if utf8.RuneCountInString(spec.Description) > maxDescriptionLen {
		return errors.Validation("network description exceeds %d characters", maxDescriptionLen)
	}
	if spec.MaxIterations < 0 || spec.MaxIterations > maxIterationsCap {
		return errors.Validation("max_iterations must be between 1 and %d", maxIterationsCap)
	}
	if spec.TimeoutSeconds < 0 || spec.TimeoutSeconds > maxTimeoutSeconds {
		return errors.Validation("timeout_seconds must be between 1 and %d", maxTimeoutSeconds)
	}
	if spec.RetentionDays < 0 || spec.RetentionDays > maxRetentionDays {
		return errors.Validation("retention_days must be between 1 and %d", maxRetentionDays)
	}
	coordinators := 0
	for i, cfg := range spec.Agents {
		if err := validateAgent(cfg, catalog); err != nil {
			return errors.As(err).WithContext("agent_index", i)
		}
		if cfg.Type == agent.TypeCoordinator {
			coordinators++
		}
	}
	if coordinators > 1 {
		return errors.Validation("a network has exactly one coordinator, got %d", coordinators)
	}
	return nil
}

func validateAgent(cfg AgentConfig, catalog *llm.Catalog) error {
	if !cfg.Type.Valid() {
		return errors.Validation("unknown agent type %q", cfg.Type)
	}
	if cfg.Name != "" {
		if n := utf8.RuneCountInString(strings.TrimSpace(cfg.Name)); n < minNameLen || n > maxNameLen {
			return errors.Validation("agent name must be %d-%d characters", minNameLen, maxNameLen)
		}
	}
	if cfg.Model != "" && !catalog.Known(cfg.Model) {
		return errors.Validation("unknown model %q", cfg.Model)
	}
	if cfg.Temperature != nil && (*cfg.Temperature < 0 || *cfg.Temperature > 2) {
		return errors.Validation("temperature %v outside [0,2]", *cfg.Temperature)
	}
	if cfg.MaxTokens < 0 {
		return errors.Validation("max_tokens must be positive")
	}
	return nil
}

func validateTask(spec TaskSpec, now time.Time) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(spec.Description)); n < minTaskLen || n > maxTaskLen {
		return errors.Validation("task description must be %d-%d characters", minTaskLen, maxTaskLen)
	}
	if spec.Priority != 0 && (spec.Priority < minPriority || spec.Priority > maxPriority) {
		return errors.Validation("priority must be between %d and %d", minPriority, maxPriority)
	}
	if spec.Deadline != nil && !spec.Deadline.After(now) {
		return errors.Validation("deadline must be in the future")
	}
	return nil
}

func validateMemory(in MemoryInput) error {
	if strings.TrimSpace(in.Content) == "" {
		return errors.Validation("memory content is required")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return errors.Validation("memory confidence %v outside [0,1]", in.Confidence)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"strings"
)

// RosterEntry describes a worker the coordinator may delegate to.
type RosterEntry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         Type     `json:"type"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
}

// TurnInput is everything the coordinator sees on one iteration.
type TurnInput struct {
	Task          string         `json:"task"`
	TaskContext   map[string]any `json:"task_context,omitempty"`
	SharedContext map[string]any `json:"shared_context,omitempty"`
	Agents        []RosterEntry  `json:"agents"`
	Memories      []any          `json:"memories,omitempty"`
	Results       []any          `json:"results,omitempty"`
	Iteration     int            `json:"iteration"`
	MaxIterations int            `json:"max_iterations"`
}

// Assignment is one subtask the coordinator delegates.
type Assignment struct {
	AgentID     string `json:"agent_id,omitempty"`
	AgentType   Type   `json:"agent_type,omitempty"`
	Description string `json:"description"`
}

// Decision is the coordinator's answer for one iteration.
type Decision struct {
	Reasoning  string           `json:"reasoning,omitempty"`
	Complete   bool             `json:"complete"`
	Result     any              `json:"result,omitempty"`
	Subtasks   []Assignment     `json:"subtasks,omitempty"`
	Memories   []MemoryProposal `json:"memories,omitempty"`
	Confidence float64          `json:"confidence"`
	Error      string           `json:"error,omitempty"`
	Fallback   bool             `json:"fallback,omitempty"`
}

// Coordinator is the kind that drives the delegation loop.
type Coordinator struct{}

func (Coordinator) Type() Type          { return TypeCoordinator }
func (Coordinator) ResultField() string { return "result" }

func (Coordinator) Defaults() Profile {
	return Profile{
		Model:        "gpt-4o",
		Temperature:  0.3,
		MaxTokens:    2500,
		Capabilities: []string{"planning", "delegation", "synthesis"},
	}
}

func (Coordinator) SystemPrompt() string {
	return `You coordinate a network of specialist agents working on one task.
On every turn decide whether the task is complete. When it is, return the final result.
Otherwise delegate subtasks to the listed agents, each naming agent_id (or agent_type) and a description.

Reply with a single JSON object and nothing else:
{"reasoning": "...",
 "complete": true|false,
 "result": <final result when complete>,
 "subtasks": [{"agent_id": "...", "agent_type": "...", "description": "..."}],
 "memories": [{"type": "fact|context|decision|feedback", "content": "...", "confidence": 0.0}],
 "confidence": <number between 0 and 1>}`
}

// BuildPrompt renders a subtask addressed to the coordinator itself.
func (c Coordinator) BuildPrompt(req Request) string {
	return specialist{field: "result"}.BuildPrompt(req)
}

// ParseResponse parses a synthesis reply.
func (Coordinator) ParseResponse(content string) Response {
	return parseResponse(content, "result")
}

// TurnPrompt renders the prompt for one delegation turn.
func (Coordinator) TurnPrompt(in TurnInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d of %d.\n\n", in.Iteration, in.MaxIterations)
	b.WriteString(renderJSON(in))
	b.WriteString("\n\nDecide whether the task is complete or which subtasks to delegate next.")
	return b.String()
}

// SynthesisPrompt asks for a final result from everything gathered so far.
func (Coordinator) SynthesisPrompt(in TurnInput) string {
	var b strings.Builder
	b.WriteString("The iteration budget is exhausted. Produce the final result from the work below.\n\n")
	b.WriteString(renderJSON(in))
	b.WriteString("\n\nReply with {\"reasoning\": \"...\", \"result\": <final result>, \"confidence\": <0..1>}.")
	return b.String()
}

// ParseDecision parses a turn reply. Malformed replies yield an incomplete
// Decision with Error set.
func (Coordinator) ParseDecision(content string) Decision {
	obj, err := decodeObject(content)
	if err != nil {
		return Decision{Error: "malformed response: " + err.Error()}
	}
	if v, _ := obj[fallbackMarker].(bool); v {
		msg, _ := obj["error"].(string)
		return Decision{Fallback: true, Error: msg}
	}
	reasoning, ok := obj["reasoning"].(string)
	if !ok {
		return Decision{Error: "malformed response: missing reasoning"}
	}
	complete, ok := obj["complete"].(bool)
	if !ok {
		return Decision{Error: "malformed response: missing complete"}
	}
	d := Decision{
		Reasoning: reasoning,
		Complete:  complete,
		Result:    obj["result"],
		Memories:  memoriesOf(obj),
	}
	d.Confidence, _ = obj["confidence"].(float64)
	if complete && d.Result == nil {
		return Decision{Error: "malformed response: complete without result"}
	}
	if raw, ok := obj["subtasks"].([]any); ok {
		for _, r := range raw {
			m, ok := r.(map[string]any)
			if !ok {
				continue
			}
			a := Assignment{}
			a.AgentID, _ = m["agent_id"].(string)
			typ, _ := m["agent_type"].(string)
			a.AgentType = Type(typ)
			a.Description, _ = m["description"].(string)
			if a.Description == "" || (a.AgentID == "" && a.AgentType == "") {
				continue
			}
			d.Subtasks = append(d.Subtasks, a)
		}
	}
	return d
}

// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines the closed set of agent kinds a network can hold.
// Each kind carries its default generation profile, its system prompt and
// the parser for the structured payload its model is asked to return.
package agent

import "sort"

// Type enumerates the agent kinds.
type Type string

const (
	TypeContent         Type = "content"
	TypeDesign          Type = "design"
	TypeAnalytics       Type = "analytics"
	TypePersonalization Type = "personalization"
	TypeResearch        Type = "research"
	TypeCoordinator     Type = "coordinator"
)

// Profile is the generation profile an agent runs with.
type Profile struct {
	Model        string   `json:"model"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	Capabilities []string `json:"capabilities"`
}

// Request is what a worker kind turns into a prompt.
type Request struct {
	Task    string         `json:"task"`
	Subtask string         `json:"subtask"`
	Context map[string]any `json:"context,omitempty"`
}

// Kind is the behavior attached to an agent type.
type Kind interface {
	Type() Type
	Defaults() Profile
	SystemPrompt() string
	// ResultField names the task-specific field of the response payload.
	ResultField() string
	BuildPrompt(req Request) string
	ParseResponse(content string) Response
}

// KindFor resolves the kind of t.
func KindFor(t Type) (Kind, bool) {
	switch t {
	case TypeContent:
		return contentKind, true
	case TypeDesign:
		return designKind, true
	case TypeAnalytics:
		return analyticsKind, true
	case TypePersonalization:
		return personalizationKind, true
	case TypeResearch:
		return researchKind, true
	case TypeCoordinator:
		return Coordinator{}, true
	}
	return nil, false
}

// Specialists returns the non-coordinator types in a stable order.
func Specialists() []Type {
	out := []Type{TypeContent, TypeDesign, TypeAnalytics, TypePersonalization, TypeResearch}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether t names a known kind.
func (t Type) Valid() bool {
	_, ok := KindFor(t)
	return ok
}

// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails sanitises caller supplied text before it is folded into
// generation prompts.
//
// Filters rewrite matched substrings with a redaction marker; content is never
// rejected outright. The filters are substring and pattern heuristics that are
// easy to evade, so they are not a security boundary.
//
// Example usage:
//
//	guard := guardrails.New(
//	    guardrails.WithCodeMarkerFilter(),
//	    guardrails.WithPromptInjectionFilter(),
//	    guardrails.WithPIIFilter(guardrails.PIIFilterMask),
//	)
//	clean, redactions := guard.SanitizeMap(ctx, task.Context)
package guardrails

import (
	"context"
	"fmt"
	"sync"
)

// RedactionMarker replaces denylisted substrings.
const RedactionMarker = "[REDACTED]"

// FilterResult represents the outcome of filtering one string.
type FilterResult struct {
	// Content is the (potentially modified) content.
	Content string

	// Modified indicates if the content was changed.
	Modified bool

	// Redactions lists what was replaced.
	Redactions []Redaction
}

// Redaction describes a single content modification.
type Redaction struct {
	// Type categorizes the redaction (e.g., "code:eval(", "pii:email").
	Type string `json:"type"`

	// Replacement is what replaced the original.
	Replacement string `json:"replacement"`

	// Position is the byte offset in the filtered string.
	Position int `json:"position"`

	// Path locates the string inside a sanitised map, e.g. "brief.links[2]".
	Path string `json:"path,omitempty"`
}

// Filter rewrites one string.
type Filter interface {
	Filter(ctx context.Context, s string) FilterResult

	// ID returns a unique identifier for this filter.
	ID() string
}

// Guardrails runs a chain of filters.
type Guardrails struct {
	mu      sync.RWMutex
	filters []Filter
}

// Option configures the Guardrails instance.
type Option func(*Guardrails)

// New creates a new Guardrails instance with the given options.
func New(opts ...Option) *Guardrails {
	g := &Guardrails{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Default returns the chain applied to task context when nothing else is
// configured: executable code markers and prompt injection phrases.
func Default() *Guardrails {
	return New(WithCodeMarkerFilter(), WithPromptInjectionFilter())
}

// WithFilter adds a filter to the chain.
func WithFilter(f Filter) Option {
	return func(g *Guardrails) {
		g.filters = append(g.filters, f)
	}
}

// Apply runs all filters in sequence.
// Each filter receives the output of the previous one. Every filter runs
// even when ctx is done, so the result is never partially sanitized.
func (g *Guardrails) Apply(ctx context.Context, s string) FilterResult {
	g.mu.RLock()
	filters := g.filters
	g.mu.RUnlock()

	result := FilterResult{Content: s}
	for _, f := range filters {
		fr := f.Filter(ctx, result.Content)
		if fr.Modified {
			result.Content = fr.Content
			result.Modified = true
			result.Redactions = append(result.Redactions, fr.Redactions...)
		}
	}
	return result
}

// SanitizeMap returns a deep copy of m with every string value filtered,
// recursing through nested maps and lists. Keys are kept as is.
func (g *Guardrails) SanitizeMap(ctx context.Context, m map[string]any) (map[string]any, []Redaction) {
	if m == nil {
		return nil, nil
	}
	var redactions []Redaction
	out, _ := g.sanitize(ctx, m, "", &redactions).(map[string]any)
	return out, redactions
}

func (g *Guardrails) sanitize(ctx context.Context, v any, path string, redactions *[]Redaction) any {
	switch val := v.(type) {
	case string:
		r := g.Apply(ctx, val)
		for _, red := range r.Redactions {
			red.Path = path
			*redactions = append(*redactions, red)
		}
		return r.Content
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = g.sanitize(ctx, item, join(path, k), redactions)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = g.sanitize(ctx, item, join(path, k), redactions)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = g.sanitize(ctx, item, fmt.Sprintf("%s[%d]", path, i), redactions)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = g.sanitize(ctx, item, fmt.Sprintf("%s[%d]", path, i), redactions)
		}
		return out
	default:
		return v
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Add appends a filter at runtime.
func (g *Guardrails) Add(f Filter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filters = append(g.filters, f)
}

// Remove removes a filter by ID.
func (g *Guardrails) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, f := range g.filters {
		if f.ID() == id {
			g.filters = append(g.filters[:i:i], g.filters[i+1:]...)
			return true
		}
	}
	return false
}

// Stats returns current guardrails statistics.
func (g *Guardrails) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.filters))
	for _, f := range g.filters {
		ids = append(ids, f.ID())
	}
	return Stats{Filters: ids}
}

// Stats contains guardrails runtime statistics.
type Stats struct {
	Filters []string
}

// replaceAll rewrites every [start,end) span of s with replacement, recording
// one redaction of typ per span. Spans must be sorted and non-overlapping.
func replaceAll(s string, spans [][]int, typ string, replacement func(string) string) FilterResult {
	if len(spans) == 0 {
		return FilterResult{Content: s}
	}
	result := FilterResult{Content: s, Modified: true}
	// Reverse order keeps earlier offsets valid.
	for i := len(spans) - 1; i >= 0; i-- {
		start, end := spans[i][0], spans[i][1]
		rep := replacement(result.Content[start:end])
		result.Redactions = append(result.Redactions, Redaction{
			Type:        typ,
			Replacement: rep,
			Position:    start,
		})
		result.Content = result.Content[:start] + rep + result.Content[end:]
	}
	return result
}

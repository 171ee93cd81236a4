// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"sort"
)

// injectionRule is one denylisted phrasing. Category ends up in the
// redaction type as "injection:<category>".
type injectionRule struct {
	category string
	re       *regexp.Regexp
}

func rule(category, pattern string) injectionRule {
	return injectionRule{category: category, re: regexp.MustCompile(pattern)}
}

var builtinInjectionRules = []injectionRule{
	rule("override", `(?i)(ignore|disregard|forget|override)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|directions?)`),
	rule("persona", `(?i)you\s+are\s+now\s+(a|an|the)\s+`),
	rule("persona", `(?i)pretend\s+(you\s+are|to\s+be)\s+`),
	rule("persona", `(?i)role-?play\s+as\s+`),
	rule("extraction", `(?i)(show|reveal|print|display|repeat)\s+(me\s+)?your\s+(system\s+)?(prompt|instructions?)`),
	rule("extraction", `(?i)what\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions?)`),
	rule("jailbreak", `(?i)do\s+anything\s+now`),
	rule("jailbreak", `(?i)\bDAN\s+mode`),
	rule("jailbreak", `(?i)jailbreak`),
	rule("jailbreak", `(?i)(developer|debug|sudo|admin|maintenance)\s+mode`),
	rule("jailbreak", `(?i)bypass\s+(the\s+)?(safety|content|filters?|guardrails?)`),
	rule("delimiter", `(?i)\]\]\s*system\s*:`),
	rule("delimiter", `<\|[^|]*\|>`),
	rule("delimiter", `(?i)\[/?INST\]`),
	rule("delimiter", `(?i)<</?SYS>>`),
	// Task context is folded into coordinator prompts; these try to steer
	// the delegation loop itself.
	rule("coordination", `(?i)(mark|declare|report)\s+(this|the)\s+task\s+(as\s+)?(complete|completed|done|finished)`),
	rule("coordination", `(?i)(do\s+not|don't|never)\s+(delegate|assign)\s+(to\s+)?(any\s+)?(other\s+)?(agents?|specialists?)`),
}

// PromptInjectionFilter redacts phrases commonly used to hijack a model's
// instructions.
type PromptInjectionFilter struct {
	rules []injectionRule
}

// PromptInjectionOption configures the prompt injection filter.
type PromptInjectionOption func(*PromptInjectionFilter)

// NewPromptInjectionFilter returns a filter with the built-in rules.
func NewPromptInjectionFilter(opts ...PromptInjectionOption) *PromptInjectionFilter {
	f := &PromptInjectionFilter{rules: append([]injectionRule(nil), builtinInjectionRules...)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithInjectionPatterns adds operator patterns under the "custom" category.
// Invalid patterns are skipped; use ValidatePatterns to reject them first.
func WithInjectionPatterns(patterns ...string) PromptInjectionOption {
	return func(f *PromptInjectionFilter) {
		for _, p := range patterns {
			if re, err := regexp.Compile(p); err == nil {
				f.rules = append(f.rules, injectionRule{category: "custom", re: re})
			}
		}
	}
}

// ValidatePatterns reports the first pattern that does not compile.
func ValidatePatterns(patterns ...string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return nil
}

// ID returns the guardrail identifier.
func (f *PromptInjectionFilter) ID() string {
	return "prompt-injection"
}

type span struct {
	start, end int
	category   string
}

// Filter implements Filter. Overlapping matches collapse into one
// redaction that keeps the category of the earliest match.
func (f *PromptInjectionFilter) Filter(_ context.Context, s string) FilterResult {
	if s == "" {
		return FilterResult{Content: s}
	}
	var found []span
	for _, r := range f.rules {
		for _, m := range r.re.FindAllStringIndex(s, -1) {
			if m[1] > m[0] {
				found = append(found, span{start: m[0], end: m[1], category: r.category})
			}
		}
	}
	merged := mergeSpans(found)
	if len(merged) == 0 {
		return FilterResult{Content: s}
	}

	result := FilterResult{Content: s, Modified: true}
	for i := len(merged) - 1; i >= 0; i-- {
		sp := merged[i]
		result.Content = result.Content[:sp.start] + RedactionMarker + result.Content[sp.end:]
		result.Redactions = append(result.Redactions, Redaction{
			Type:        "injection:" + sp.category,
			Replacement: RedactionMarker,
			Position:    sp.start,
		})
	}
	return result
}

func mergeSpans(spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}

// WithPromptInjectionFilter returns an option that adds prompt injection redaction.
func WithPromptInjectionFilter(opts ...PromptInjectionOption) Option {
	return WithFilter(NewPromptInjectionFilter(opts...))
}

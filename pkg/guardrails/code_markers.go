// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
	"strings"
)

// DefaultCodeMarkers are executable-code markers redacted from task context.
var DefaultCodeMarkers = []string{
	"<script",
	"</script>",
	"javascript:",
	"vbscript:",
	"onerror=",
	"eval(",
	"exec(",
	"execfile(",
	"compile(",
	"__import__",
	"import os",
	"os.system",
	"subprocess",
	"<?php",
	"${",
	"{{",
	"}}",
	"rm -rf",
}

// CodeMarkerFilter replaces denylisted substrings, matched case-insensitively.
type CodeMarkerFilter struct {
	re *regexp.Regexp
}

// CodeMarkerOption configures the code marker filter.
type CodeMarkerOption func(*codeMarkerConfig)

type codeMarkerConfig struct {
	markers []string
}

// WithExtraMarkers adds markers to the default denylist.
func WithExtraMarkers(markers ...string) CodeMarkerOption {
	return func(c *codeMarkerConfig) {
		c.markers = append(c.markers, markers...)
	}
}

// WithMarkers replaces the denylist.
func WithMarkers(markers ...string) CodeMarkerOption {
	return func(c *codeMarkerConfig) {
		c.markers = append([]string(nil), markers...)
	}
}

// NewCodeMarkerFilter creates a filter over DefaultCodeMarkers.
func NewCodeMarkerFilter(opts ...CodeMarkerOption) *CodeMarkerFilter {
	cfg := codeMarkerConfig{markers: append([]string(nil), DefaultCodeMarkers...)}
	for _, opt := range opts {
		opt(&cfg)
	}
	quoted := make([]string, 0, len(cfg.markers))
	for _, m := range cfg.markers {
		if m == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(m))
	}
	if len(quoted) == 0 {
		return &CodeMarkerFilter{}
	}
	return &CodeMarkerFilter{re: regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)}
}

// ID returns the guardrail identifier.
func (f *CodeMarkerFilter) ID() string {
	return "code-markers"
}

// Filter implements Filter.
func (f *CodeMarkerFilter) Filter(_ context.Context, s string) FilterResult {
	if f.re == nil || s == "" {
		return FilterResult{Content: s}
	}
	return replaceAll(s, f.re.FindAllStringIndex(s, -1), "code_marker", func(string) string {
		return RedactionMarker
	})
}

// WithCodeMarkerFilter returns an option that adds code marker redaction.
func WithCodeMarkerFilter(opts ...CodeMarkerOption) Option {
	return WithFilter(NewCodeMarkerFilter(opts...))
}

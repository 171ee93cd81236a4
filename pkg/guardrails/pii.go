// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// PIIFilterMode determines how PII is handled.
type PIIFilterMode int

const (
	// PIIFilterMask replaces PII with a placeholder such as "[EMAIL]".
	PIIFilterMask PIIFilterMode = iota
	// PIIFilterRedact removes PII entirely.
	PIIFilterRedact
	// PIIFilterHash replaces PII with a short hash so repeated values stay
	// correlatable across task context and memories.
	PIIFilterHash
)

// ParsePIIMode maps "mask", "remove" and "hash" to a mode.
func ParsePIIMode(s string) (PIIFilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mask":
		return PIIFilterMask, nil
	case "remove", "redact":
		return PIIFilterRedact, nil
	case "hash":
		return PIIFilterHash, nil
	}
	return 0, fmt.Errorf("unknown pii mode %q", s)
}

// PIIType categorizes detected PII.
type PIIType string

const (
	PIITypeEmail       PIIType = "email"
	PIITypePhone       PIIType = "phone"
	PIITypeSSN         PIIType = "ssn"
	PIITypeCreditCard  PIIType = "credit_card"
	PIITypeIPAddress   PIIType = "ip_address"
	PIITypePassport    PIIType = "passport"
	PIITypeDateOfBirth PIIType = "date_of_birth"
)

type piiPattern struct {
	piiType PIIType
	pattern *regexp.Regexp
	mask    string
	// valid rejects matches that only look like PII.
	valid func(string) bool
}

// Order matters: card numbers and SSNs would otherwise be eaten by the
// phone patterns.
var defaultPIIPatterns = []piiPattern{
	{PIITypeCreditCard, regexp.MustCompile(`\b[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`), "[CREDIT_CARD]", luhn},
	{PIITypeCreditCard, regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`), "[CREDIT_CARD]", luhn},
	{PIITypeSSN, regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`), "[SSN]", nil},
	{PIITypeEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]", nil},
	{PIITypePhone, regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`), "[PHONE]", nil},
	{PIITypePhone, regexp.MustCompile(`\+[0-9]{1,3}[-.\s]?[0-9]{6,14}\b`), "[PHONE]", nil},
	{PIITypeIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "[IP_ADDRESS]", nil},
	// US-style dates only; ISO dates in task context are deadlines.
	{PIITypeDateOfBirth, regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12][0-9]|3[01])[/-](?:19|20)[0-9]{2}\b`), "[DATE]", nil},
	{PIITypePassport, regexp.MustCompile(`\b[A-Z]{1,2}[0-9]{6,9}\b`), "[PASSPORT]", nil},
}

// PIIFilter detects and filters personally identifiable information.
type PIIFilter struct {
	mode     PIIFilterMode
	patterns []piiPattern
	enabled  map[PIIType]bool
}

// PIIFilterOption configures the PII filter.
type PIIFilterOption func(*PIIFilter)

// NewPIIFilter creates a filter with every built-in type enabled.
func NewPIIFilter(mode PIIFilterMode, opts ...PIIFilterOption) *PIIFilter {
	f := &PIIFilter{
		mode:     mode,
		patterns: append([]piiPattern(nil), defaultPIIPatterns...),
		enabled:  make(map[PIIType]bool),
	}
	for _, p := range f.patterns {
		f.enabled[p.piiType] = true
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithPIITypes enables only the given types.
func WithPIITypes(types ...PIIType) PIIFilterOption {
	return func(f *PIIFilter) {
		for k := range f.enabled {
			f.enabled[k] = false
		}
		for _, t := range types {
			f.enabled[t] = true
		}
	}
}

// WithExcludePII disables the given types.
func WithExcludePII(types ...PIIType) PIIFilterOption {
	return func(f *PIIFilter) {
		for _, t := range types {
			f.enabled[t] = false
		}
	}
}

// WithCustomPIIPattern adds a pattern. Invalid expressions are ignored.
func WithCustomPIIPattern(piiType PIIType, pattern, mask string) PIIFilterOption {
	return func(f *PIIFilter) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		f.patterns = append(f.patterns, piiPattern{piiType: piiType, pattern: re, mask: mask})
		f.enabled[piiType] = true
	}
}

// ID returns the guardrail identifier.
func (f *PIIFilter) ID() string {
	return "pii-filter"
}

// Filter masks, removes or hashes PII in s.
func (f *PIIFilter) Filter(_ context.Context, s string) FilterResult {
	result := FilterResult{Content: s}
	if s == "" {
		return result
	}
	for _, p := range f.patterns {
		if !f.enabled[p.piiType] {
			continue
		}
		matches := p.pattern.FindAllStringIndex(result.Content, -1)
		if p.valid != nil {
			matches = keepValid(result.Content, matches, p.valid)
		}
		if len(matches) == 0 {
			continue
		}
		fr := replaceAll(result.Content, matches, "pii:"+string(p.piiType), func(original string) string {
			return f.replacement(p, original)
		})
		result.Content = fr.Content
		result.Modified = true
		result.Redactions = append(result.Redactions, fr.Redactions...)
	}
	return result
}

func keepValid(s string, spans [][]int, valid func(string) bool) [][]int {
	out := spans[:0]
	for _, sp := range spans {
		if valid(s[sp[0]:sp[1]]) {
			out = append(out, sp)
		}
	}
	return out
}

func (f *PIIFilter) replacement(p piiPattern, original string) string {
	switch f.mode {
	case PIIFilterRedact:
		return ""
	case PIIFilterHash:
		// Not cryptographic.
		return strings.TrimSuffix(p.mask, "]") + "_" + hashString(original) + "]"
	default:
		return p.mask
	}
}

// luhn reports whether the digits in s carry a valid Luhn check digit.
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}

func hashString(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08X", h.Sum32())
}

// WithPIIFilter returns an option that adds PII filtering.
func WithPIIFilter(mode PIIFilterMode, opts ...PIIFilterOption) Option {
	return WithFilter(NewPIIFilter(mode, opts...))
}

// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fallbackMarker flags payloads produced locally when every model failed.
const fallbackMarker = "agentnet_fallback"

// MemoryProposal is a memory item suggested by a model.
type MemoryProposal struct {
	Type       string  `json:"type"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// Response is a parsed worker payload. A malformed payload yields a
// Response with Error set and zero confidence, never a Go error.
type Response struct {
	Reasoning  string           `json:"reasoning,omitempty"`
	Result     any              `json:"result,omitempty"`
	Confidence float64          `json:"confidence"`
	Memories   []MemoryProposal `json:"memories,omitempty"`
	Error      string           `json:"error,omitempty"`
	// Fallback marks the deterministic payload used when generation failed.
	Fallback bool `json:"fallback,omitempty"`
}

// OK reports whether the response carries a usable result.
func (r Response) OK() bool { return r.Error == "" && !r.Fallback }

// FallbackContent is the clearly marked payload returned in place of a
// generation when the whole fallback chain failed.
func FallbackContent(reason string) string {
	b, _ := json.Marshal(map[string]any{
		fallbackMarker: true,
		"reasoning":    "generation unavailable",
		"error":        reason,
		"confidence":   0,
	})
	return string(b)
}

// IsFallback reports whether content is a FallbackContent payload.
func IsFallback(content string) bool {
	obj, err := decodeObject(content)
	if err != nil {
		return false
	}
	v, _ := obj[fallbackMarker].(bool)
	return v
}

func parseResponse(content, field string) Response {
	obj, err := decodeObject(content)
	if err != nil {
		return errorResponse(err.Error())
	}
	if v, _ := obj[fallbackMarker].(bool); v {
		msg, _ := obj["error"].(string)
		return Response{Fallback: true, Error: msg, Reasoning: "generation unavailable"}
	}

	reasoning, ok := obj["reasoning"].(string)
	if !ok {
		return errorResponse("missing reasoning")
	}
	result, ok := obj[field]
	if !ok || result == nil {
		return errorResponse(fmt.Sprintf("missing %s", field))
	}
	confidence, err := confidenceOf(obj)
	if err != nil {
		return errorResponse(err.Error())
	}
	return Response{
		Reasoning:  reasoning,
		Result:     result,
		Confidence: confidence,
		Memories:   memoriesOf(obj),
	}
}

func errorResponse(msg string) Response {
	return Response{Error: "malformed response: " + msg}
}

// decodeObject extracts the JSON object from a model reply, tolerating
// markdown fences and prose around it.
func decodeObject(content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no json object")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return obj, nil
}

func confidenceOf(obj map[string]any) (float64, error) {
	c, ok := obj["confidence"].(float64)
	if !ok {
		return 0, fmt.Errorf("missing confidence")
	}
	if c < 0 || c > 1 {
		return 0, fmt.Errorf("confidence %v outside [0,1]", c)
	}
	return c, nil
}

func memoriesOf(obj map[string]any) []MemoryProposal {
	raw, ok := obj["memories"].([]any)
	if !ok {
		return nil
	}
	out := make([]MemoryProposal, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		p := MemoryProposal{}
		p.Type, _ = m["type"].(string)
		p.Content, _ = m["content"].(string)
		p.Confidence, _ = m["confidence"].(float64)
		if p.Content == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func renderJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

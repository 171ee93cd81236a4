// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/agentnet/pkg/errors"
)

// errorPayload is the wire form of a failed tool call.
type errorPayload struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Err         string         `json:"error,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Recoverable bool           `json:"recoverable"`
	StatusCode  int            `json:"status_code"`
}

func structuredResult(out any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(out)
	if err != nil {
		return errorResult(errors.New(errors.CodeInternal, "encode tool result", err)), nil
	}
	var structured any
	if err := json.Unmarshal(encoded, &structured); err != nil {
		return errorResult(errors.New(errors.CodeInternal, "encode tool result", err)), nil
	}
	// Structured content must be an object; lists are wrapped.
	if _, ok := structured.(map[string]any); !ok {
		structured = map[string]any{"items": structured}
	}
	return mcp.NewToolResultStructured(structured, string(encoded)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	e := errors.As(err)
	encoded, mErr := json.Marshal(e)
	if mErr != nil {
		return mcp.NewToolResultError(e.Error())
	}
	var payload map[string]any
	_ = json.Unmarshal(encoded, &payload)
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(string(encoded))},
		StructuredContent: payload,
		IsError:           true,
	}
}

// DecodeResult decodes a tool result into out. A failed call is returned as
// an *errors.Error carrying the server's code and context.
func DecodeResult(result *mcp.CallToolResult, out any) error {
	if result == nil {
		return stderrors.New("mcp tool result is nil")
	}
	text := extractTextContent(result.Content)
	if result.IsError {
		return decodeError(text)
	}
	if out == nil {
		return nil
	}
	// The text block carries the unwrapped value, so prefer it.
	if text != "" {
		if err := json.Unmarshal([]byte(text), out); err == nil {
			return nil
		}
	}
	if result.StructuredContent != nil {
		return decodeInto(result.StructuredContent, out)
	}
	return fmt.Errorf("mcp tool result has no decodable content")
}

func decodeError(text string) error {
	var p errorPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil || p.Code == "" {
		return errors.New(errors.CodeInternal, "tool call failed", stderrors.New(text))
	}
	var cause error
	if p.Err != "" {
		cause = stderrors.New(p.Err)
	}
	e := errors.New(errors.ErrorCode(p.Code), p.Message, cause).WithRecoverable(p.Recoverable)
	for k, v := range p.Context {
		e.WithContext(k, v)
	}
	// RATE_LIMITED carries its wait hint as nanoseconds on the wire.
	if ns, ok := p.Context["wait"].(float64); ok {
		e.WithContext("wait", time.Duration(ns))
	}
	if p.StatusCode != 0 {
		e.StatusCode = p.StatusCode
	}
	return e
}

func decodeInto(in any, out any) error {
	encoded, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("unsupported type %T", in)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return err
	}
	return nil
}

func validateRequiredArgs(tool mcp.Tool, args map[string]interface{}) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		v, ok := args[key]
		if !ok || v == nil {
			return errors.Validation("missing required argument %q", key)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return errors.Validation("argument %q must not be empty", key)
		}
	}
	return nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

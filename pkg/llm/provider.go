// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the generation capability consumed by the orchestrator:
// provider adapters, the known model catalog and the Router that dispatches
// a request to the provider that owns its model.
package llm

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/jllopis/agentnet/pkg/errors"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content string `json:"content"`
	// Model is the model that actually served the request, when reported.
	Model string `json:"model,omitempty"`
	Usage Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// GenerateRequest is the single-prompt form used by agents.
type GenerateRequest struct {
	Prompt       string  `json:"prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// GenerateResponse carries generated text and the model that produced it.
type GenerateResponse struct {
	Content   string `json:"content"`
	ModelUsed string `json:"model_used"`
	Usage     Usage  `json:"usage"`
}

// Generator is the generation capability the orchestrator depends on.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Messages converts a GenerateRequest into chat messages.
func (r GenerateRequest) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	return append(msgs, Message{Role: RoleUser, Content: r.Prompt})
}

// ProviderError classifies a failed vendor call as a GENERATION_ERROR.
// status is the HTTP status the vendor answered with, or zero when no
// response arrived. Throttling, server faults and transport failures are
// recoverable; any other 4xx is not, since repeating the request cannot
// change the answer. Context errors pass through untouched.
func ProviderError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != errors.CodeInternal ||
		stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	recoverable := status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	e := errors.New(errors.CodeGeneration, provider+" request failed", err).
		WithContext("provider", provider).
		WithRecoverable(recoverable)
	if status != 0 {
		e.WithContext("status", status)
	}
	return e
}

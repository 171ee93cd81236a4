// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/jllopis/agentnet/pkg/errors"
)

// MockProvider answers every request with Response, or delegates to
// ChatFunc when set. It is also the "mock" model served by agentnet serve.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	calls atomic.Int64
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.calls.Add(1)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{Content: m.Response, Model: req.Model, Usage: usageOf(req, m.Response)}, nil
}

// Calls reports how many requests the mock has served.
func (m *MockProvider) Calls() int64 { return m.calls.Load() }

// FailingMockProvider always fails. A nil Err yields a GENERATION_ERROR.
type FailingMockProvider struct {
	Err error
}

// Chat implements Provider.
func (f *FailingMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, errors.New(errors.CodeGeneration, "mock provider failure", nil).WithContext("model", req.Model)
}

// usageOf approximates token counts as whitespace-separated words.
func usageOf(req ChatRequest, content string) Usage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(strings.Fields(m.Content))
	}
	completion := len(strings.Fields(content))
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	return f(ctx, req)
}

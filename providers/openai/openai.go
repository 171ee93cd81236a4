// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai serves agentnet's OpenAI catalog models through the
// official SDK. It also fits OpenAI-compatible gateways via WithBaseURL.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/agentnet/pkg/llm"
)

const defaultModel = "gpt-4o-mini"

// Provider implements llm.Provider on Chat Completions.
type Provider struct {
	client  openai.Client
	model   string
	reqOpts []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL points the client at another endpoint (Azure OpenAI, a proxy).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithBaseURL(url)) }
}

// WithAPIKey overrides OPENAI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithAPIKey(apiKey)) }
}

// New builds a provider. The SDK's own retries are off because the
// orchestrator retries under its circuit breakers.
func New(opts ...Option) *Provider {
	p := &Provider{model: defaultModel}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(append([]option.RequestOption{option.WithMaxRetries(0)}, p.reqOpts...)...)
	return p
}

// NewWithAPIKey is New with an explicit key.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	return New(append([]Option{WithAPIKey(apiKey)}, opts...)...)
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.modelFor(req)),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	for _, msg := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(msg))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, llm.ProviderError(llm.ProviderOpenAI, statusOf(err), err)
	}

	out := &llm.ChatResponse{
		Model: completion.Model,
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		out.Content = completion.Choices[0].Message.Content
	}
	return out, nil
}

func (p *Provider) modelFor(req llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func convertMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleAssistant:
		return openai.AssistantMessage(msg.Content)
	default:
		return openai.UserMessage(msg.Content)
	}
}

// statusOf returns the HTTP status of an API error, or zero.
func statusOf(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

var _ llm.Provider = (*Provider)(nil)

// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic serves agentnet's Claude catalog models through the
// official SDK.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jllopis/agentnet/pkg/llm"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 4096
)

// Provider implements llm.Provider on the Messages API.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	reqOpts   []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithMaxTokens sets the output cap used when a request names none. The
// Messages API requires one on every call.
func WithMaxTokens(tokens int64) Option {
	return func(p *Provider) { p.maxTokens = tokens }
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithBaseURL(url)) }
}

// WithAPIKey overrides ANTHROPIC_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithAPIKey(apiKey)) }
}

// New builds a provider. The SDK's own retries are off because the
// orchestrator retries under its circuit breakers.
func New(opts ...Option) *Provider {
	p := &Provider{model: defaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropic.NewClient(append([]option.RequestOption{option.WithMaxRetries(0)}, p.reqOpts...)...)
	return p
}

// NewWithAPIKey is New with an explicit key.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	return New(append([]Option{WithAPIKey(apiKey)}, opts...)...)
}

// Chat implements llm.Provider. System messages are joined and sent out of
// band, as the Messages API expects.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, llm.ProviderError(llm.ProviderAnthropic, statusOf(err), err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	in, out := int(message.Usage.InputTokens), int(message.Usage.OutputTokens)
	return &llm.ChatResponse{
		Content: text.String(),
		Model:   string(message.Model),
		Usage:   llm.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// statusOf returns the HTTP status of an API error, or zero.
func statusOf(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

var _ llm.Provider = (*Provider)(nil)

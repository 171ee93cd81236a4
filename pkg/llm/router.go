// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/telemetry"
)

// Router implements Generator by dispatching each request to the provider
// that owns its model in the catalog.
type Router struct {
	catalog *Catalog
	tracer  trace.Tracer

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRouter creates a router over catalog. A nil catalog means DefaultCatalog.
func NewRouter(catalog *Catalog) *Router {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Router{
		catalog:   catalog,
		tracer:    otel.Tracer("agentnet/llm"),
		providers: make(map[string]Provider),
	}
}

// Register binds a provider name (see ProviderOpenAI and friends) to p.
func (r *Router) Register(name string, p Provider) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	return r
}

// Catalog returns the router's model catalog.
func (r *Router) Catalog() *Catalog {
	return r.catalog
}

// Generate sends req to the provider serving req.Model. Provider failures are
// returned as recoverable GENERATION_ERRORs so callers may retry them.
func (r *Router) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	name, ok := r.catalog.ProviderFor(req.Model)
	if !ok {
		return nil, errors.Validation("unknown model %q", req.Model)
	}
	r.mu.RLock()
	provider, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.CodeGeneration, fmt.Sprintf("no provider registered for %q", name), nil).
			WithContext("model", req.Model)
	}

	ctx, span := r.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String(telemetry.AttrLLMModel, req.Model),
		attribute.String(telemetry.AttrLLMProvider, name),
	))
	defer span.End()

	resp, err := provider.Chat(ctx, ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages(),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.As(err).Code != errors.CodeInternal {
			return nil, err
		}
		return nil, errors.New(errors.CodeGeneration, "generation failed", err).
			WithContext("model", req.Model).
			WithContext("provider", name).
			WithRecoverable(true)
	}
	span.SetAttributes(
		attribute.Int(telemetry.AttrLLMTokensInput, resp.Usage.PromptTokens),
		attribute.Int(telemetry.AttrLLMTokensOutput, resp.Usage.CompletionTokens),
	)

	used := resp.Model
	if used == "" {
		used = req.Model
	}
	return &GenerateResponse{Content: resp.Content, ModelUsed: used, Usage: resp.Usage}, nil
}

var _ Generator = (*Router)(nil)

// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sync"

	"github.com/jllopis/agentnet/pkg/errors"
)

// ScriptedMockProvider replays canned replies in order. Replies can be
// scripted per model; a model without its own script draws from the shared
// one. An exhausted script fails with GENERATION_ERROR, which lets tests
// push the orchestrator down its fallback chain by scripting only the
// backup model.
type ScriptedMockProvider struct {
	mu       sync.Mutex
	shared   []string
	byModel  map[string][]string
	requests []ChatRequest
}

// NewScriptedMockProvider returns a provider replaying replies for any model.
func NewScriptedMockProvider(replies ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{shared: replies, byModel: map[string][]string{}}
}

// Script queues replies served only to model.
func (s *ScriptedMockProvider) Script(model string, replies ...string) *ScriptedMockProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byModel[model] = append(s.byModel[model], replies...)
	return s
}

// Chat pops the next reply for req.Model.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	queue := &s.shared
	if q, ok := s.byModel[req.Model]; ok {
		queue = &q
		defer func() { s.byModel[req.Model] = *queue }()
	}
	if len(*queue) == 0 {
		return nil, errors.New(errors.CodeGeneration, "scripted mock exhausted", nil).
			WithContext("model", req.Model)
	}
	content := (*queue)[0]
	*queue = (*queue)[1:]
	return &ChatResponse{Content: content, Model: req.Model, Usage: usageOf(req, content)}, nil
}

// Requests returns the requests seen so far, in call order.
func (s *ScriptedMockProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}

// Remaining reports how many replies model can still draw.
func (s *ScriptedMockProvider) Remaining(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.byModel[model]; ok {
		return len(q)
	}
	return len(s.shared)
}

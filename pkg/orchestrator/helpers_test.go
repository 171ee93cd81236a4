// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/llm"
	"github.com/jllopis/agentnet/pkg/memory"
	"github.com/jllopis/agentnet/pkg/resilience"
	"github.com/jllopis/agentnet/pkg/store"
)

const backupModel = "mock-backup"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type events struct {
	mu   sync.Mutex
	list []core.Event
}

func (e *events) Emit(_ context.Context, ev core.Event) {
	e.mu.Lock()
	e.list = append(e.list, ev)
	e.mu.Unlock()
}

func (e *events) has(t core.EventType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.list {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// chat routes mock generations by who is asking.
type chat struct {
	coordinator func(ctx context.Context, prompt string) (string, error)
	synthesis   func(ctx context.Context, prompt string) (string, error)
	worker      func(ctx context.Context, system, prompt string) (string, error)
}

func (c chat) provider() *llm.MockProvider {
	return &llm.MockProvider{ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		var system, prompt string
		for _, m := range req.Messages {
			switch m.Role {
			case llm.RoleSystem:
				system = m.Content
			case llm.RoleUser:
				prompt = m.Content
			}
		}
		var (
			out string
			err error
		)
		switch {
		case strings.HasPrefix(system, "You coordinate") && strings.HasPrefix(prompt, "The iteration budget is exhausted"):
			out, err = c.synthesis(ctx, prompt)
		case strings.HasPrefix(system, "You coordinate"):
			out, err = c.coordinator(ctx, prompt)
		default:
			out, err = c.worker(ctx, system, prompt)
		}
		if err != nil {
			return nil, err
		}
		return &llm.ChatResponse{Content: out, Model: req.Model}, nil
	}}
}

type fixture struct {
	orch   *Orchestrator
	kv     *store.Memory
	memory *memory.TieredStore
	events *events
	clock  *clock
}

type fixtureOption func(*Options)

func newFixture(t *testing.T, c chat, opts ...fixtureOption) *fixture {
	t.Helper()
	clk := &clock{now: time.Now().UTC()}

	db, err := memory.OpenSQLite("file:" + filepath.Join(t.TempDir(), "cold.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cold, err := memory.NewSQLiteColdTier(db)
	require.NoError(t, err)
	mem, err := memory.NewTieredStore(memory.Options{
		Hot:   memory.NewInMemoryHotTier(time.Hour, clk.Now),
		Cold:  cold,
		Clock: clk.Now,
	})
	require.NoError(t, err)

	catalog := llm.DefaultCatalog().With(backupModel, llm.ProviderMock)
	router := llm.NewRouter(catalog).Register(llm.ProviderMock, c.provider())
	fast := resilience.DefaultRetryConfig().WithRetryCount(1).WithInitialBackoff(time.Millisecond).WithoutJitter()

	kv := store.NewMemory(clk.Now)
	ev := &events{}
	o := Options{
		Store:     kv,
		Memory:    mem,
		Generator: router,
		Catalog:   catalog,
		Events:    ev,
		Clock:     clk.Now,
		Defaults: Defaults{
			Model:            "mock",
			CoordinatorRetry: &fast,
			SubtaskRetry:     &fast,
		},
		FallbackModels: []string{backupModel},
	}
	for _, opt := range opts {
		opt(&o)
	}
	orch, err := New(o)
	require.NoError(t, err)
	return &fixture{orch: orch, kv: kv, memory: mem, events: ev, clock: clk}
}

func owner(id string) context.Context {
	return WithCaller(context.Background(), Caller{ID: id, Scopes: AllScopes()})
}

func respond(content string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return content, nil }
}

func worker(content string) func(context.Context, string, string) (string, error) {
	return func(context.Context, string, string) (string, error) { return content, nil }
}

const (
	delegateContent = `{"reasoning":"need a draft","complete":false,"subtasks":[{"agent_type":"content","description":"Write the email body"}],"confidence":0.6}`
	completeResult  = `{"reasoning":"draft is good","complete":true,"result":{"email":"Hello from the team"},"confidence":0.9}`
	contentReply    = `{"reasoning":"wrote it","content":"Hello from the team","confidence":0.85,"memories":[{"type":"fact","content":"Audience is existing customers","confidence":0.8}]}`
	synthesisReply  = `{"reasoning":"merged","result":"Final email","confidence":0.7}`
)

// failModels wraps next and fails every request for which fail returns an error.
func failModels(fail func(ctx context.Context, model string) error, next llm.Generator) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		if err := fail(ctx, req.Model); err != nil {
			return nil, err
		}
		return next.Generate(ctx, req)
	})
}

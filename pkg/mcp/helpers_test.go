// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/agentnet/pkg/llm"
	"github.com/jllopis/agentnet/pkg/memory"
	"github.com/jllopis/agentnet/pkg/orchestrator"
	"github.com/jllopis/agentnet/pkg/store"
)

const completeReply = `{"reasoning":"nothing to delegate","complete":true,"result":{"summary":"done"},"confidence":0.9}`

var testCaller = orchestrator.Caller{ID: "alice", Scopes: orchestrator.AllScopes()}

// newService builds an orchestrator whose coordinator completes every task
// on its first turn.
func newService(t testing.TB, dir string) *orchestrator.Orchestrator {
	t.Helper()
	db, err := memory.OpenSQLite("file:" + filepath.Join(dir, "cold.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	cold, err := memory.NewSQLiteColdTier(db)
	if err != nil {
		t.Fatalf("cold tier: %v", err)
	}
	mem, err := memory.NewTieredStore(memory.Options{
		Hot:  memory.NewInMemoryHotTier(time.Hour, time.Now),
		Cold: cold,
	})
	if err != nil {
		t.Fatalf("tiered store: %v", err)
	}
	router := llm.NewRouter(llm.DefaultCatalog()).
		Register(llm.ProviderMock, &llm.MockProvider{Response: completeReply})
	orch, err := orchestrator.New(orchestrator.Options{
		Store:     store.NewMemory(time.Now),
		Memory:    mem,
		Generator: router,
		Defaults:  orchestrator.Defaults{Model: "mock"},
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return orch
}

func tempDir(t testing.TB) string {
	dir, err := os.MkdirTemp("", "agentnet-mcp-*")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

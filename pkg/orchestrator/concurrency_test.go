// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/agentnet/pkg/agent"
	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/store"
)

// barrierKV holds the first readers task reads until all of them arrived,
// so every caller sees the same record before any of them writes.
type barrierKV struct {
	store.KV

	mu      sync.Mutex
	readers int
	seen    int
	ready   chan struct{}
}

func (k *barrierKV) arm(readers int) {
	k.mu.Lock()
	k.readers, k.seen, k.ready = readers, 0, make(chan struct{})
	k.mu.Unlock()
}

func (k *barrierKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if strings.HasPrefix(key, "task:") {
		k.mu.Lock()
		k.seen++
		n, ready := k.seen, k.ready
		if n == k.readers {
			close(ready)
		}
		k.mu.Unlock()
		if n <= k.readers {
			select {
			case <-ready:
			case <-time.After(2 * time.Second):
			}
		}
	}
	return k.KV.Get(ctx, key)
}

func kvBackends(t *testing.T) map[string]store.KV {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]store.KV{
		"memory": store.NewMemory(time.Now),
		"redis":  store.NewRedis(client, "agentnet:"),
	}
}

func TestProcessTaskConcurrentCallersSingleWinner(t *testing.T) {
	const callers = 4
	for name, backend := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			var turns atomic.Int32
			kv := &barrierKV{KV: backend}
			f := newFixture(t, chat{
				coordinator: func(context.Context, string) (string, error) {
					turns.Add(1)
					return completeResult, nil
				},
				synthesis: respond(synthesisReply),
				worker:    worker(contentReply),
			}, func(o *Options) { o.Store = kv })
			ctx := owner("alice")
			n := contentNetwork(t, f, ctx)
			task, err := f.orch.SubmitTask(ctx, n.ID, TaskSpec{Description: "Draft a product update email"})
			require.NoError(t, err)

			kv.arm(callers)
			var (
				wg   sync.WaitGroup
				errs = make([]error, callers)
			)
			for i := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = f.orch.ProcessTask(ctx, n.ID, task.ID)
				}()
			}
			wg.Wait()

			won := 0
			for _, err := range errs {
				if err == nil {
					won++
					continue
				}
				assert.True(t, errors.HasCode(err, errors.CodeValidation), err)
			}
			assert.Equal(t, 1, won)
			assert.Equal(t, int32(1), turns.Load())

			stored, err := f.orch.GetTask(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, TaskCompleted, stored.Status)
			assert.Equal(t, 1, stored.Iterations)
		})
	}
}

func TestSubtasksOnSameAgentKeepItWorking(t *testing.T) {
	var (
		networkID string
		contentID string
		observed  AgentStatus
		workers   atomic.Int32
	)
	var f *fixture
	f = newFixture(t, chat{
		coordinator: func(_ context.Context, prompt string) (string, error) {
			if strings.HasPrefix(prompt, "Iteration 1 of") {
				return fmt.Sprintf(`{"reasoning":"split it","complete":false,"subtasks":[`+
					`{"agent_id":%q,"description":"Write the subject line"},`+
					`{"agent_id":%q,"description":"Write the email body"}],"confidence":0.6}`, contentID, contentID), nil
			}
			return completeResult, nil
		},
		synthesis: respond(synthesisReply),
		worker: func(_ context.Context, _, prompt string) (string, error) {
			workers.Add(1)
			if !strings.Contains(prompt, "Write the email body") {
				return contentReply, nil
			}
			// Wait for the subject subtask to finish, then look at the agent
			// while this one is still running.
			deadline := time.Now().Add(2 * time.Second)
			for !f.events.has(core.EventSubtaskCompleted) && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			agents, err := f.orch.ListAgents(owner("alice"), networkID)
			if err != nil {
				return "", err
			}
			for _, a := range agents {
				if a.ID == contentID {
					observed = a.Status
				}
			}
			return contentReply, nil
		},
	})
	ctx := owner("alice")
	n := contentNetwork(t, f, ctx)
	networkID = n.ID
	for _, a := range mustAgents(t, f, ctx, n.ID) {
		if a.Type == agent.TypeContent {
			contentID = a.ID
		}
	}
	require.NotEmpty(t, contentID)

	task, err := f.orch.SubmitTask(ctx, n.ID, TaskSpec{Description: "Draft a product update email"})
	require.NoError(t, err)
	done, err := f.orch.ProcessTask(ctx, n.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, done.Status)
	assert.Equal(t, int32(2), workers.Load())
	assert.Equal(t, AgentWorking, observed)

	for _, a := range mustAgents(t, f, ctx, n.ID) {
		if a.ID == contentID {
			assert.Equal(t, AgentIdle, a.Status)
			assert.Equal(t, "completed subtask", a.LastAction)
		}
	}
}

func mustAgents(t *testing.T, f *fixture, ctx context.Context, networkID string) []Agent {
	t.Helper()
	agents, err := f.orch.ListAgents(ctx, networkID)
	require.NoError(t, err)
	return agents
}

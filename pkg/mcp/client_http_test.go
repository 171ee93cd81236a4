// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/orchestrator"
)

func newHTTPClient(t *testing.T, srv *Server, caller orchestrator.Caller) *Client {
	t.Helper()
	httpServer := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(httpServer.Close)
	client, err := NewClientWithStreamableHTTP(httpServer.URL, caller, WithRetry(0, 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestServer_HTTPTaskLifecycle(t *testing.T) {
	health := core.NewHealthRegistry(0)
	health.Register("static", core.StaticChecker(core.HealthHealthy, "ok"))
	srv := NewServer("agentnet", "test", newService(t, t.TempDir()), WithHealth(health))
	client := newHTTPClient(t, srv, testCaller)
	ctx := callCtx(t)

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, want := range []string{ToolCreateNetwork, ToolSubmitTask, ToolProcessTask, ToolGetTask,
		ToolGetNetwork, ToolListTasks, ToolListAgents, ToolAddMemory, ToolSearchMemory, ToolDeleteNetwork, ToolHealth} {
		assert.True(t, names[want], "missing tool %s", want)
	}

	var network orchestrator.Network
	require.NoError(t, client.Call(ctx, ToolCreateNetwork, map[string]interface{}{"name": "launch"}, &network))
	assert.Equal(t, "alice", network.Owner)

	var agents []orchestrator.Agent
	require.NoError(t, client.Call(ctx, ToolListAgents, map[string]interface{}{"network_id": network.ID}, &agents))
	assert.NotEmpty(t, agents)

	var task orchestrator.Task
	require.NoError(t, client.Call(ctx, ToolSubmitTask, map[string]interface{}{
		"network_id":  network.ID,
		"description": "Draft the launch announcement",
		"priority":    3,
	}, &task))
	assert.Equal(t, orchestrator.TaskPending, task.Status)
	assert.Equal(t, 3, task.Priority)

	var done orchestrator.Task
	require.NoError(t, client.Call(ctx, ToolProcessTask, map[string]interface{}{
		"network_id": network.ID,
		"task_id":    task.ID,
	}, &done))
	assert.Equal(t, orchestrator.TaskCompleted, done.Status)

	var fetched orchestrator.Task
	require.NoError(t, client.Call(ctx, ToolGetTask, map[string]interface{}{"task_id": task.ID}, &fetched))
	assert.Equal(t, orchestrator.TaskCompleted, fetched.Status)

	var report healthReport
	require.NoError(t, client.Call(ctx, ToolHealth, nil, &report))
	assert.Equal(t, core.HealthHealthy, report.Status)

	var deleted orchestrator.DeleteResult
	require.NoError(t, client.Call(ctx, ToolDeleteNetwork, map[string]interface{}{"network_id": network.ID}, &deleted))
	assert.Equal(t, 1, deleted.Tasks)

	err = client.Call(ctx, ToolGetNetwork, map[string]interface{}{"network_id": network.ID}, nil)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)
}

func TestServer_HTTPMemoryTools(t *testing.T) {
	srv := NewServer("agentnet", "test", newService(t, t.TempDir()))
	client := newHTTPClient(t, srv, testCaller)
	ctx := callCtx(t)

	var network orchestrator.Network
	require.NoError(t, client.Call(ctx, ToolCreateNetwork, map[string]interface{}{"name": "memory"}, &network))

	require.NoError(t, client.Call(ctx, ToolAddMemory, map[string]interface{}{
		"network_id": network.ID,
		"type":       "fact",
		"content":    "Customers prefer short subject lines",
		"confidence": 0.8,
	}, nil))

	var items []map[string]any
	require.NoError(t, client.Call(ctx, ToolSearchMemory, map[string]interface{}{
		"network_id": network.ID,
		"query":      "subject lines",
	}, &items))
	require.Len(t, items, 1)
}

func TestServer_ErrorsCarryCodes(t *testing.T) {
	srv := NewServer("agentnet", "test", newService(t, t.TempDir()))
	ctx := callCtx(t)

	anonymous := newHTTPClient(t, srv, orchestrator.Caller{})
	err := anonymous.Call(ctx, ToolCreateNetwork, map[string]interface{}{"name": "nope"}, nil)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized), "got %v", err)

	client := newHTTPClient(t, srv, testCaller)
	err = client.Call(ctx, ToolSubmitTask, map[string]interface{}{"description": "no network"}, nil)
	assert.True(t, errors.HasCode(err, errors.CodeValidation), "got %v", err)

	err = client.Call(ctx, ToolGetTask, map[string]interface{}{"task_id": "missing"}, nil)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)
}

func TestServer_DefaultCaller(t *testing.T) {
	srv := NewServer("agentnet", "test", newService(t, t.TempDir()),
		WithDefaultCaller(orchestrator.Caller{ID: "local", Scopes: orchestrator.AllScopes()}))
	client := newHTTPClient(t, srv, orchestrator.Caller{})
	ctx := callCtx(t)

	var network orchestrator.Network
	require.NoError(t, client.Call(ctx, ToolCreateNetwork, map[string]interface{}{"name": "local"}, &network))
	assert.Equal(t, "local", network.Owner)
}

func TestCallerFromHeaders(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		wantOK  bool
		wantLen int
	}{
		{name: "none", headers: nil},
		{name: "id only", headers: map[string]string{HeaderCaller: "bob"}, wantOK: true},
		{name: "scopes", headers: map[string]string{HeaderCaller: "bob", HeaderScopes: "read, submit,,"}, wantOK: true, wantLen: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			c, ok := CallerFromHeaders(h)
			assert.Equal(t, tc.wantOK, ok)
			assert.Len(t, c.Scopes, tc.wantLen)
		})
	}

	h := CallerHeaders(testCaller)
	assert.Equal(t, "alice", h[HeaderCaller])
	assert.Equal(t, "create,submit,process,read,delete", h[HeaderScopes])
}

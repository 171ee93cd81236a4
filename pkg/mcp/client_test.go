// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/agentnet/pkg/errors"
)

// flakyConn fails the first failures calls of each kind.
type flakyConn struct {
	client.MCPClient
	failures  int
	listCalls int
	toolCalls int
	block     bool
}

func (f *flakyConn) ListTools(ctx context.Context, _ mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	f.listCalls++
	if f.listCalls <= f.failures {
		return nil, stderrors.New("connection reset")
	}
	return &mcpgo.ListToolsResult{Tools: []mcpgo.Tool{{Name: ToolHealth}}}, nil
}

func (f *flakyConn) CallTool(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	f.toolCalls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.toolCalls <= f.failures {
		return nil, stderrors.New("connection reset")
	}
	return mcpgo.NewToolResultText(`{"status":"healthy"}`), nil
}

func (f *flakyConn) Close() error { return nil }

func TestClientRetriesTransportErrors(t *testing.T) {
	conn := &flakyConn{failures: 2}
	c := NewClient(conn, WithRetry(2, time.Millisecond))

	var out map[string]string
	require.NoError(t, c.Call(context.Background(), ToolHealth, nil, &out))
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, 3, conn.toolCalls)

	conn = &flakyConn{failures: 5}
	c = NewClient(conn, WithRetry(1, time.Millisecond))
	_, err := c.CallTool(context.Background(), ToolHealth, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, conn.toolCalls)
}

func TestClientTimeoutIsNotRetried(t *testing.T) {
	conn := &flakyConn{block: true}
	c := NewClient(conn, WithTimeout(20*time.Millisecond), WithRetry(3, time.Millisecond))

	_, err := c.CallTool(context.Background(), ToolHealth, nil)
	assert.True(t, errors.HasCode(err, errors.CodeTimeout), "got %v", err)
	assert.Equal(t, 1, conn.toolCalls)
}

func TestClientCachesTools(t *testing.T) {
	conn := &flakyConn{}
	c := NewClient(conn, WithToolCacheTTL(time.Minute))
	for i := 0; i < 3; i++ {
		tools, err := c.ListTools(context.Background())
		require.NoError(t, err)
		require.Len(t, tools, 1)
	}
	assert.Equal(t, 1, conn.listCalls)

	conn = &flakyConn{}
	c = NewClient(conn, WithToolCacheTTL(0))
	_, _ = c.ListTools(context.Background())
	_, _ = c.ListTools(context.Background())
	assert.Equal(t, 2, conn.listCalls)
}

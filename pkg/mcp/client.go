// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the orchestrator as Model Context Protocol tools and
// provides the client the CLI uses to call a running server.
package mcp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/agentnet/pkg/orchestrator"
	"github.com/jllopis/agentnet/pkg/resilience"
)

const (
	clientName    = "agentnet-client"
	clientVersion = "0.1.0"

	handshakeTimeout = 10 * time.Second
)

// ClientOption tunes a Client.
type ClientOption func(*Client)

// WithTimeout bounds every request. Zero leaves requests to the caller's
// context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithRetry sets how many times a failed transport call is retried and the
// first backoff delay, which doubles on each retry.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retry.RetryCount = retries
		}
		if backoff > 0 {
			c.retry.InitialBackoff = backoff
		}
	}
}

// WithToolCacheTTL keeps list_tools results for ttl. Zero disables the cache.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.tools.ttl = ttl
		}
	}
}

// Client calls agentnet tools on a server. Transport failures are retried;
// tool errors are decoded into *errors.Error values and returned as is.
type Client struct {
	conn    client.MCPClient
	timeout time.Duration
	retry   resilience.RetryConfig
	tools   toolCache
}

// NewClient wraps an initialized MCP connection.
func NewClient(conn client.MCPClient, opts ...ClientOption) *Client {
	c := &Client{
		conn:    conn,
		timeout: 10 * time.Second,
		retry:   resilience.DefaultRetryConfig().WithMaxBackoff(2 * time.Second),
		tools:   toolCache{ttl: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientWithStdio starts command and talks to it over stdin/stdout.
func NewClientWithStdio(command string, args []string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStdioProtocol(command, args, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStdioProtocol is NewClientWithStdio with an explicit
// protocol version.
func NewClientWithStdioProtocol(command string, args []string, protocolVersion string, opts ...ClientOption) (*Client, error) {
	conn, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, err
	}
	return handshake(conn, protocolVersion, opts)
}

// NewClientWithStreamableHTTP connects to a server's streamable HTTP
// endpoint. A non-empty caller is sent in the identity headers.
func NewClientWithStreamableHTTP(baseURL string, caller orchestrator.Caller, opts ...ClientOption) (*Client, error) {
	var topts []transport.StreamableHTTPCOption
	if h := CallerHeaders(caller); len(h) > 0 {
		topts = append(topts, transport.WithHTTPHeaders(h))
	}
	conn, err := client.NewStreamableHttpClient(baseURL, topts...)
	if err != nil {
		return nil, err
	}
	return handshake(conn, mcp.LATEST_PROTOCOL_VERSION, opts)
}

// CallerHeaders returns the identity headers for c.
func CallerHeaders(c orchestrator.Caller) map[string]string {
	if c.ID == "" {
		return nil
	}
	h := map[string]string{HeaderCaller: c.ID}
	if len(c.Scopes) > 0 {
		scopes := make([]string, len(c.Scopes))
		for i, s := range c.Scopes {
			scopes[i] = string(s)
		}
		h[HeaderScopes] = strings.Join(scopes, ",")
	}
	return h
}

// handshake starts conn and negotiates the protocol. conn is closed when
// either step fails.
func handshake(conn *client.Client, protocolVersion string, opts []ClientOption) (*Client, error) {
	if protocolVersion == "" {
		protocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}
	// The transport lives as long as conn, so Start gets no deadline.
	if err := conn.Start(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = protocolVersion
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := conn.Initialize(ctx, req); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

// ListTools returns the server's tools, served from cache while fresh.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if tools, ok := c.tools.get(); ok {
		return tools, nil
	}
	res, err := send(ctx, c, func(ctx context.Context) (*mcp.ListToolsResult, error) {
		return c.conn.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.tools.put(res.Tools)
	return res.Tools, nil
}

// CallTool runs a tool and returns the raw result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return send(ctx, c, func(ctx context.Context) (*mcp.CallToolResult, error) {
		return c.conn.CallTool(ctx, req)
	})
}

// Call executes a tool and decodes its result into out, which may be nil.
// Tool failures come back as *errors.Error values from pkg/errors.
func (c *Client) Call(ctx context.Context, name string, args map[string]interface{}, out any) error {
	res, err := c.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	return DecodeResult(res, out)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// send runs one request under the client's retry policy, bounding each
// attempt by the client timeout.
func send[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	return resilience.Retry(ctx, c.retry, func(ctx context.Context) (T, error) {
		var out T
		err := resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx)
			return err
		})
		return out, err
	})
}

type toolCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	tools   []mcp.Tool
	expires time.Time
}

func (tc *toolCache) get() ([]mcp.Tool, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.ttl == 0 || len(tc.tools) == 0 || time.Now().After(tc.expires) {
		return nil, false
	}
	return append([]mcp.Tool(nil), tc.tools...), true
}

func (tc *toolCache) put(tools []mcp.Tool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.ttl == 0 {
		return
	}
	tc.tools = append([]mcp.Tool(nil), tools...)
	tc.expires = time.Now().Add(tc.ttl)
}

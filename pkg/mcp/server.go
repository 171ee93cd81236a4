// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/memory"
	"github.com/jllopis/agentnet/pkg/orchestrator"
)

// Headers carrying the caller identity on the streamable HTTP transport.
// The server trusts them; put an authenticating proxy in front of it.
const (
	HeaderCaller = "X-Agentnet-Caller"
	HeaderScopes = "X-Agentnet-Scopes"
)

// Service is the orchestrator surface exposed as tools.
type Service interface {
	CreateNetwork(ctx context.Context, spec orchestrator.NetworkSpec) (orchestrator.Network, error)
	ListNetworks(ctx context.Context) ([]orchestrator.Network, error)
	GetNetwork(ctx context.Context, networkID string) (orchestrator.NetworkView, error)
	DeleteNetwork(ctx context.Context, networkID string) (orchestrator.DeleteResult, error)
	AddAgent(ctx context.Context, networkID string, cfg orchestrator.AgentConfig) (orchestrator.Agent, error)
	RemoveAgent(ctx context.Context, networkID, agentID string) error
	ListAgents(ctx context.Context, networkID string) ([]orchestrator.Agent, error)
	SubmitTask(ctx context.Context, networkID string, spec orchestrator.TaskSpec) (orchestrator.Task, error)
	ProcessTask(ctx context.Context, networkID, taskID string) (orchestrator.Task, error)
	GetTask(ctx context.Context, taskID string) (orchestrator.Task, error)
	ListTasks(ctx context.Context, networkID string) ([]orchestrator.Task, error)
	AddMemory(ctx context.Context, networkID string, in orchestrator.MemoryInput) (memory.Item, error)
	SearchMemory(ctx context.Context, networkID string, q memory.SearchQuery) ([]memory.Item, error)
}

// ServerOption customizes the tool server.
type ServerOption func(*Server)

// WithDefaultCaller sets the identity used when a request carries none.
// Stdio sessions always run as this caller.
func WithDefaultCaller(c orchestrator.Caller) ServerOption {
	return func(s *Server) { s.defaultCaller = c }
}

// WithHealth exposes registry through the health tool.
func WithHealth(registry *core.HealthRegistry) ServerOption {
	return func(s *Server) { s.health = registry }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server exposes a Service over the Model Context Protocol.
type Server struct {
	mcpServer     *server.MCPServer
	svc           Service
	health        *core.HealthRegistry
	defaultCaller orchestrator.Caller
	logger        *slog.Logger
}

// NewServer creates a tool server for svc and registers every tool.
func NewServer(name, version string, svc Service, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Create agent networks, submit tasks and let the coordinator delegate them to specialist agents."),
		),
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "mcp"))
	for _, t := range s.tools() {
		s.RegisterTool(t)
	}
	return s
}

// RegisterTool adds t to the server. Required arguments are checked before
// the handler runs and the caller is resolved from the request context.
func (s *Server) RegisterTool(t Tool) {
	s.mcpServer.AddTool(t.Definition, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		if args == nil {
			args = map[string]interface{}{}
		}
		if _, ok := orchestrator.CallerFrom(ctx); !ok && s.defaultCaller.ID != "" {
			ctx = orchestrator.WithCaller(ctx, s.defaultCaller)
		}
		start := time.Now()
		var (
			out any
			err = validateRequiredArgs(t.Definition, args)
		)
		if err == nil {
			out, err = t.Handle(ctx, args)
		}
		attrs := []any{
			slog.String("tool", t.Definition.Name),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			s.logger.WarnContext(ctx, "mcp.tool.error", append(attrs, slog.String("error", err.Error()))...)
			return errorResult(err), nil
		}
		s.logger.DebugContext(ctx, "mcp.tool.call", attrs...)
		return structuredResult(out)
	})
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves on stdin/stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return orchestrator.WithCaller(ctx, s.defaultCaller)
	})
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HTTPHandler returns the streamable HTTP transport for the server.
func (s *Server) HTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if c, ok := CallerFromHeaders(r.Header); ok {
				return orchestrator.WithCaller(ctx, c)
			}
			return ctx
		}),
	)
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := s.HTTPHandler()
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Start(addr) }()
	s.logger.InfoContext(ctx, "mcp.http.listen", slog.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// CallerFromHeaders reads the caller identity set by an upstream proxy.
func CallerFromHeaders(h http.Header) (orchestrator.Caller, bool) {
	id := strings.TrimSpace(h.Get(HeaderCaller))
	if id == "" {
		return orchestrator.Caller{}, false
	}
	return orchestrator.Caller{ID: id, Scopes: ParseScopes(h.Get(HeaderScopes))}, true
}

// ParseScopes splits a comma separated scope list.
func ParseScopes(raw string) []orchestrator.Scope {
	var scopes []orchestrator.Scope
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			scopes = append(scopes, orchestrator.Scope(part))
		}
	}
	return scopes
}

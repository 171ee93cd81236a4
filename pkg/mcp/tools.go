// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/memory"
	"github.com/jllopis/agentnet/pkg/orchestrator"
)

// Tool names.
const (
	ToolCreateNetwork = "create_network"
	ToolListNetworks  = "list_networks"
	ToolGetNetwork    = "get_network"
	ToolDeleteNetwork = "delete_network"
	ToolAddAgent      = "add_agent"
	ToolRemoveAgent   = "remove_agent"
	ToolListAgents    = "list_agents"
	ToolSubmitTask    = "submit_task"
	ToolProcessTask   = "process_task"
	ToolGetTask       = "get_task"
	ToolListTasks     = "list_tasks"
	ToolAddMemory     = "add_memory"
	ToolSearchMemory  = "search_memory"
	ToolHealth        = "health"
)

// Tool pairs a definition with its handler. Handlers return a value that is
// sent back as structured content.
type Tool struct {
	Definition mcp.Tool
	Handle     func(ctx context.Context, args map[string]interface{}) (any, error)
}

type networkRef struct {
	NetworkID string `json:"network_id"`
}

type taskRef struct {
	NetworkID string `json:"network_id"`
	TaskID    string `json:"task_id"`
}

type searchArgs struct {
	NetworkID string  `json:"network_id"`
	Query     string  `json:"query"`
	Type      string  `json:"type"`
	MinScore  float64 `json:"min_score"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
}

func networkIDArg() mcp.ToolOption {
	return mcp.WithString("network_id", mcp.Required(), mcp.Description("Network id"))
}

func (s *Server) tools() []Tool {
	tools := []Tool{
		{
			Definition: mcp.NewTool(ToolCreateNetwork,
				mcp.WithDescription("Create an agent network. Without agents it gets a coordinator and one agent of every specialist kind."),
				mcp.WithString("name", mcp.Required(), mcp.Description("Network name")),
				mcp.WithString("description", mcp.Description("What the network is for")),
				mcp.WithArray("agents", mcp.Description("Agent configs: name, type, model, temperature, max_tokens, capabilities"),
					mcp.Items(map[string]any{"type": "object"})),
				mcp.WithObject("shared_context", mcp.Description("Context shared with every agent")),
				mcp.WithNumber("max_iterations", mcp.Description("Coordinator iteration budget (1-20)")),
				mcp.WithNumber("timeout_seconds", mcp.Description("Task processing timeout (30-3600)")),
				mcp.WithNumber("retention_days", mcp.Description("Days before the network is deleted (1-365)")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var spec orchestrator.NetworkSpec
				if err := bindArgs(args, &spec); err != nil {
					return nil, err
				}
				return s.svc.CreateNetwork(ctx, spec)
			},
		},
		{
			Definition: mcp.NewTool(ToolListNetworks,
				mcp.WithDescription("List the networks owned by the caller."),
			),
			Handle: func(ctx context.Context, _ map[string]interface{}) (any, error) {
				return s.svc.ListNetworks(ctx)
			},
		},
		{
			Definition: mcp.NewTool(ToolGetNetwork,
				mcp.WithDescription("Get a network with its agents, tasks and a memory snapshot."),
				networkIDArg(),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var ref networkRef
				if err := bindArgs(args, &ref); err != nil {
					return nil, err
				}
				return s.svc.GetNetwork(ctx, ref.NetworkID)
			},
		},
		{
			Definition: mcp.NewTool(ToolDeleteNetwork,
				mcp.WithDescription("Delete a network with its agents, tasks and memories."),
				mcp.WithDestructiveHintAnnotation(true),
				networkIDArg(),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var ref networkRef
				if err := bindArgs(args, &ref); err != nil {
					return nil, err
				}
				return s.svc.DeleteNetwork(ctx, ref.NetworkID)
			},
		},
		{
			Definition: mcp.NewTool(ToolAddAgent,
				mcp.WithDescription("Add an agent to a network."),
				networkIDArg(),
				mcp.WithObject("agent", mcp.Required(), mcp.Description("Agent config: name, type, model, temperature, max_tokens, capabilities")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var in struct {
					NetworkID string                   `json:"network_id"`
					Agent     orchestrator.AgentConfig `json:"agent"`
				}
				if err := bindArgs(args, &in); err != nil {
					return nil, err
				}
				return s.svc.AddAgent(ctx, in.NetworkID, in.Agent)
			},
		},
		{
			Definition: mcp.NewTool(ToolRemoveAgent,
				mcp.WithDescription("Remove an agent from a network."),
				mcp.WithDestructiveHintAnnotation(true),
				networkIDArg(),
				mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var in struct {
					NetworkID string `json:"network_id"`
					AgentID   string `json:"agent_id"`
				}
				if err := bindArgs(args, &in); err != nil {
					return nil, err
				}
				if err := s.svc.RemoveAgent(ctx, in.NetworkID, in.AgentID); err != nil {
					return nil, err
				}
				return map[string]any{"network_id": in.NetworkID, "agent_id": in.AgentID, "removed": true}, nil
			},
		},
		{
			Definition: mcp.NewTool(ToolListAgents,
				mcp.WithDescription("List the agents of a network."),
				networkIDArg(),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var ref networkRef
				if err := bindArgs(args, &ref); err != nil {
					return nil, err
				}
				return s.svc.ListAgents(ctx, ref.NetworkID)
			},
		},
		{
			Definition: mcp.NewTool(ToolSubmitTask,
				mcp.WithDescription("Submit a task to a network. The task stays pending until process_task runs it."),
				networkIDArg(),
				mcp.WithString("description", mcp.Required(), mcp.Description("What the network should do")),
				mcp.WithObject("context", mcp.Description("Task context")),
				mcp.WithNumber("priority", mcp.Description("Priority 1-10")),
				mcp.WithString("deadline", mcp.Description("RFC 3339 deadline in the future")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var in struct {
					NetworkID string `json:"network_id"`
					orchestrator.TaskSpec
				}
				if err := bindArgs(args, &in); err != nil {
					return nil, err
				}
				return s.svc.SubmitTask(ctx, in.NetworkID, in.TaskSpec)
			},
		},
		{
			Definition: mcp.NewTool(ToolProcessTask,
				mcp.WithDescription("Run the coordinator loop for a pending task and return the finished task."),
				networkIDArg(),
				mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var ref taskRef
				if err := bindArgs(args, &ref); err != nil {
					return nil, err
				}
				return s.svc.ProcessTask(ctx, ref.NetworkID, ref.TaskID)
			},
		},
		{
			Definition: mcp.NewTool(ToolGetTask,
				mcp.WithDescription("Get a task with its history and result."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var ref taskRef
				if err := bindArgs(args, &ref); err != nil {
					return nil, err
				}
				return s.svc.GetTask(ctx, ref.TaskID)
			},
		},
		{
			Definition: mcp.NewTool(ToolListTasks,
				mcp.WithDescription("List the tasks of a network, newest first."),
				mcp.WithReadOnlyHintAnnotation(true),
				networkIDArg(),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var ref networkRef
				if err := bindArgs(args, &ref); err != nil {
					return nil, err
				}
				return s.svc.ListTasks(ctx, ref.NetworkID)
			},
		},
		{
			Definition: mcp.NewTool(ToolAddMemory,
				mcp.WithDescription("Store a memory item in a network."),
				networkIDArg(),
				mcp.WithString("type", mcp.Required(), mcp.Enum(string(memory.TypeFact), string(memory.TypeContext), string(memory.TypeDecision), string(memory.TypeFeedback))),
				mcp.WithString("content", mcp.Required(), mcp.Description("Memory content")),
				mcp.WithNumber("confidence", mcp.Required(), mcp.Description("Confidence 0-1")),
				mcp.WithObject("metadata", mcp.Description("Free form metadata")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var in struct {
					NetworkID string `json:"network_id"`
					orchestrator.MemoryInput
				}
				if err := bindArgs(args, &in); err != nil {
					return nil, err
				}
				return s.svc.AddMemory(ctx, in.NetworkID, in.MemoryInput)
			},
		},
		{
			Definition: mcp.NewTool(ToolSearchMemory,
				mcp.WithDescription("Search a network's memory by meaning when embeddings are available, otherwise by keywords."),
				mcp.WithReadOnlyHintAnnotation(true),
				networkIDArg(),
				mcp.WithString("query", mcp.Description("Search text")),
				mcp.WithString("type", mcp.Description("Restrict to one memory type")),
				mcp.WithNumber("min_score", mcp.Description("Drop vector matches below this score")),
				mcp.WithNumber("limit", mcp.Description("Maximum items")),
				mcp.WithNumber("offset", mcp.Description("Items to skip")),
			),
			Handle: func(ctx context.Context, args map[string]interface{}) (any, error) {
				var in searchArgs
				if err := bindArgs(args, &in); err != nil {
					return nil, err
				}
				return s.svc.SearchMemory(ctx, in.NetworkID, memory.SearchQuery{
					Query:    in.Query,
					Type:     memory.Type(in.Type),
					MinScore: in.MinScore,
					Limit:    in.Limit,
					Offset:   in.Offset,
				})
			},
		},
	}
	if s.health != nil {
		tools = append(tools, Tool{
			Definition: mcp.NewTool(ToolHealth,
				mcp.WithDescription("Report component health."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handle: func(ctx context.Context, _ map[string]interface{}) (any, error) {
				results, status := s.health.CheckAll(ctx)
				return healthReport{Status: status, Components: results}, nil
			},
		})
	}
	return tools
}

type healthReport struct {
	Status     core.HealthStatus   `json:"status"`
	Components []core.HealthResult `json:"components"`
}

// bindArgs decodes tool arguments into out. Decoding failures are
// validation errors.
func bindArgs(args map[string]interface{}, out any) error {
	if err := decodeInto(args, out); err != nil {
		return errors.Validation("invalid arguments: %v", err)
	}
	return nil
}

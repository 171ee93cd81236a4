// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"

	"github.com/jllopis/agentnet/pkg/config"
	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/mcp"
	"github.com/jllopis/agentnet/pkg/orchestrator"
)

type healthReport struct {
	Status     core.HealthStatus   `json:"status"`
	Components []core.HealthResult `json:"components"`
}

type overview struct {
	Health   healthReport           `json:"health"`
	Networks []orchestrator.Network `json:"networks"`
}

// runStatus shows one task, one network, or the server overview.
func runStatus(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("status", flag.ContinueOnError)
	network := cmd.String("network", "", "Show a network with its agents and tasks")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("status", err.Error())
	}

	client, err := dial(global, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	switch {
	case cmd.NArg() > 0:
		var t orchestrator.Task
		if err := client.Call(ctx, mcp.ToolGetTask, map[string]interface{}{"task_id": cmd.Arg(0)}, &t); err != nil {
			return err
		}
		if global.JSON {
			printJSON(t)
			return nil
		}
		printTask(t)
	case *network != "":
		var view orchestrator.NetworkView
		if err := client.Call(ctx, mcp.ToolGetNetwork, map[string]interface{}{"network_id": *network}, &view); err != nil {
			return err
		}
		if global.JSON {
			printJSON(view)
			return nil
		}
		printNetwork(view)
	default:
		var o overview
		if err := client.Call(ctx, mcp.ToolHealth, nil, &o.Health); err != nil {
			return err
		}
		if err := client.Call(ctx, mcp.ToolListNetworks, nil, &o.Networks); err != nil {
			return err
		}
		if global.JSON {
			printJSON(o)
			return nil
		}
		printOverview(o)
	}
	return nil
}

func printOverview(o overview) {
	fmt.Printf("health: %s\n", o.Health.Status)
	w := newTabWriter()
	writeRow(w, "COMPONENT", "STATUS", "MESSAGE")
	for _, c := range o.Health.Components {
		writeRow(w, c.Component, string(c.Status), truncateMessage(c.Message, 80))
	}
	_ = w.Flush()
	fmt.Println()

	w = newTabWriter()
	writeRow(w, "NETWORK_ID", "NAME", "STATUS", "CREATED")
	for _, n := range o.Networks {
		writeRow(w, n.ID, n.Name, string(n.Status), formatTime(n.CreatedAt))
	}
	_ = w.Flush()
}

func printNetwork(v orchestrator.NetworkView) {
	n := v.Network
	fmt.Printf("network %s (%s) status=%s max_iterations=%d timeout=%ds retention=%dd\n",
		n.ID, n.Name, n.Status, n.MaxIterations, n.TimeoutSeconds, n.RetentionDays)
	fmt.Println()

	w := newTabWriter()
	writeRow(w, "AGENT_ID", "NAME", "TYPE", "MODEL", "STATUS", "CONFIDENCE")
	for _, a := range v.Agents {
		writeRow(w, a.ID, a.Name, string(a.Type), a.Model, string(a.Status), strconv.FormatFloat(a.Confidence, 'f', 2, 64))
	}
	_ = w.Flush()
	fmt.Println()

	printTasks(v.Tasks)
	fmt.Printf("\nmemories: %d\n", len(v.Memories))
}

func printTasks(tasks []orchestrator.Task) {
	w := newTabWriter()
	writeRow(w, "TASK_ID", "STATUS", "ITERATIONS", "UPDATED", "DESCRIPTION")
	for _, t := range tasks {
		writeRow(w, t.ID, string(t.Status),
			fmt.Sprintf("%d/%d", t.Iterations, t.MaxIterations),
			formatTime(t.UpdatedAt),
			truncateMessage(t.Description, 60))
	}
	_ = w.Flush()
}

func printTask(t orchestrator.Task) {
	fmt.Printf("task %s status=%s iterations=%d/%d\n", t.ID, t.Status, t.Iterations, t.MaxIterations)
	if t.Error != "" {
		fmt.Printf("error [%s]: %s\n", t.ErrorCode, t.Error)
	}
	if len(t.History) > 0 {
		fmt.Println()
		w := newTabWriter()
		writeRow(w, "ITER", "KIND", "AGENT", "MODEL", "CONFIDENCE", "DESCRIPTION")
		for _, h := range t.History {
			model := h.ModelUsed
			if h.Fallback {
				model += " (fallback)"
			}
			writeRow(w, strconv.Itoa(h.Iteration), string(h.Kind), string(h.AgentType), model,
				strconv.FormatFloat(h.Confidence, 'f', 2, 64), truncateMessage(h.Description, 50))
		}
		_ = w.Flush()
	}
	if t.Result != nil {
		payload, err := json.MarshalIndent(t.Result, "", "  ")
		if err == nil {
			fmt.Printf("\nresult:\n%s\n", payload)
		}
	}
}

// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/jllopis/agentnet/pkg/config"
	"github.com/jllopis/agentnet/pkg/mcp"
	"github.com/jllopis/agentnet/pkg/orchestrator"
)

type applyResult struct {
	Network orchestrator.Network `json:"network"`
	Tasks   []orchestrator.Task  `json:"tasks,omitempty"`
}

func runApply(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("apply", flag.ContinueOnError)
	file := cmd.String("f", "", "Network manifest (YAML, - for stdin)")
	process := cmd.Bool("process", false, "Process the manifest's tasks after submitting them")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("apply", err.Error())
	}
	if *file == "" {
		return NewInvalidArgumentError("f", "apply requires -f <manifest>")
	}
	m, err := readManifest(*file)
	if err != nil {
		return NewConfigError(err, *file)
	}

	client, err := dial(global, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	netArgs, err := toArgs(m.NetworkSpec)
	if err != nil {
		return err
	}
	var res applyResult
	if err := client.Call(ctx, mcp.ToolCreateNetwork, netArgs, &res.Network); err != nil {
		return err
	}
	for _, spec := range m.Tasks {
		t, err := submitAndMaybeProcess(ctx, client, res.Network.ID, spec, *process)
		if err != nil {
			return err
		}
		res.Tasks = append(res.Tasks, t)
	}

	if global.JSON {
		printJSON(res)
		return nil
	}
	fmt.Printf("network %s (%s) created\n", res.Network.ID, res.Network.Name)
	if len(res.Tasks) > 0 {
		printTasks(res.Tasks)
	}
	return nil
}

func submitAndMaybeProcess(ctx context.Context, client *mcp.Client, networkID string, spec orchestrator.TaskSpec, process bool) (orchestrator.Task, error) {
	taskArgs, err := toArgs(spec)
	if err != nil {
		return orchestrator.Task{}, err
	}
	taskArgs["network_id"] = networkID
	var t orchestrator.Task
	if err := client.Call(ctx, mcp.ToolSubmitTask, taskArgs, &t); err != nil {
		return orchestrator.Task{}, err
	}
	if !process {
		return t, nil
	}
	if err := client.Call(ctx, mcp.ToolProcessTask, map[string]interface{}{
		"network_id": networkID,
		"task_id":    t.ID,
	}, &t); err != nil {
		return orchestrator.Task{}, err
	}
	return t, nil
}

// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/jllopis/agentnet/pkg/config"
	"github.com/jllopis/agentnet/pkg/orchestrator"
)

type submitFlags struct {
	network     string
	description string
	file        string
	priority    int
	deadline    string
	context     string
	process     bool
}

func parseSubmitFlags(args []string) (submitFlags, error) {
	var f submitFlags
	cmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	cmd.StringVar(&f.network, "network", "", "Network id")
	cmd.StringVar(&f.description, "description", "", "Task description")
	cmd.StringVar(&f.file, "f", "", "Task spec (YAML, - for stdin)")
	cmd.IntVar(&f.priority, "priority", 0, "Priority 1-10")
	cmd.StringVar(&f.deadline, "deadline", "", "RFC 3339 deadline")
	cmd.StringVar(&f.context, "context", "", "Task context as a JSON object")
	cmd.BoolVar(&f.process, "process", false, "Process the task after submitting it")
	if err := cmd.Parse(args); err != nil {
		return f, err
	}
	if f.network == "" {
		return f, fmt.Errorf("--network is required")
	}
	if f.file == "" && strings.TrimSpace(f.description) == "" {
		return f, fmt.Errorf("one of --description or -f is required")
	}
	return f, nil
}

// spec builds the task from the file, if any, with flags layered on top.
func (f submitFlags) spec() (orchestrator.TaskSpec, error) {
	var spec orchestrator.TaskSpec
	if f.file != "" {
		var err error
		if spec, err = readTaskFile(f.file); err != nil {
			return spec, err
		}
	}
	if f.description != "" {
		spec.Description = f.description
	}
	if f.priority != 0 {
		spec.Priority = f.priority
	}
	if f.deadline != "" {
		d, err := time.Parse(time.RFC3339, f.deadline)
		if err != nil {
			return spec, fmt.Errorf("invalid --deadline: %w", err)
		}
		spec.Deadline = &d
	}
	if f.context != "" {
		var c map[string]any
		if err := json.Unmarshal([]byte(f.context), &c); err != nil {
			return spec, fmt.Errorf("invalid --context: %w", err)
		}
		spec.Context = c
	}
	return spec, nil
}

func runSubmit(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	f, err := parseSubmitFlags(args)
	if err != nil {
		return NewInvalidArgumentError("submit", err.Error())
	}
	spec, err := f.spec()
	if err != nil {
		return NewInvalidArgumentError("submit", err.Error())
	}

	client, err := dial(global, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	t, err := submitAndMaybeProcess(ctx, client, f.network, spec, f.process)
	if err != nil {
		return err
	}
	if global.JSON {
		printJSON(t)
		return nil
	}
	printTask(t)
	return nil
}

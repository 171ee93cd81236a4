// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Command agentnet runs the agent network orchestrator and talks to it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jllopis/agentnet/pkg/config"
	"github.com/jllopis/agentnet/pkg/mcp"
	"github.com/jllopis/agentnet/pkg/orchestrator"
)

// version is set at build time via ldflags.
var version = "dev"

type globalFlags struct {
	ConfigArgs []string
	ConfigPath string
	Profile    string
	ServerURL  string
	Caller     string
	Scopes     string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(NewInvalidArgumentError("flags", err.Error()), false)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatal(NewConfigError(err, global.ConfigPath), global.JSON)
	}

	name := args[0]
	if name == "help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fatal(NewInvalidArgumentError("command", fmt.Sprintf("unknown command %q", name)), global.JSON)
	}
	if err := cmd.run(ctx, global, cfg, args[1:]); err != nil {
		fatal(err, global.JSON)
	}
}

// command is one agentnet subcommand.
type command struct {
	usage string
	run   func(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error
}

var commands = map[string]command{
	"serve":  {usage: "serve [--addr :8090] [--stdio]", run: runServe},
	"apply":  {usage: "apply -f network.yaml [--process]", run: runApply},
	"submit": {usage: "submit --network <id> (--description <text> | -f task.yaml) [--priority N] [--deadline RFC3339] [--context JSON] [--process]", run: runSubmit},
	"status": {usage: "status [--network <id>] [<task_id>]", run: runStatus},
	"version": {usage: "version", run: func(context.Context, globalFlags, *config.Config, []string) error {
		fmt.Println(version)
		return nil
	}},
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		ServerURL: getenv("AGENTNET_SERVER", ""),
		Timeout:   5 * time.Minute,
	}

	value := func(i int, name string) (string, int, error) {
		arg := args[i]
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			return arg[eq+1:], i, nil
		}
		if i+1 >= len(args) {
			return "", i, fmt.Errorf("missing value for %s", name)
		}
		return args[i+1], i + 1, nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		name := arg
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			name = arg[:eq]
		}
		var (
			v   string
			err error
		)
		switch name {
		case "-h", "--help":
			flags.Help = true
			return flags, nil, nil
		case "--json":
			flags.JSON = true
		case "--config", "--profile", "--env", "--set":
			if v, i, err = value(i, name); err != nil {
				return flags, nil, err
			}
			flags.ConfigArgs = append(flags.ConfigArgs, name, v)
			switch name {
			case "--config":
				flags.ConfigPath = v
			case "--profile", "--env":
				flags.Profile = v
			}
		case "--server":
			if flags.ServerURL, i, err = value(i, name); err != nil {
				return flags, nil, err
			}
		case "--caller":
			if flags.Caller, i, err = value(i, name); err != nil {
				return flags, nil, err
			}
		case "--scopes":
			if flags.Scopes, i, err = value(i, name); err != nil {
				return flags, nil, err
			}
		case "--timeout":
			if v, i, err = value(i, name); err != nil {
				return flags, nil, err
			}
			if flags.Timeout, err = time.ParseDuration(v); err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// caller resolves the identity the CLI acts as: flags win over config.
func (g globalFlags) caller(cfg *config.Config) orchestrator.Caller {
	c := defaultCaller(cfg)
	if g.Caller != "" {
		c.ID = g.Caller
	}
	if g.Scopes != "" {
		c.Scopes = mcp.ParseScopes(g.Scopes)
	}
	return c
}

func (g globalFlags) serverURL(cfg *config.Config) string {
	if g.ServerURL != "" {
		return g.ServerURL
	}
	return cfg.MCP.URL
}

// dial connects to a running agentnet server.
func dial(g globalFlags, cfg *config.Config) (*mcp.Client, error) {
	url := g.serverURL(cfg)
	client, err := mcp.NewClientWithStreamableHTTP(url, g.caller(cfg),
		mcp.WithTimeout(g.Timeout),
		mcp.WithRetry(1, 250*time.Millisecond),
	)
	if err != nil {
		return nil, WrapConnectionError(err, url)
	}
	return client, nil
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err, true)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func truncateMessage(value string, limit int) string {
	value = normalizeCell(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}

const globalUsage = `agentnet: coordinator-led agent networks

Usage:
  agentnet [global flags] <command> [args]

Global flags:
  --config <path>      YAML config file
  --profile <name>     Profile file layered over --config (config.<name>.yaml)
  --set key=value      Override config (repeatable)
  --server <url>       MCP endpoint of a running server (default mcp.url)
  --caller <id>        Caller identity sent to the server (default mcp.caller)
  --scopes <list>      Comma separated caller scopes (default mcp.scopes)
  --timeout <dur>      Request timeout (default 5m)
  --json               JSON output

Commands:`

func printUsage() {
	fmt.Println(globalUsage)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println("  " + commands[name].usage)
	}
}

func fatal(err error, asJSON bool) {
	PrintError(err, asJSON)
	os.Exit(1)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

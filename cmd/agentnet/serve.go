// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jllopis/agentnet/pkg/config"
	"github.com/jllopis/agentnet/pkg/mcp"
	"github.com/jllopis/agentnet/pkg/telemetry"
)

func runServe(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := cmd.String("addr", cfg.MCP.Addr, "Streamable HTTP listen address")
	stdio := cmd.Bool("stdio", false, "Serve MCP on stdin/stdout instead of HTTP")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("serve", err.Error())
	}

	// Logs go to stderr so stdio sessions keep stdout for the protocol.
	level := new(slog.LevelVar)
	level.Set(telemetry.ParseLogLevel(cfg.Log.Level))
	logger := telemetry.NewLoggerWithLevel(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)

	tcfg := telemetry.Config{
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		Environment:    cfg.Telemetry.Environment,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: time.Duration(cfg.Telemetry.MetricIntervalSecs) * time.Second,
	}
	if *stdio {
		// stdout belongs to the protocol.
		tcfg.Writer = os.Stderr
	}
	shutdown, err := telemetry.InitWithConfig("agentnet", version, tcfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	live := config.NewReloadableConfig(cfg)
	if global.ConfigPath != "" {
		watcher, _, err := config.WatchConfig(ctx, global.ConfigPath, global.Profile, config.WithWatchLogger(logger))
		if err != nil {
			return NewConfigError(err, global.ConfigPath)
		}
		defer watcher.Stop()
		watcher.OnChange(func(next *config.Config) {
			live.Update(next)
			level.Set(telemetry.ParseLogLevel(live.Log().Level))
			logger.Info("agentnet.config.reloaded", slog.String("log_level", live.Log().Level))
		})
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.runtime.Start(ctx); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.runtime.Stop(sctx)
	}()

	srv := mcp.NewServer("agentnet", version, a.orch,
		mcp.WithDefaultCaller(defaultCaller(cfg)),
		mcp.WithHealth(a.health),
		mcp.WithLogger(logger),
	)
	logger.Info("agentnet.serve.start",
		slog.String("version", version),
		slog.Bool("stdio", *stdio),
		slog.String("store", cfg.Store.Backend),
		slog.String("events", cfg.Events.Backend),
	)
	if *stdio {
		err = srv.ServeStdio(ctx)
	} else {
		err = srv.ServeHTTP(ctx, *addr)
	}
	logger.Info("agentnet.serve.stop")
	return err
}

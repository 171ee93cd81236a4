// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func startWatcher(t *testing.T, path string, opts ...WatcherOption) *Watcher {
	t.Helper()
	opts = append([]WatcherOption{WithWatchDebounce(20 * time.Millisecond)}, opts...)
	watcher, err := NewWatcher(path, opts...)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	t.Cleanup(watcher.Stop)
	return watcher
}

func TestWatcherDetectsChanges(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log:\n  level: info\n")

	watcher := startWatcher(t, configPath)
	changes := make(chan *Config, 4)
	watcher.OnChange(func(cfg *Config) { changes <- cfg })

	if got := watcher.Config().Log.Level; got != "info" {
		t.Errorf("expected level info, got %q", got)
	}

	writeFile(t, configPath, "log:\n  level: debug\n")

	select {
	case newCfg := <-changes:
		if newCfg.Log.Level != "debug" {
			t.Errorf("expected level debug, got %q", newCfg.Log.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change notification")
	}
	if got := watcher.Config().Log.Level; got != "debug" {
		t.Errorf("expected current level debug, got %q", got)
	}
}

func TestWatcherDebouncesListeners(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "orchestrator:\n  max_iterations: 3\n")

	watcher := startWatcher(t, configPath, WithWatchDebounce(100*time.Millisecond))
	var count1, count2 atomic.Int32
	watcher.OnChange(func(*Config) { count1.Add(1) })
	watcher.OnChange(func(*Config) { count2.Add(1) })

	writeFile(t, configPath, "orchestrator:\n  max_iterations: 4\n")
	writeFile(t, configPath, "orchestrator:\n  max_iterations: 5\n")
	time.Sleep(600 * time.Millisecond)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("expected both listeners called once, got count1=%d, count2=%d", count1.Load(), count2.Load())
	}
	if got := watcher.Config().Orchestrator.MaxIterations; got != 5 {
		t.Errorf("expected max_iterations 5, got %d", got)
	}
}

func TestWatcherKeepsLastGoodConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log:\n  level: warn\n")

	watcher := startWatcher(t, configPath)
	var calls atomic.Int32
	watcher.OnChange(func(*Config) { calls.Add(1) })

	writeFile(t, configPath, "log: [\n")
	time.Sleep(300 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("listeners should not run for a broken file, got %d calls", calls.Load())
	}
	if got := watcher.Config().Log.Level; got != "warn" {
		t.Errorf("expected previous level warn, got %q", got)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log: {}")

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("watcher.Stop() did not complete in time")
	}
}

func TestReloadableConfig(t *testing.T) {
	rc := NewReloadableConfig(&Config{Log: LogConfig{Level: "info"}})
	if rc.Log().Level != "info" {
		t.Errorf("expected info level, got %q", rc.Log().Level)
	}

	rc.Update(&Config{
		Orchestrator: OrchestratorConfig{MaxIterations: 7},
		Log:          LogConfig{Level: "warn"},
	})
	if rc.Get().Orchestrator.MaxIterations != 7 {
		t.Errorf("expected 7 iterations, got %d", rc.Get().Orchestrator.MaxIterations)
	}
	if rc.Log().Level != "warn" {
		t.Errorf("expected warn level, got %q", rc.Log().Level)
	}
}

func TestWatchConfigWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, "log:\n  level: info\n")
	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), "log:\n  level: debug\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, cfg, err := WatchConfig(ctx, basePath, "dev", WithWatchDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to watch config: %v", err)
	}
	defer watcher.Stop()

	if cfg.Log.Level != "debug" {
		t.Errorf("expected profile level debug, got %q", cfg.Log.Level)
	}
	if paths := watcher.Paths(); len(paths) != 2 {
		t.Errorf("expected base and profile paths to be watched, got %v", paths)
	}
}

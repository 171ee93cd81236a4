// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/knadh/koanf/providers/file"
)

// Watcher reloads the configuration when its files change on disk. Events
// arrive through fsnotify (koanf's file provider) and are debounced so an
// editor's write-rename sequence produces one reload.
type Watcher struct {
	mu        sync.RWMutex
	path      string
	profile   string
	debounce  time.Duration
	config    *Config
	listeners []func(*Config)
	watched   []*file.File
	timer     *time.Timer
	stopped   bool
	logger    *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchDebounce sets how long the watcher waits for events to settle.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatchProfile layers the named profile file over the base config on
// every reload.
func WithWatchProfile(profile string) WatcherOption {
	return func(w *Watcher) {
		w.profile = profile
	}
}

// NewWatcher loads path (plus the profile file, if any) and prepares to
// watch it. Call Start to begin receiving changes.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		debounce: 200 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := LoadWithProfile(path, w.profile)
	if err != nil {
		return nil, err
	}
	w.config = cfg
	return w, nil
}

// Paths lists the files the watcher follows. A profile file is only
// followed when it exists at start.
func (w *Watcher) Paths() []string {
	if w.path == "" {
		return nil
	}
	paths := []string{w.path}
	if p := profileConfigPath(w.path, w.profile); p != "" {
		paths = append(paths, p)
	}
	return paths
}

// OnChange registers a callback to be called when config changes.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start subscribes to file events. The watcher stops when ctx ends or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.Paths() {
		if _, err := os.Stat(path); err != nil {
			w.logger.Warn("config.watch.skipped", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		fp := file.Provider(path)
		if err := fp.Watch(func(_ interface{}, err error) {
			if err != nil {
				w.logger.Warn("config.watch.error", slog.String("path", path), slog.String("error", err.Error()))
				return
			}
			w.schedule()
		}); err != nil {
			w.Stop()
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.mu.Lock()
		w.watched = append(w.watched, fp)
		w.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop unsubscribes from file events. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	watched := w.watched
	w.watched = nil
	w.mu.Unlock()

	for _, fp := range watched {
		if err := fp.Unwatch(); err != nil {
			w.logger.Debug("config.unwatch.failed", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload keeps the last good configuration when the new one fails to load.
func (w *Watcher) reload() {
	cfg, err := LoadWithProfile(w.path, w.profile)
	if err != nil {
		w.logger.Error("config.reload.failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.config = cfg
	listeners := append(([]func(*Config))(nil), w.listeners...)
	w.mu.Unlock()

	w.logger.Info("config.reload.complete", slog.String("log_level", cfg.Log.Level))
	for _, fn := range listeners {
		fn(cfg)
	}
}

// WatchConfig loads configPath with its profile and starts watching both
// files. It returns the watcher and the initial config.
func WatchConfig(ctx context.Context, configPath, profile string, opts ...WatcherOption) (*Watcher, *Config, error) {
	opts = append(opts, WithWatchProfile(profile))
	watcher, err := NewWatcher(configPath, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		return nil, nil, err
	}
	return watcher, watcher.Config(), nil
}

// ReloadableConfig is a Config that can be swapped while readers hold it.
type ReloadableConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewReloadableConfig wraps cfg.
func NewReloadableConfig(cfg *Config) *ReloadableConfig {
	return &ReloadableConfig{config: cfg}
}

// Get returns the current configuration.
func (r *ReloadableConfig) Get() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Update atomically replaces the configuration.
func (r *ReloadableConfig) Update(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

// Log returns the log configuration.
func (r *ReloadableConfig) Log() LogConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Log
}

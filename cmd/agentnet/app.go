// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jllopis/agentnet/pkg/config"
	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/guardrails"
	"github.com/jllopis/agentnet/pkg/llm"
	"github.com/jllopis/agentnet/pkg/memory"
	"github.com/jllopis/agentnet/pkg/memory/ollama"
	"github.com/jllopis/agentnet/pkg/memory/qdrant"
	"github.com/jllopis/agentnet/pkg/orchestrator"
	"github.com/jllopis/agentnet/pkg/pubsub"
	"github.com/jllopis/agentnet/pkg/resilience"
	"github.com/jllopis/agentnet/pkg/runtime"
	"github.com/jllopis/agentnet/pkg/store"
	"github.com/jllopis/agentnet/pkg/telemetry"
	"github.com/jllopis/agentnet/providers/anthropic"
	"github.com/jllopis/agentnet/providers/openai"
)

// app is a fully wired agentnet process.
type app struct {
	orch    *orchestrator.Orchestrator
	memory  *memory.TieredStore
	runtime *runtime.LocalRuntime
	health  *core.HealthRegistry
	logger  *slog.Logger
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("agentnet.close.failed", slog.String("error", err.Error()))
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{
		runtime: runtime.NewLocal(logger),
		health:  core.NewHealthRegistry(5 * time.Second),
		logger:  logger,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var rdb *redis.Client
	if usesRedis(cfg) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		a.health.Register("redis", core.PingChecker(2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	kv, err := newRecordStore(cfg, rdb)
	if err != nil {
		return nil, err
	}
	a.health.Register("store", core.PingChecker(2*time.Second, kv.Ping))

	events, err := newEmitter(cfg, rdb, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := events.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	if a.memory, err = a.newMemory(ctx, cfg, rdb, metrics, events); err != nil {
		return nil, err
	}

	limiter, err := newLimiter(cfg, rdb, logger)
	if err != nil {
		return nil, err
	}

	guards, err := newGuardrails(cfg)
	if err != nil {
		return nil, err
	}
	catalog := llm.DefaultCatalog()
	oc := cfg.Orchestrator
	tmpl := breakerTemplate(oc)
	tmpl.OnStateChange = func(name string, _, to resilience.CircuitBreakerState) {
		metrics.RecordBreakerState(context.Background(), name, to.Gauge())
	}
	coordRetry := resilience.DefaultRetryConfig().WithRetryCount(oc.CoordinatorRetries)
	subtaskRetry := resilience.DefaultRetryConfig().WithRetryCount(oc.SubtaskRetries)

	a.orch, err = orchestrator.New(orchestrator.Options{
		Store:      kv,
		Memory:     a.memory,
		Generator:  newRouter(cfg, catalog),
		Catalog:    catalog,
		Limiter:    limiter,
		Breakers:   resilience.NewRegistry(tmpl, logger),
		Events:     events,
		Guardrails: guards,
		Defaults: orchestrator.Defaults{
			MaxIterations:    oc.MaxIterations,
			TimeoutSeconds:   oc.TimeoutSeconds,
			RetentionDays:    oc.RetentionDays,
			MaxFanout:        oc.MaxFanout,
			Model:            oc.DefaultModel,
			CoordinatorRetry: &coordRetry,
			SubtaskRetry:     &subtaskRetry,
		},
		FallbackModels: cfg.LLM.FallbackModels,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, err
	}
	a.health.Register("breakers", a.orch.HealthChecker())

	mc := cfg.Memory
	for _, s := range a.memory.Sweeps(
		time.Duration(mc.RotateIntervalMins)*time.Minute,
		time.Duration(mc.PruneIntervalHours)*time.Hour,
	) {
		a.runtime.AddSweep(s)
	}
	a.runtime.AddSweep(a.orch.RetentionSweep(time.Duration(oc.RetentionSweepMinutes) * time.Minute))
	a.runtime.OnSweep(func(name string, res runtime.SweepResult) {
		metrics.RecordSweep(context.Background(), name, res.Duration)
	})
	return a, nil
}

// breakerTemplate applies the configured thresholds over the defaults.
func breakerTemplate(oc config.OrchestratorConfig) resilience.CircuitBreakerConfig {
	tmpl := resilience.DefaultCircuitBreakerConfig("")
	if oc.BreakerFailures > 0 {
		tmpl.FailureThreshold = oc.BreakerFailures
	}
	if oc.BreakerRecoverySecs > 0 {
		tmpl.RecoveryTimeout = time.Duration(oc.BreakerRecoverySecs) * time.Second
	}
	if oc.BreakerHalfOpenTrials > 0 {
		tmpl.HalfOpenMaxTrials = oc.BreakerHalfOpenTrials
	}
	if oc.BreakerResetSecs > 0 {
		tmpl.ResetTimeout = time.Duration(oc.BreakerResetSecs) * time.Second
	}
	return tmpl
}

// usesRedis reports whether any backend needs the shared Redis client.
// Rate limit buckets follow the record store.
func usesRedis(cfg *config.Config) bool {
	return cfg.Store.Backend == "redis" ||
		cfg.Memory.HotBackend == "redis" ||
		cfg.Events.Backend == "redis"
}

func newRecordStore(cfg *config.Config, rdb *redis.Client) (store.KV, error) {
	switch cfg.Store.Backend {
	case "", "inmemory":
		return store.NewMemory(time.Now), nil
	case "redis":
		return store.NewRedis(rdb, "agentnet:"), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newEmitter(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (core.EventEmitter, error) {
	var pub pubsub.Publisher
	switch cfg.Events.Backend {
	case "", "inmemory":
		pub = pubsub.NewInProcess(64)
	case "redis":
		pub = pubsub.NewRedis(rdb)
	case "kafka":
		if len(cfg.Events.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("events.kafka_brokers is required for the kafka backend")
		}
		pub = pubsub.NewKafka(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
	case "none":
		return core.NoopEventEmitter{}, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
	return closingEmitter{Emitter: pubsub.NewEmitter(pub, 0, logger), pub: pub}, nil
}

// closingEmitter lets the app close the publisher behind an emitter.
type closingEmitter struct {
	*pubsub.Emitter
	pub pubsub.Publisher
}

func (e closingEmitter) Close() error { return e.pub.Close() }

func (a *app) newMemory(ctx context.Context, cfg *config.Config, rdb *redis.Client, metrics *telemetry.Metrics, events core.EventEmitter) (*memory.TieredStore, error) {
	mc := cfg.Memory
	policy := memory.DefaultTierPolicy()
	policy.HotTTL = time.Duration(mc.HotTTLSeconds) * time.Second
	policy.PromoteAccessCount = int64(mc.PromoteAccessCount)
	policy.PromoteWithin = hours(mc.PromoteWithinHours)
	policy.DemoteAfter = hours(mc.DemoteAfterHours)
	policy.HotRetentionCount = int64(mc.HotRetentionCount)
	policy.ColdMaxAge = time.Duration(mc.ColdMaxAgeDays) * 24 * time.Hour

	var hot memory.HotTier
	switch mc.HotBackend {
	case "", "inmemory":
		hot = memory.NewInMemoryHotTier(policy.HotTTL, time.Now)
	case "redis":
		hot = memory.NewRedisHotTier(rdb, policy.HotTTL)
	default:
		return nil, fmt.Errorf("unknown memory hot backend %q", mc.HotBackend)
	}

	db, err := memory.OpenSQLite(mc.ColdDSN)
	if err != nil {
		return nil, fmt.Errorf("open cold tier: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	cold, err := memory.NewSQLiteColdTier(db)
	if err != nil {
		return nil, err
	}
	a.health.Register("memory.cold", core.PingChecker(2*time.Second, db.PingContext))

	opts := memory.Options{
		Hot:     hot,
		Cold:    cold,
		Policy:  policy,
		Logger:  a.logger,
		Metrics: metrics,
		Events:  events,
	}
	if mc.Embedder == "ollama" {
		opts.Embedder = ollama.NewEmbedder(cfg.LLM.Providers[llm.ProviderOllama].BaseURL, mc.EmbedModel)
	}
	if mc.QdrantAddr != "" {
		vectors, err := qdrant.New(mc.QdrantAddr, qdrant.WithAPIKey(mc.QdrantAPIKey), qdrant.WithTLS(mc.QdrantTLS))
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		a.closers = append(a.closers, vectors.Close)
		a.health.Register("memory.vectors", core.PingChecker(2*time.Second, vectors.Ping))
		if err := vectors.CreateCollection(ctx, mc.QdrantCollection, uint64(mc.VectorSize)); err != nil {
			return nil, fmt.Errorf("create qdrant collection: %w", err)
		}
		opts.Vectors = vectors
		opts.Collection = mc.QdrantCollection
	}
	return memory.NewTieredStore(opts)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func newLimiter(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (*resilience.TokenBucketLimiter, error) {
	rc := cfg.RateLimit
	if !rc.Enabled {
		return nil, nil
	}
	var buckets resilience.BucketStore = resilience.NewMemoryBucketStore()
	if rdb != nil && cfg.Store.Backend == "redis" {
		buckets = resilience.NewRedisBucketStore(rdb)
	}
	return resilience.NewTokenBucketLimiter(buckets, resilience.LimiterConfig{
		BucketSpec: resilience.BucketSpec{
			Capacity:       rc.Capacity,
			RefillRate:     rc.RefillRate,
			RefillInterval: rc.RefillInterval(),
		},
		MaxWait:   rc.MaxWait(),
		KeyPrefix: "agentnet:ratelimit:",
	}, logger)
}

// newRouter registers every provider with enough configuration to run.
// The mock and Ollama providers need no credentials.
func newRouter(cfg *config.Config, catalog *llm.Catalog) *llm.Router {
	router := llm.NewRouter(catalog).
		Register(llm.ProviderMock, &llm.MockProvider{Response: mockCoordinatorReply})

	providers := cfg.LLM.Providers
	router.Register(llm.ProviderOllama, llm.NewOllama(providers[llm.ProviderOllama].BaseURL))
	if pc, ok := providers[llm.ProviderOpenAI]; ok && pc.APIKey != "" {
		opts := []openai.Option{openai.WithAPIKey(pc.APIKey)}
		if pc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pc.BaseURL))
		}
		router.Register(llm.ProviderOpenAI, openai.New(opts...))
	}
	if pc, ok := providers[llm.ProviderAnthropic]; ok && pc.APIKey != "" {
		opts := []anthropic.Option{anthropic.WithAPIKey(pc.APIKey)}
		if pc.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(pc.BaseURL))
		}
		router.Register(llm.ProviderAnthropic, anthropic.New(opts...))
	}
	return router
}

// mockCoordinatorReply completes a task on the first turn so that a network
// of mock agents can be exercised end to end without credentials.
const mockCoordinatorReply = `{"reasoning":"mock provider","complete":true,"result":{"summary":"completed by the mock provider"},"confidence":0.5}`

func newGuardrails(cfg *config.Config) (*guardrails.Guardrails, error) {
	opts := []guardrails.Option{guardrails.WithCodeMarkerFilter()}
	if cfg.Orchestrator.RedactInjection {
		extra := cfg.Orchestrator.InjectionPatterns
		if err := guardrails.ValidatePatterns(extra...); err != nil {
			return nil, NewConfigError(err, "orchestrator.injection_patterns")
		}
		opts = append(opts, guardrails.WithPromptInjectionFilter(guardrails.WithInjectionPatterns(extra...)))
	}
	if cfg.Orchestrator.RedactPII {
		mode, err := guardrails.ParsePIIMode(cfg.Orchestrator.PIIMode)
		if err != nil {
			return nil, NewConfigError(err, "orchestrator.pii_mode")
		}
		opts = append(opts, guardrails.WithPIIFilter(mode))
	}
	return guardrails.New(opts...), nil
}

func defaultCaller(cfg *config.Config) orchestrator.Caller {
	scopes := make([]orchestrator.Scope, 0, len(cfg.MCP.Scopes))
	for _, s := range cfg.MCP.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, orchestrator.Scope(s))
		}
	}
	return orchestrator.Caller{ID: cfg.MCP.Caller, Scopes: scopes}
}

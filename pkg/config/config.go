// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads agentnet configuration from defaults, YAML files,
// AGENTNET_ environment variables and --set command line overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "AGENTNET_"

type Config struct {
	Log          LogConfig          `koanf:"log"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	LLM          LLMConfig          `koanf:"llm"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	RateLimit    RateLimitConfig    `koanf:"ratelimit"`
	Memory       MemoryConfig       `koanf:"memory"`
	Store        StoreConfig        `koanf:"store"`
	Redis        RedisConfig        `koanf:"redis"`
	Events       EventsConfig       `koanf:"events"`
	MCP          MCPConfig          `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string  `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	OTLPInsecure bool    `koanf:"otlp_insecure"`
	Environment  string  `koanf:"environment"`
	SampleRatio  float64 `koanf:"sample_ratio"`
	// MetricIntervalSecs is the metric export period.
	MetricIntervalSecs int `koanf:"metric_interval_secs"`
}

// ProviderConfig holds credentials for one generation provider.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type LLMConfig struct {
	// Providers is keyed by provider name: openai, anthropic, ollama, mock.
	Providers      map[string]ProviderConfig `koanf:"providers"`
	FallbackModels []string                  `koanf:"fallback_models"`
	TimeoutSeconds int                       `koanf:"timeout_seconds"`
}

type OrchestratorConfig struct {
	MaxIterations         int `koanf:"max_iterations"`
	TimeoutSeconds        int `koanf:"timeout_seconds"`
	RetentionDays         int `koanf:"retention_days"`
	MaxFanout             int `koanf:"max_fanout"`
	CoordinatorRetries    int `koanf:"coordinator_retries"`
	SubtaskRetries        int `koanf:"subtask_retries"`
	BreakerFailures       int `koanf:"breaker_failures"`
	BreakerRecoverySecs   int `koanf:"breaker_recovery_seconds"`
	BreakerHalfOpenTrials int `koanf:"breaker_half_open_trials"`
	BreakerResetSecs      int `koanf:"breaker_reset_seconds"`
	RetentionSweepMinutes int `koanf:"retention_sweep_minutes"`
	// DefaultModel is used by agents created without a model. Empty keeps
	// each agent kind's own default.
	DefaultModel    string `koanf:"default_model"`
	RedactPII       bool   `koanf:"redact_pii"`
	PIIMode         string `koanf:"pii_mode"` // mask, hash, remove
	RedactInjection bool   `koanf:"redact_injection"`
	// InjectionPatterns are extra regular expressions redacted alongside the
	// built-in prompt injection rules.
	InjectionPatterns []string `koanf:"injection_patterns"`
}

type RateLimitConfig struct {
	Enabled          bool    `koanf:"enabled"`
	Capacity         float64 `koanf:"capacity"`
	RefillRate       float64 `koanf:"refill_rate"`
	RefillIntervalMs int     `koanf:"refill_interval_ms"`
	MaxWaitMs        int     `koanf:"max_wait_ms"`
}

type MemoryConfig struct {
	HotBackend         string  `koanf:"hot_backend"` // inmemory, redis
	HotTTLSeconds      int     `koanf:"hot_ttl_seconds"`
	ColdDSN            string  `koanf:"cold_dsn"`
	QdrantAddr         string  `koanf:"qdrant_addr"`
	QdrantCollection   string  `koanf:"qdrant_collection"`
	QdrantAPIKey       string  `koanf:"qdrant_api_key"`
	QdrantTLS          bool    `koanf:"qdrant_tls"`
	VectorSize         int     `koanf:"vector_size"`
	Embedder           string  `koanf:"embedder"` // none, ollama
	EmbedModel         string  `koanf:"embed_model"`
	PromoteAccessCount int     `koanf:"promote_access_count"`
	PromoteWithinHours float64 `koanf:"promote_within_hours"`
	DemoteAfterHours   float64 `koanf:"demote_after_hours"`
	HotRetentionCount  int     `koanf:"hot_retention_count"`
	RotateIntervalMins int     `koanf:"rotate_interval_minutes"`
	PruneIntervalHours int     `koanf:"prune_interval_hours"`
	ColdMaxAgeDays     int     `koanf:"cold_max_age_days"`
}

type StoreConfig struct {
	Backend string `koanf:"backend"` // inmemory, redis
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type EventsConfig struct {
	Backend      string   `koanf:"backend"` // inmemory, redis, kafka
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

type MCPConfig struct {
	Addr string `koanf:"addr"`
	// URL is where CLI commands reach a running server.
	URL string `koanf:"url"`
	// Caller and Scopes identify stdio sessions and HTTP requests that
	// carry no identity headers.
	Caller string   `koanf:"caller"`
	Scopes []string `koanf:"scopes"`
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.sample_ratio", 1.0)
	k.Set("telemetry.metric_interval_secs", 60)

	k.Set("llm.timeout_seconds", 60)
	k.Set("llm.fallback_models", []string{"gpt-4o-mini", "claude-3-5-haiku-latest"})
	k.Set("llm.providers.ollama.base_url", "http://localhost:11434")

	k.Set("orchestrator.max_iterations", 10)
	k.Set("orchestrator.timeout_seconds", 300)
	k.Set("orchestrator.retention_days", 30)
	k.Set("orchestrator.max_fanout", 5)
	k.Set("orchestrator.coordinator_retries", 2)
	k.Set("orchestrator.subtask_retries", 1)
	k.Set("orchestrator.breaker_failures", 5)
	k.Set("orchestrator.breaker_recovery_seconds", 30)
	k.Set("orchestrator.breaker_half_open_trials", 2)
	k.Set("orchestrator.breaker_reset_seconds", 300)
	k.Set("orchestrator.retention_sweep_minutes", 60)
	k.Set("orchestrator.default_model", "")
	k.Set("orchestrator.redact_pii", false)
	k.Set("orchestrator.pii_mode", "mask")
	k.Set("orchestrator.redact_injection", true)

	k.Set("ratelimit.enabled", true)
	k.Set("ratelimit.capacity", 20)
	k.Set("ratelimit.refill_rate", 10)
	k.Set("ratelimit.refill_interval_ms", 60000)
	k.Set("ratelimit.max_wait_ms", 0)

	k.Set("memory.hot_backend", "inmemory")
	k.Set("memory.hot_ttl_seconds", 604800)
	k.Set("memory.cold_dsn", "file:agentnet-memory.db")
	k.Set("memory.qdrant_collection", "agentnet_memory")
	k.Set("memory.vector_size", 768)
	k.Set("memory.embedder", "none")
	k.Set("memory.promote_access_count", 5)
	k.Set("memory.promote_within_hours", 24)
	k.Set("memory.demote_after_hours", 24)
	k.Set("memory.hot_retention_count", 3)
	k.Set("memory.rotate_interval_minutes", 60)
	k.Set("memory.prune_interval_hours", 24)
	k.Set("memory.cold_max_age_days", 90)

	k.Set("store.backend", "inmemory")
	k.Set("redis.addr", "localhost:6379")

	k.Set("events.backend", "inmemory")
	k.Set("events.kafka_topic", "agentnet.events")

	k.Set("mcp.addr", ":8090")
	k.Set("mcp.url", "http://localhost:8090/mcp")
	k.Set("mcp.caller", "local")
	k.Set("mcp.scopes", []string{"create", "submit", "process", "read", "delete"})
}

// Load reads configuration from defaults, the optional YAML file at path and
// AGENTNET_ environment variables, in that order.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile is Load plus an optional profile file next to path
// (config.yaml + "dev" -> config.dev.yaml) layered over the base file.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI loads configuration honoring --config, --profile (alias --env)
// and repeated --set key=value flags. --set values win over everything else.
// Values that parse as JSON are set as structured values.
func LoadWithCLI(args []string) (*Config, error) {
	opts, sets, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, sets)
}

func load(path, profile string, sets map[string]any) (*Config, error) {
	// Each load gets its own instance so concurrent reloads never share state.
	k := koanf.New(".")
	setDefaults(k)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
		if p := profileConfigPath(path, profile); p != "" {
			if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	// 2. Load from ENV (AGENTNET_MEMORY_QDRANT_ADDR -> memory.qdrant_addr)
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	// 3. CLI overrides
	for key, value := range sets {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps an environment variable to a config key. The first segment is
// the section and the rest is the field name, underscores included.
// Provider settings take two segments: AGENTNET_LLM_PROVIDERS_OPENAI_API_KEY
// becomes llm.providers.openai.api_key.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	if rest, ok := strings.CutPrefix(field, "providers_"); ok && section == "llm" {
		if provider, setting, ok := strings.Cut(rest, "_"); ok {
			return "llm.providers." + provider + "." + setting
		}
	}
	return section + "." + field
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]any, error) {
	var opts cliOptions
	sets := make(map[string]any)

	value := func(i int, name string) (string, int, error) {
		arg := args[i]
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			return arg[eq+1:], i, nil
		}
		if i+1 >= len(args) {
			return "", i, fmt.Errorf("%s requires a value", name)
		}
		return args[i+1], i + 1, nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name := arg
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			name = arg[:eq]
		}
		switch name {
		case "--config", "-config":
			v, next, err := value(i, "--config")
			if err != nil {
				return opts, nil, err
			}
			opts.path, i = v, next
		case "--profile", "-profile", "--env", "-env":
			v, next, err := value(i, "--profile")
			if err != nil {
				return opts, nil, err
			}
			opts.profile, i = v, next
		case "--set", "-set":
			v, next, err := value(i, "--set")
			if err != nil {
				return opts, nil, err
			}
			i = next
			key, raw, ok := strings.Cut(v, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return opts, nil, fmt.Errorf("invalid --set value %q, want key=value", v)
			}
			sets[strings.TrimSpace(key)] = parseSetValue(raw)
		}
	}
	return opts, sets, nil
}

func parseSetValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}

// profileConfigPath returns the profile-specific file for base, or "" when it
// does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	candidate := profileFilePath(base, profile)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

func profileFilePath(base, profile string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + profile + ext
}

// RefillInterval returns the configured bucket refill interval.
func (c RateLimitConfig) RefillInterval() time.Duration {
	return time.Duration(c.RefillIntervalMs) * time.Millisecond
}

// MaxWait returns how long a caller may block for tokens.
func (c RateLimitConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator runs networks of agents: it owns the network, agent
// and task records, authorizes and validates every operation and drives the
// coordinator's delegation loop over the generation capability.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/agentnet/pkg/agent"
	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/guardrails"
	"github.com/jllopis/agentnet/pkg/llm"
	"github.com/jllopis/agentnet/pkg/memory"
	"github.com/jllopis/agentnet/pkg/resilience"
	"github.com/jllopis/agentnet/pkg/runtime"
	"github.com/jllopis/agentnet/pkg/store"
	"github.com/jllopis/agentnet/pkg/telemetry"
)

const (
	snapshotLimit    = 50
	defaultListLimit = 20
)

// Defaults are applied to networks and tasks that leave a field unset.
type Defaults struct {
	MaxIterations  int
	TimeoutSeconds int
	RetentionDays  int
	// MaxFanout caps concurrent subtasks and memory writes per iteration.
	MaxFanout int
	// Model, when set, replaces every kind's default model for agents that
	// do not name one.
	Model string
	// CoordinatorRetry and SubtaskRetry wrap each generation attempt.
	CoordinatorRetry *resilience.RetryConfig
	SubtaskRetry     *resilience.RetryConfig
}

// DefaultDefaults returns the stock limits.
func DefaultDefaults() Defaults {
	return Defaults{
		MaxIterations:  10,
		TimeoutSeconds: 300,
		RetentionDays:  30,
		MaxFanout:      5,
	}
}

// Options wires an Orchestrator. Store, Memory and Generator are required.
type Options struct {
	Store     store.KV
	Memory    *memory.TieredStore
	Generator llm.Generator
	// Catalog validates agent models. Defaults to llm.DefaultCatalog.
	Catalog *llm.Catalog
	// Limiter throttles SubmitTask per caller and network. Nil disables it.
	Limiter *resilience.TokenBucketLimiter
	// Breakers hands out per-agent and per-model breakers.
	Breakers *resilience.Registry
	Events   core.EventEmitter
	// Guardrails sanitizes task context, shared context and memory content.
	Guardrails *guardrails.Guardrails
	Defaults   Defaults
	// FallbackModels are tried in order when an agent's own model fails.
	FallbackModels []string
	Clock          func() time.Time
	Logger         *slog.Logger
	Metrics        *telemetry.Metrics
}

// Orchestrator is the control plane over networks, agents and tasks.
type Orchestrator struct {
	repo      *repository
	memory    *memory.TieredStore
	gen       llm.Generator
	catalog   *llm.Catalog
	limiter   *resilience.TokenBucketLimiter
	breakers  *resilience.Registry
	events    core.EventEmitter
	guard     *guardrails.Guardrails
	defaults  Defaults
	fallbacks []string
	clock     func() time.Time
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
}

// New builds an Orchestrator from opts.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.Validation("record store is required")
	}
	if opts.Memory == nil {
		return nil, errors.Validation("memory store is required")
	}
	if opts.Generator == nil {
		return nil, errors.Validation("generator is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = llm.DefaultCatalog()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Events == nil {
		opts.Events = core.NoopEventEmitter{}
	}
	if opts.Guardrails == nil {
		opts.Guardrails = guardrails.Default()
	}
	logger := telemetry.Component(opts.Logger, "orchestrator")
	if opts.Breakers == nil {
		tmpl := resilience.DefaultCircuitBreakerConfig("")
		metrics := opts.Metrics
		tmpl.OnStateChange = func(name string, _, to resilience.CircuitBreakerState) {
			metrics.RecordBreakerState(context.Background(), name, to.Gauge())
		}
		opts.Breakers = resilience.NewRegistry(tmpl, logger)
	}
	opts.Defaults = withDefaults(opts.Defaults)
	if opts.Defaults.Model != "" && !opts.Catalog.Known(opts.Defaults.Model) {
		return nil, errors.Validation("unknown default model %q", opts.Defaults.Model)
	}

	fallbacks := make([]string, 0, len(opts.FallbackModels))
	for _, m := range opts.FallbackModels {
		if !opts.Catalog.Known(m) {
			return nil, errors.Validation("unknown fallback model %q", m)
		}
		fallbacks = append(fallbacks, m)
	}

	return &Orchestrator{
		repo:      &repository{kv: opts.Store, clock: opts.Clock},
		memory:    opts.Memory,
		gen:       opts.Generator,
		catalog:   opts.Catalog,
		limiter:   opts.Limiter,
		breakers:  opts.Breakers,
		events:    opts.Events,
		guard:     opts.Guardrails,
		defaults:  opts.Defaults,
		fallbacks: fallbacks,
		clock:     opts.Clock,
		logger:    logger,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer("agentnet/orchestrator"),
	}, nil
}

func withDefaults(d Defaults) Defaults {
	std := DefaultDefaults()
	if d.MaxIterations <= 0 {
		d.MaxIterations = std.MaxIterations
	}
	if d.TimeoutSeconds <= 0 {
		d.TimeoutSeconds = std.TimeoutSeconds
	}
	if d.RetentionDays <= 0 {
		d.RetentionDays = std.RetentionDays
	}
	if d.MaxFanout <= 0 {
		d.MaxFanout = std.MaxFanout
	}
	if d.CoordinatorRetry == nil {
		rc := resilience.DefaultRetryConfig()
		d.CoordinatorRetry = &rc
	}
	if d.SubtaskRetry == nil {
		rc := resilience.DefaultRetryConfig().WithRetryCount(1)
		d.SubtaskRetry = &rc
	}
	return d
}

func (o *Orchestrator) now() time.Time { return o.clock().UTC() }

func (o *Orchestrator) emit(ctx context.Context, t core.EventType, networkID, taskID, agentID string, payload map[string]any) {
	ev := core.NewEvent(ctx, t, networkID, taskID, payload)
	if agentID != "" {
		ev = ev.WithAgent(agentID)
	}
	o.events.Emit(ctx, ev)
}

// sanitize redacts denylisted markers in a caller supplied bag.
func (o *Orchestrator) sanitize(ctx context.Context, m map[string]any, what string) map[string]any {
	out, redactions := o.guard.SanitizeMap(ctx, m)
	if len(redactions) > 0 {
		paths := make([]string, len(redactions))
		for i, r := range redactions {
			paths[i] = r.Path
		}
		o.logger.WarnContext(ctx, "orchestrator.sanitize.redacted",
			slog.String("target", what),
			slog.Int("count", len(redactions)),
			slog.Any("paths", paths),
		)
	}
	return out
}

// CreateNetwork validates spec and stores a new network owned by the caller.
// Without agent configs the network gets a coordinator plus one agent per
// specialist kind; a network without a coordinator gets one implicitly.
func (o *Orchestrator) CreateNetwork(ctx context.Context, spec NetworkSpec) (Network, error) {
	caller, err := authorize(ctx, ScopeCreate)
	if err != nil {
		return Network{}, err
	}
	if err := validateNetwork(spec, o.catalog); err != nil {
		return Network{}, err
	}

	now := o.now()
	n := Network{
		ID:             uuid.NewString(),
		Name:           spec.Name,
		Description:    spec.Description,
		Status:         NetworkActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		MaxIterations:  orDefault(spec.MaxIterations, o.defaults.MaxIterations),
		TimeoutSeconds: orDefault(spec.TimeoutSeconds, o.defaults.TimeoutSeconds),
		RetentionDays:  orDefault(spec.RetentionDays, o.defaults.RetentionDays),
		SharedContext:  o.sanitize(ctx, spec.SharedContext, "shared_context"),
		Owner:          caller.ID,
	}

	configs := spec.Agents
	if len(configs) == 0 {
		configs = append(configs, AgentConfig{Type: agent.TypeCoordinator})
		for _, t := range agent.Specialists() {
			configs = append(configs, AgentConfig{Type: t})
		}
	} else if !hasCoordinator(configs) {
		configs = append([]AgentConfig{{Type: agent.TypeCoordinator}}, configs...)
	}
	agents := make([]Agent, len(configs))
	for i, cfg := range configs {
		agents[i] = o.newAgent(n.ID, cfg, now)
	}

	if err := o.repo.createNetwork(ctx, n, agents); err != nil {
		return Network{}, err
	}
	o.logger.InfoContext(ctx, "orchestrator.network.created",
		slog.String("network_id", n.ID),
		slog.String("name", n.Name),
		slog.Int("agents", len(agents)),
		slog.String("owner", n.Owner),
	)
	return n, nil
}

func hasCoordinator(configs []AgentConfig) bool {
	for _, c := range configs {
		if c.Type == agent.TypeCoordinator {
			return true
		}
	}
	return false
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newAgent builds an idle agent from cfg, filling the profile from its kind.
func (o *Orchestrator) newAgent(networkID string, cfg AgentConfig, now time.Time) Agent {
	kind, _ := agent.KindFor(cfg.Type)
	p := kind.Defaults()
	if o.defaults.Model != "" {
		p.Model = o.defaults.Model
	}
	if cfg.Model != "" {
		p.Model = cfg.Model
	}
	if cfg.Temperature != nil {
		p.Temperature = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		p.MaxTokens = cfg.MaxTokens
	}
	if len(cfg.Capabilities) > 0 {
		p.Capabilities = append([]string(nil), cfg.Capabilities...)
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%s-agent", cfg.Type)
	}
	return Agent{
		ID:           uuid.NewString(),
		NetworkID:    networkID,
		Name:         name,
		Type:         cfg.Type,
		Model:        p.Model,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		Capabilities: p.Capabilities,
		Status:       AgentIdle,
		Confidence:   1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ownedNetwork loads a network the caller may act on.
func (o *Orchestrator) ownedNetwork(ctx context.Context, c Caller, networkID string) (Network, error) {
	n, err := o.repo.getNetwork(ctx, networkID)
	if err != nil {
		return Network{}, err
	}
	if err := checkOwner(c, n); err != nil {
		return Network{}, err
	}
	return n, nil
}

// AddAgent adds an agent to an existing network. A second coordinator is
// rejected.
func (o *Orchestrator) AddAgent(ctx context.Context, networkID string, cfg AgentConfig) (Agent, error) {
	caller, err := authorize(ctx, ScopeCreate)
	if err != nil {
		return Agent{}, err
	}
	if err := validateAgent(cfg, o.catalog); err != nil {
		return Agent{}, err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return Agent{}, err
	}
	if cfg.Type == agent.TypeCoordinator {
		agents, err := o.repo.listAgents(ctx, n.ID)
		if err != nil {
			return Agent{}, err
		}
		if _, ok := coordinatorOf(agents); ok {
			return Agent{}, errors.Validation("network %s already has a coordinator", n.ID)
		}
	}

	a := o.newAgent(n.ID, cfg, o.now())
	if err := o.repo.saveAgents(ctx, n, a); err != nil {
		return Agent{}, err
	}
	if err := o.repo.indexAgents(ctx, n, a); err != nil {
		return Agent{}, err
	}
	o.logger.InfoContext(ctx, "orchestrator.agent.added",
		slog.String("network_id", n.ID),
		slog.String("agent_id", a.ID),
		slog.String("agent_type", string(a.Type)),
	)
	return a, nil
}

// RemoveAgent deletes an agent from its network and drops its breaker.
func (o *Orchestrator) RemoveAgent(ctx context.Context, networkID, agentID string) error {
	caller, err := authorize(ctx, ScopeDelete)
	if err != nil {
		return err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return err
	}
	a, err := o.repo.getAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if a.NetworkID != n.ID {
		return errors.NotFound("agent", agentID).WithContext("network_id", n.ID)
	}
	if err := o.repo.removeAgent(ctx, n.ID, a.ID); err != nil {
		return err
	}
	o.breakers.Remove(agentBreaker(a.ID))
	o.logger.InfoContext(ctx, "orchestrator.agent.removed",
		slog.String("network_id", n.ID),
		slog.String("agent_id", a.ID),
	)
	return nil
}

// SubmitTask validates spec, applies the caller's rate limit and stores a
// pending task. The context bag is sanitized, never rejected.
func (o *Orchestrator) SubmitTask(ctx context.Context, networkID string, spec TaskSpec) (Task, error) {
	caller, err := authorize(ctx, ScopeSubmit)
	if err != nil {
		return Task{}, err
	}
	now := o.now()
	if err := validateTask(spec, now); err != nil {
		return Task{}, err
	}
	// Throttle before touching the store so abusive callers stay cheap.
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, caller.ID+":"+networkID, 1); err != nil {
			if errors.HasCode(err, errors.CodeRateLimit) {
				o.metrics.RecordRateLimitDenied(ctx, caller.ID)
			}
			return Task{}, err
		}
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return Task{}, err
	}
	if n.Status != NetworkActive {
		return Task{}, errors.Validation("network %s is %s", n.ID, n.Status)
	}

	t := Task{
		ID:            uuid.NewString(),
		NetworkID:     n.ID,
		Description:   spec.Description,
		Context:       o.sanitize(ctx, spec.Context, "task_context"),
		Priority:      orDefault(spec.Priority, minPriority),
		Deadline:      spec.Deadline,
		Status:        TaskPending,
		MaxIterations: n.MaxIterations,
		Owner:         caller.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.repo.addTask(ctx, n, t); err != nil {
		return Task{}, err
	}
	o.logger.InfoContext(ctx, "orchestrator.task.submitted",
		slog.String("network_id", n.ID),
		slog.String("task_id", t.ID),
		slog.Int("priority", t.Priority),
	)
	return t, nil
}

// NetworkView is a network with its agents, tasks and a memory snapshot.
type NetworkView struct {
	Network  Network       `json:"network"`
	Agents   []Agent       `json:"agents"`
	Tasks    []Task        `json:"tasks"`
	Memories []memory.Item `json:"memories"`
}

// GetNetwork reads a network and fetches its agents, tasks and memories
// concurrently. Dangling references are dropped; a memory read failure
// leaves Memories empty.
func (o *Orchestrator) GetNetwork(ctx context.Context, networkID string) (NetworkView, error) {
	caller, err := authorize(ctx, ScopeRead)
	if err != nil {
		return NetworkView{}, err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return NetworkView{}, err
	}
	view := NetworkView{Network: n}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view.Agents, err = o.repo.listAgents(gctx, n.ID)
		return err
	})
	g.Go(func() error {
		var err error
		view.Tasks, err = o.repo.listTasks(gctx, n.ID)
		return err
	})
	g.Go(func() error {
		items, err := o.memory.List(gctx, n.ID, "", snapshotLimit)
		if err != nil {
			o.logger.WarnContext(ctx, "orchestrator.network.memory_unavailable",
				slog.String("network_id", n.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		view.Memories = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return NetworkView{}, err
	}
	return view, nil
}

// GetTask reads a task. The caller must own the task or its network.
func (o *Orchestrator) GetTask(ctx context.Context, taskID string) (Task, error) {
	caller, err := authorize(ctx, ScopeRead)
	if err != nil {
		return Task{}, err
	}
	t, err := o.repo.getTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if caller.Owns(t.Owner) {
		return t, nil
	}
	if _, err := o.ownedNetwork(ctx, caller, t.NetworkID); err != nil {
		return Task{}, err
	}
	return t, nil
}

// ListTasks returns a network's tasks, newest first.
func (o *Orchestrator) ListTasks(ctx context.Context, networkID string) ([]Task, error) {
	caller, err := authorize(ctx, ScopeRead)
	if err != nil {
		return nil, err
	}
	if _, err := o.ownedNetwork(ctx, caller, networkID); err != nil {
		return nil, err
	}
	return o.repo.listTasks(ctx, networkID)
}

// ListAgents returns a network's agents in creation order.
func (o *Orchestrator) ListAgents(ctx context.Context, networkID string) ([]Agent, error) {
	caller, err := authorize(ctx, ScopeRead)
	if err != nil {
		return nil, err
	}
	if _, err := o.ownedNetwork(ctx, caller, networkID); err != nil {
		return nil, err
	}
	return o.repo.listAgents(ctx, networkID)
}

// ListNetworks returns the networks the caller may see.
func (o *Orchestrator) ListNetworks(ctx context.Context) ([]Network, error) {
	caller, err := authorize(ctx, ScopeRead)
	if err != nil {
		return nil, err
	}
	all, _, err := o.repo.listNetworks(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, n := range all {
		if caller.Owns(n.Owner) {
			out = append(out, n)
		}
	}
	return out, nil
}

// AddMemory stores a caller provided item in the network's hot tier.
func (o *Orchestrator) AddMemory(ctx context.Context, networkID string, in MemoryInput) (memory.Item, error) {
	caller, err := authorize(ctx, ScopeSubmit)
	if err != nil {
		return memory.Item{}, err
	}
	if err := validateMemory(in); err != nil {
		return memory.Item{}, err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return memory.Item{}, err
	}
	content := o.guard.Apply(ctx, in.Content).Content
	it, err := o.memory.Store(ctx, memory.Item{
		NetworkID:  n.ID,
		Type:       memory.Type(in.Type),
		Content:    content,
		Confidence: in.Confidence,
		Metadata:   o.sanitize(ctx, in.Metadata, "memory_metadata"),
	}, "")
	if err != nil {
		return memory.Item{}, wrapMemoryErr(err, n.ID)
	}
	return it, nil
}

// SearchMemory ranks a network's memory against q. q.NetworkID is ignored.
func (o *Orchestrator) SearchMemory(ctx context.Context, networkID string, q memory.SearchQuery) ([]memory.Item, error) {
	caller, err := authorize(ctx, ScopeRead)
	if err != nil {
		return nil, err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return nil, err
	}
	q.NetworkID = n.ID
	if q.Type != "" && !q.Type.Valid() {
		return nil, errors.Validation("unknown memory type %q", q.Type)
	}
	items, err := o.memory.Search(ctx, q)
	if err != nil {
		return nil, wrapMemoryErr(err, n.ID)
	}
	return items, nil
}

// ListMemory returns up to limit items of the network, most recent first.
func (o *Orchestrator) ListMemory(ctx context.Context, networkID string, typ memory.Type, limit int) ([]memory.Item, error) {
	caller, err := authorize(ctx, ScopeRead)
	if err != nil {
		return nil, err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	items, err := o.memory.List(ctx, n.ID, typ, limit)
	if err != nil {
		return nil, wrapMemoryErr(err, n.ID)
	}
	return items, nil
}

// DeleteMemory removes one item of the network from both tiers.
func (o *Orchestrator) DeleteMemory(ctx context.Context, networkID, memoryID string) error {
	caller, err := authorize(ctx, ScopeDelete)
	if err != nil {
		return err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return err
	}
	it, err := o.memory.Get(ctx, memoryID)
	if err != nil {
		return err
	}
	if it.NetworkID != n.ID {
		return errors.NotFound("memory", memoryID).WithContext("network_id", n.ID)
	}
	if _, err := o.memory.DeleteItem(ctx, it); err != nil {
		return wrapMemoryErr(err, n.ID)
	}
	return nil
}

// DeleteResult counts what a network deletion removed.
type DeleteResult struct {
	NetworkID string `json:"network_id"`
	Agents    int    `json:"agents"`
	Tasks     int    `json:"tasks"`
	Memories  int    `json:"memories"`
}

// DeleteNetwork removes a network with its agents, tasks and memories.
func (o *Orchestrator) DeleteNetwork(ctx context.Context, networkID string) (DeleteResult, error) {
	caller, err := authorize(ctx, ScopeDelete)
	if err != nil {
		return DeleteResult{}, err
	}
	if _, err := o.ownedNetwork(ctx, caller, networkID); err != nil {
		return DeleteResult{}, err
	}
	return o.cascade(ctx, networkID, "deleted")
}

// cascade removes the records, breakers and memories of a network. Memory
// goes first so a failure leaves the network visible for a retry.
func (o *Orchestrator) cascade(ctx context.Context, networkID, reason string) (DeleteResult, error) {
	res := DeleteResult{NetworkID: networkID}
	agents, err := o.repo.listAgents(ctx, networkID)
	if err != nil {
		return res, err
	}
	if res.Memories, err = o.memory.Clear(ctx, networkID); err != nil {
		return res, wrapMemoryErr(err, networkID)
	}
	if res.Agents, res.Tasks, err = o.repo.deleteNetwork(ctx, networkID); err != nil {
		return res, err
	}
	for _, a := range agents {
		o.breakers.Remove(agentBreaker(a.ID))
	}
	o.emit(ctx, core.EventNetworkDeleted, networkID, "", "", map[string]any{
		"reason":   reason,
		"agents":   res.Agents,
		"tasks":    res.Tasks,
		"memories": res.Memories,
	})
	o.logger.InfoContext(ctx, "orchestrator.network.deleted",
		slog.String("network_id", networkID),
		slog.String("reason", reason),
		slog.Int("agents", res.Agents),
		slog.Int("tasks", res.Tasks),
		slog.Int("memories", res.Memories),
	)
	return res, nil
}

// ArchiveNetwork stops a network from accepting new tasks.
func (o *Orchestrator) ArchiveNetwork(ctx context.Context, networkID string) (Network, error) {
	caller, err := authorize(ctx, ScopeDelete)
	if err != nil {
		return Network{}, err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return Network{}, err
	}
	if n.Status == NetworkArchived {
		return n, nil
	}
	n = n.withStatus(NetworkArchived, o.now())
	if err := o.repo.save(ctx, n, nil, nil); err != nil {
		return Network{}, err
	}
	return n, nil
}

// SweepRetention deletes networks older than their retention, including
// networks whose records already expired but whose memories remain.
func (o *Orchestrator) SweepRetention(ctx context.Context) (int, error) {
	networks, dangling, err := o.repo.listNetworks(ctx)
	if err != nil {
		return 0, err
	}
	now := o.now()
	removed := 0
	var firstErr error
	sweep := func(id, reason string) {
		if _, err := o.cascade(ctx, id, reason); err != nil {
			o.logger.WarnContext(ctx, "orchestrator.retention.failed",
				slog.String("network_id", id),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		removed++
	}
	for _, n := range networks {
		if now.After(n.ExpiresAt()) {
			sweep(n.ID, "retention")
		}
	}
	for _, id := range dangling {
		sweep(id, "expired")
	}
	return removed, firstErr
}

// RetentionSweep returns the supervised retention job for a runtime.
func (o *Orchestrator) RetentionSweep(every time.Duration) runtime.Sweep {
	return runtime.Sweep{
		Name:     "orchestrator.retention",
		Interval: every,
		Timeout:  every / 2,
		Run:      o.SweepRetention,
	}
}

// Breakers returns the state of every breaker the orchestrator uses.
func (o *Orchestrator) Breakers() []resilience.BreakerSnapshot {
	return o.breakers.Snapshots()
}

// HealthChecker reports the orchestrator's breaker health.
func (o *Orchestrator) HealthChecker() core.HealthChecker {
	return &BreakerHealthChecker{registry: o.breakers}
}

func coordinatorOf(agents []Agent) (Agent, bool) {
	for _, a := range agents {
		if a.Type == agent.TypeCoordinator {
			return a, true
		}
	}
	return Agent{}, false
}

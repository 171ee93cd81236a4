// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agentnet/pkg/agent"
	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/llm"
	"github.com/jllopis/agentnet/pkg/memory"
	"github.com/jllopis/agentnet/pkg/resilience"
	"github.com/jllopis/agentnet/pkg/telemetry"
)

const finalizeTimeout = 10 * time.Second

// ProcessTask drives a pending task through the coordinator's delegation
// loop until the coordinator reports completion or the iteration budget
// runs out, then forces one synthesis step. Processing is bounded by the
// network timeout and the task deadline.
//
// A task that reached a terminal state is returned with a nil error even
// when it failed; the failure is recorded on the task. Errors are returned
// only when processing could not start or the final state was not saved.
func (o *Orchestrator) ProcessTask(ctx context.Context, networkID, taskID string) (Task, error) {
	caller, err := authorize(ctx, ScopeProcess)
	if err != nil {
		return Task{}, err
	}
	n, err := o.ownedNetwork(ctx, caller, networkID)
	if err != nil {
		return Task{}, err
	}
	t, stored, err := o.repo.getTaskRecord(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.NetworkID != n.ID {
		return Task{}, errors.NotFound("task", taskID).WithContext("network_id", n.ID)
	}
	if t.Status != TaskPending {
		return Task{}, errors.Validation("task %s is %s, only pending tasks can be processed", t.ID, t.Status)
	}
	agents, err := o.repo.listAgents(ctx, n.ID)
	if err != nil {
		return Task{}, err
	}
	coord, ok := coordinatorOf(agents)
	if !ok {
		return Task{}, errors.New(errors.CodeNoCoordinator, "network has no coordinator agent", nil).
			WithContext("network_id", n.ID).
			WithContext("task_id", t.ID)
	}

	ctx, _ = core.StartRun(ctx, n.ID, t.ID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.process_task",
		trace.WithAttributes(telemetry.TaskAttributes(n.ID, t.ID, 0, t.MaxIterations)...))
	defer span.End()
	logger := o.logger.With(
		slog.String("network_id", n.ID),
		slog.String("task_id", t.ID),
	)

	now := o.now()
	t = t.withStatus(TaskInProgress, now)
	coord = coord.withAssigned(t.ID).withStatus(AgentWorking, "coordinating task "+t.ID, now)
	// The claim only succeeds against the pending record read above, so one
	// caller runs the task and the others see it already in progress.
	claimed, err := o.repo.claimTask(ctx, n, stored, t, coord)
	if err != nil {
		return Task{}, err
	}
	if !claimed {
		logger.InfoContext(ctx, "orchestrator.task.claim_lost")
		return Task{}, errors.Validation("task %s is already being processed", t.ID).
			WithContext("task_id", t.ID)
	}
	o.emit(ctx, core.EventTaskStarted, n.ID, t.ID, coord.ID, map[string]any{"max_iterations": t.MaxIterations})
	logger.InfoContext(ctx, "orchestrator.task.start", slog.Int("max_iterations", t.MaxIterations))

	r := &run{
		o:       o,
		network: n,
		task:    t,
		coord:   coord,
		agents:  workers(agents),
		logger:  logger,
	}

	runCtx, cancel := context.WithTimeout(ctx, n.Timeout())
	defer cancel()
	if t.Deadline != nil {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, *t.Deadline)
		defer cancelDeadline()
	}

	status, result, runErr := r.safeExecute(runCtx)
	if runErr != nil {
		status, result = TaskFailed, nil
		runErr = wrapRunErr(runCtx, runErr)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		o.metrics.RecordError(ctx, "orchestrator", runErr)
	}
	return r.finalize(ctx, status, result, runErr)
}

func workers(agents []Agent) []Agent {
	out := make([]Agent, 0, len(agents))
	for _, a := range agents {
		if a.Type != agent.TypeCoordinator {
			out = append(out, a)
		}
	}
	return out
}

// run is the state of one ProcessTask call. Only the processing goroutine
// mutates it; subtasks get copies and share load under its lock.
type run struct {
	o       *Orchestrator
	network Network
	task    Task
	coord   Agent
	agents  []Agent
	logger  *slog.Logger

	results   []any
	succeeded []any
	load      *agentLoad
}

// agentLoad counts the subtasks running on each worker during one dispatch.
// An agent stays working until its last subtask ends, and a generation
// failure in any of them leaves it in the error state.
type agentLoad struct {
	mu     sync.Mutex
	active map[string]int
	failed map[string]bool
	latest map[string]Agent
}

func newAgentLoad() *agentLoad {
	return &agentLoad{
		active: map[string]int{},
		failed: map[string]bool{},
		latest: map[string]Agent{},
	}
}

// safeExecute turns a panic in the loop into a failed task.
func (r *run) safeExecute(ctx context.Context) (status TaskStatus, result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "orchestrator.task.panic", slog.Any("panic", p))
			status, result = TaskFailed, nil
			err = errors.New(errors.CodeInternal, fmt.Sprintf("task processing panicked: %v", p), nil)
		}
	}()
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) (TaskStatus, any, error) {
	for r.task.Iterations < r.task.MaxIterations {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		iteration := r.task.Iterations + 1
		r.task = r.task.withIteration(iteration, r.o.now())

		dec, err := r.coordinatorTurn(ctx, iteration)
		if err != nil {
			return "", nil, err
		}
		if err := r.saveTask(ctx); err != nil {
			return "", nil, err
		}

		if dec.Complete {
			r.persistMemories(ctx, iteration, r.coord, dec.Memories)
			r.task = r.task.withHistory(HistoryEntry{
				Iteration:   iteration,
				Kind:        HistorySynthesis,
				AgentID:     r.coord.ID,
				AgentType:   r.coord.Type,
				Description: "coordinator reported completion",
				Output:      dec.Result,
				Confidence:  dec.Confidence,
				Timestamp:   r.o.now(),
			})
			return TaskCompleted, dec.Result, nil
		}
		if dec.Fallback {
			// Every model failed for the coordinator; further turns would
			// fail the same way, so synthesize from what exists.
			r.logger.WarnContext(ctx, "orchestrator.coordinator.unavailable", slog.Int("iteration", iteration))
			break
		}
		if dec.Error != "" {
			r.results = append(r.results, map[string]any{
				"iteration":  iteration,
				"agent_type": string(agent.TypeCoordinator),
				"error":      dec.Error,
				"confidence": 0,
			})
			continue
		}

		proposals := r.dispatch(ctx, iteration, dec.Subtasks)
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		r.persistMemories(ctx, iteration, r.coord, dec.Memories)
		for _, p := range proposals {
			r.persistMemories(ctx, iteration, p.agent, p.memories)
		}
		if err := r.saveTask(ctx); err != nil {
			return "", nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return r.synthesize(ctx)
}

func (r *run) saveTask(ctx context.Context) error {
	r.task.UpdatedAt = r.o.now()
	if err := r.o.repo.saveTask(ctx, r.network, r.task); err != nil {
		return errors.New(errors.CodeStoreError, "saving task state failed", err).
			WithContext("task_id", r.task.ID)
	}
	return nil
}

// turnInput assembles the coordinator's view for one step.
func (r *run) turnInput(ctx context.Context, iteration int) agent.TurnInput {
	roster := make([]agent.RosterEntry, len(r.agents))
	for i, a := range r.agents {
		roster[i] = a.Roster()
	}
	in := agent.TurnInput{
		Task:          r.task.Description,
		TaskContext:   r.task.Context,
		SharedContext: r.network.SharedContext,
		Agents:        roster,
		Results:       r.results,
		Iteration:     iteration,
		MaxIterations: r.task.MaxIterations,
	}
	items, err := r.o.memory.List(ctx, r.network.ID, "", snapshotLimit)
	if err != nil {
		r.logger.WarnContext(ctx, "orchestrator.memory.snapshot_failed", slog.String("error", err.Error()))
		return in
	}
	for _, it := range items {
		in.Memories = append(in.Memories, map[string]any{
			"type":       string(it.Type),
			"content":    it.Content,
			"confidence": it.Confidence,
		})
	}
	return in
}

func (r *run) coordinatorTurn(ctx context.Context, iteration int) (agent.Decision, error) {
	ctx, span := r.o.tracer.Start(ctx, "orchestrator.coordinator_turn",
		trace.WithAttributes(telemetry.TaskAttributes(r.network.ID, r.task.ID, iteration, r.task.MaxIterations)...))
	defer span.End()

	kind := agent.Coordinator{}
	in := r.turnInput(ctx, iteration)
	g, err := r.o.generate(ctx, r.coord, kind.SystemPrompt(), kind.TurnPrompt(in), *r.o.defaults.CoordinatorRetry)
	if err != nil {
		return agent.Decision{}, err
	}
	dec := kind.ParseDecision(g.content)
	if g.fallback {
		dec.Fallback = true
	}
	span.SetAttributes(
		attribute.Bool("complete", dec.Complete),
		attribute.Int(telemetry.AttrSubtaskCount, len(dec.Subtasks)),
		attribute.Bool(telemetry.AttrLLMFallback, dec.Fallback),
	)
	r.task = r.task.withHistory(HistoryEntry{
		Iteration:   iteration,
		Kind:        HistoryCoordinator,
		AgentID:     r.coord.ID,
		AgentType:   r.coord.Type,
		Description: dec.Reasoning,
		Output:      dec,
		Confidence:  dec.Confidence,
		ModelUsed:   g.model,
		Fallback:    dec.Fallback,
		Error:       dec.Error,
		Timestamp:   r.o.now(),
	})
	r.logger.DebugContext(ctx, "orchestrator.coordinator.turn",
		slog.Int("iteration", iteration),
		slog.Bool("complete", dec.Complete),
		slog.Int("subtasks", len(dec.Subtasks)),
		slog.Bool("fallback", dec.Fallback),
	)
	return dec, nil
}

// job is one resolved subtask assignment.
type job struct {
	assignment agent.Assignment
	agent      Agent
	found      bool
}

// outcome is what a subtask hands back to the loop.
type outcome struct {
	agent    Agent
	response agent.Response
	model    string
	fallback bool
	memories []agent.MemoryProposal
}

func (r *run) resolve(a agent.Assignment) (Agent, bool) {
	if a.AgentID != "" {
		for _, w := range r.agents {
			if w.ID == a.AgentID {
				return w, true
			}
		}
	}
	if a.AgentType != "" {
		for _, w := range r.agents {
			if w.Type == a.AgentType {
				return w, true
			}
		}
	}
	return Agent{}, false
}

// dispatch runs the iteration's subtasks concurrently, folds every result
// into the running context in input order and returns the successful
// outcomes carrying memory proposals.
func (r *run) dispatch(ctx context.Context, iteration int, assignments []agent.Assignment) []outcome {
	if len(assignments) == 0 {
		return nil
	}
	jobs := make([]job, len(assignments))
	for i, a := range assignments {
		w, ok := r.resolve(a)
		jobs[i] = job{assignment: a, agent: w, found: ok}
	}
	r.load = newAgentLoad()
	results := resilience.Process(ctx, jobs, func(ctx context.Context, j job) (outcome, error) {
		if !j.found {
			return outcome{}, errors.NotFound("agent", firstNonEmpty(j.assignment.AgentID, string(j.assignment.AgentType)))
		}
		return r.runSubtask(ctx, iteration, j)
	}, resilience.ProcessOptions{
		MaxConcurrency: min(len(jobs), r.o.defaults.MaxFanout),
		PreserveOrder:  true,
	})

	var withMemories []outcome
	now := r.o.now()
	for i, res := range results {
		j := jobs[i]
		entry := HistoryEntry{
			Iteration:   iteration,
			Kind:        HistorySubtask,
			AgentID:     j.agent.ID,
			AgentType:   firstNonEmptyType(j.agent.Type, j.assignment.AgentType),
			Description: j.assignment.Description,
			Timestamp:   now,
		}
		payload := map[string]any{
			"iteration":  iteration,
			"agent_id":   j.agent.ID,
			"agent_type": string(entry.AgentType),
			"subtask":    j.assignment.Description,
		}
		if !res.OK() {
			entry.Error = res.Err.Error()
			payload["error"] = res.Err.Error()
			payload["confidence"] = 0
		} else {
			out := res.Value
			entry.Output = out.response.Result
			entry.Confidence = out.response.Confidence
			entry.ModelUsed = out.model
			entry.Fallback = out.fallback
			entry.Error = out.response.Error
			payload["confidence"] = out.response.Confidence
			if out.response.OK() {
				payload["reasoning"] = out.response.Reasoning
				payload["result"] = out.response.Result
				r.succeeded = append(r.succeeded, payload)
				if len(out.memories) > 0 {
					withMemories = append(withMemories, out)
				}
			} else {
				payload["error"] = out.response.Error
			}
		}
		r.task = r.task.withHistory(entry)
		r.results = append(r.results, payload)
	}
	for _, a := range r.load.latest {
		r.replaceAgent(a)
	}
	return withMemories
}

func (r *run) replaceAgent(a Agent) {
	for i := range r.agents {
		if r.agents[i].ID == a.ID {
			r.agents[i] = a
			return
		}
	}
}

// runSubtask executes one assignment on its agent. Generation failures come
// back as a low-confidence response; only a lost context is an error.
func (r *run) runSubtask(ctx context.Context, iteration int, j job) (outcome, error) {
	a := j.agent
	ctx, span := r.o.tracer.Start(ctx, "orchestrator.subtask",
		trace.WithAttributes(telemetry.AgentAttributes(a.ID, string(a.Type), a.Model)...),
		trace.WithAttributes(attribute.Int(telemetry.AttrTaskIteration, iteration)))
	defer span.End()

	a = r.agentStarted(ctx, a, telemetry.Truncate(j.assignment.Description, 200))
	r.o.emit(ctx, core.EventSubtaskStarted, r.network.ID, r.task.ID, a.ID, map[string]any{
		"iteration": iteration,
		"subtask":   j.assignment.Description,
	})
	r.o.emit(ctx, core.EventAgentStatus, r.network.ID, r.task.ID, a.ID, map[string]any{"status": string(a.Status)})

	kind, _ := agent.KindFor(a.Type)
	prompt := kind.BuildPrompt(agent.Request{
		Task:    r.task.Description,
		Subtask: j.assignment.Description,
		Context: map[string]any{
			"task_context":   r.task.Context,
			"shared_context": r.network.SharedContext,
		},
	})
	g, err := r.o.generate(ctx, a, kind.SystemPrompt(), prompt, *r.o.defaults.SubtaskRetry)
	if err != nil {
		r.agentFinished(context.WithoutCancel(ctx), a.ID, AgentIdle, "subtask interrupted", nil)
		span.RecordError(err)
		return outcome{}, err
	}

	resp := kind.ParseResponse(g.content)
	status, action := AgentIdle, "completed subtask"
	if g.fallback {
		status, action = AgentError, "generation unavailable"
	}
	a = r.agentFinished(ctx, a.ID, status, action, &resp.Confidence)
	r.o.emit(ctx, core.EventAgentStatus, r.network.ID, r.task.ID, a.ID, map[string]any{"status": string(a.Status)})

	eventType := core.EventSubtaskCompleted
	payload := map[string]any{"iteration": iteration, "confidence": resp.Confidence}
	if !resp.OK() {
		eventType = core.EventSubtaskFailed
		payload["error"] = resp.Error
		span.SetStatus(codes.Error, resp.Error)
	}
	r.o.emit(ctx, eventType, r.network.ID, r.task.ID, a.ID, payload)
	r.o.metrics.RecordSubtask(ctx, string(a.Type), resp.OK())

	return outcome{
		agent:    a,
		response: resp,
		model:    g.model,
		fallback: g.fallback,
		memories: resp.Memories,
	}, nil
}

// agentStarted marks a as working on the task and persists it. Concurrent
// subtasks on the same agent build on each other's record.
func (r *run) agentStarted(ctx context.Context, a Agent, action string) Agent {
	l := r.load
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.latest[a.ID]; ok {
		a = cur
	}
	l.active[a.ID]++
	a = a.withAssigned(r.task.ID).withStatus(AgentWorking, action, r.o.now())
	l.latest[a.ID] = a
	r.saveAgent(ctx, a)
	return a
}

// agentFinished records the end of one subtask on the agent. The agent
// keeps the working status while other subtasks still run on it.
func (r *run) agentFinished(ctx context.Context, id string, status AgentStatus, action string, confidence *float64) Agent {
	l := r.load
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.latest[id]
	l.active[id]--
	if status == AgentError {
		l.failed[id] = true
	}
	switch {
	case l.active[id] > 0:
		status = AgentWorking
	case l.failed[id]:
		status = AgentError
	}
	a = a.withStatus(status, action, r.o.now())
	if confidence != nil {
		a = a.withConfidence(*confidence)
	}
	l.latest[id] = a
	r.saveAgent(ctx, a)
	return a
}

// saveAgent persists an agent status change. A failure is logged only: the
// task record, not the agent status, is the source of truth for progress.
func (r *run) saveAgent(ctx context.Context, a Agent) {
	if err := r.o.repo.saveAgents(ctx, r.network, a); err != nil {
		r.logger.WarnContext(ctx, "orchestrator.agent.save_failed",
			slog.String("agent_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
}

// persistMemories stores proposed memory items with bounded concurrency.
// Invalid proposals are dropped.
func (r *run) persistMemories(ctx context.Context, iteration int, source Agent, proposals []agent.MemoryProposal) {
	valid := make([]memory.Item, 0, len(proposals))
	for _, p := range proposals {
		typ := memory.Type(p.Type)
		if !typ.Valid() || p.Content == "" || p.Confidence < 0 || p.Confidence > 1 {
			continue
		}
		valid = append(valid, memory.Item{
			NetworkID:  r.network.ID,
			Type:       typ,
			Content:    r.o.guard.Apply(ctx, p.Content).Content,
			Confidence: p.Confidence,
			Metadata: map[string]any{
				"source_agent": source.ID,
				"source_type":  string(source.Type),
				"task_id":      r.task.ID,
				"iteration":    iteration,
			},
		})
	}
	if len(valid) == 0 {
		return
	}
	results := resilience.Process(ctx, valid, func(ctx context.Context, it memory.Item) (memory.Item, error) {
		return r.o.memory.Store(ctx, it, "")
	}, resilience.ProcessOptions{MaxConcurrency: min(len(valid), r.o.defaults.MaxFanout)})

	stored := resilience.Values(results)
	for _, res := range results {
		if !res.OK() {
			r.logger.WarnContext(ctx, "orchestrator.memory.store_failed", slog.String("error", res.Err.Error()))
		}
	}
	ids := make([]string, len(stored))
	for i, it := range stored {
		ids[i] = it.ID
	}
	r.task = r.task.withHistory(HistoryEntry{
		Iteration:   iteration,
		Kind:        HistoryMemory,
		AgentID:     source.ID,
		AgentType:   source.Type,
		Description: fmt.Sprintf("stored %d of %d memory items", len(stored), len(valid)),
		Output:      ids,
		Timestamp:   r.o.now(),
	})
}

// synthesize forces a final result once the loop ended without completion.
// It runs at iteration max+1 at most.
func (r *run) synthesize(ctx context.Context) (TaskStatus, any, error) {
	iteration := r.task.Iterations + 1
	r.task = r.task.withIteration(iteration, r.o.now())
	ctx, span := r.o.tracer.Start(ctx, "orchestrator.synthesis",
		trace.WithAttributes(telemetry.TaskAttributes(r.network.ID, r.task.ID, iteration, r.task.MaxIterations)...))
	defer span.End()

	kind := agent.Coordinator{}
	in := r.turnInput(ctx, iteration)
	g, err := r.o.generate(ctx, r.coord, kind.SystemPrompt(), kind.SynthesisPrompt(in), *r.o.defaults.CoordinatorRetry)
	if err != nil {
		return "", nil, err
	}
	resp := kind.ParseResponse(g.content)
	r.task = r.task.withHistory(HistoryEntry{
		Iteration:   iteration,
		Kind:        HistorySynthesis,
		AgentID:     r.coord.ID,
		AgentType:   r.coord.Type,
		Description: resp.Reasoning,
		Output:      resp.Result,
		Confidence:  resp.Confidence,
		ModelUsed:   g.model,
		Fallback:    g.fallback,
		Error:       resp.Error,
		Timestamp:   r.o.now(),
	})
	if resp.OK() {
		r.persistMemories(ctx, iteration, r.coord, resp.Memories)
		return TaskCompleted, resp.Result, nil
	}

	span.SetStatus(codes.Error, resp.Error)
	r.logger.WarnContext(ctx, "orchestrator.synthesis.failed",
		slog.Bool("fallback", g.fallback),
		slog.Int("successful_subtasks", len(r.succeeded)),
	)
	if len(r.succeeded) > 0 {
		return TaskPartial, map[string]any{
			"partial": true,
			"reason":  resp.Error,
			"results": r.succeeded,
		}, nil
	}
	return "", nil, errors.New(errors.CodeGeneration, "generation unavailable", nil).
		WithContext("reason", resp.Error)
}

// finalize records the terminal state of the task and releases the
// coordinator. It runs even when ctx is canceled.
func (r *run) finalize(ctx context.Context, status TaskStatus, result any, runErr error) (Task, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	now := r.o.now()
	t, err := r.task.withOutcome(status, result, runErr, now)
	if err != nil {
		return r.task, err
	}
	coord := r.coord.withStatus(AgentIdle, "finished task "+t.ID, now)
	if err := r.o.repo.saveTaskAndAgent(ctx, r.network, t, coord); err != nil {
		r.logger.ErrorContext(ctx, "orchestrator.task.finalize_failed", slog.String("error", err.Error()))
		return t, err
	}
	r.task, r.coord = t, coord

	eventType := core.EventTaskCompleted
	payload := map[string]any{"status": string(t.Status), "iterations": t.Iterations}
	if t.Status == TaskFailed {
		eventType = core.EventTaskFailed
		payload["error"] = t.Error
		payload["error_code"] = t.ErrorCode
	}
	r.o.emit(ctx, eventType, t.NetworkID, t.ID, coord.ID, payload)
	r.o.emit(ctx, core.EventAgentStatus, t.NetworkID, t.ID, coord.ID, map[string]any{"status": string(coord.Status)})
	r.o.metrics.RecordTask(ctx, string(t.Status), t.Iterations)

	level := slog.LevelInfo
	if t.Status != TaskCompleted {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "orchestrator.task.finish",
		slog.String("status", string(t.Status)),
		slog.Int("iterations", t.Iterations),
		slog.String("error_code", t.ErrorCode),
	)
	return t, nil
}

// generation is the text produced for one agent call.
type generation struct {
	content  string
	model    string
	fallback bool
}

// generate calls the agent's model under its breaker with retry, then each
// fallback model under that model's breaker, and finally returns the marked
// fallback payload. It fails only when ctx is done.
func (o *Orchestrator) generate(ctx context.Context, a Agent, system, prompt string, rc resilience.RetryConfig) (generation, error) {
	req := llm.GenerateRequest{
		Prompt:       prompt,
		Model:        a.Model,
		Temperature:  a.Temperature,
		MaxTokens:    a.MaxTokens,
		SystemPrompt: system,
	}
	attempt := func(breaker string, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return resilience.Call(ctx, o.breakers.Get(breaker), func(ctx context.Context) (*llm.GenerateResponse, error) {
			return resilience.Retry(ctx, rc, func(ctx context.Context) (*llm.GenerateResponse, error) {
				return o.gen.Generate(ctx, req)
			})
		}, nil)
	}

	resp, err := attempt(agentBreaker(a.ID), req)
	if err == nil {
		o.metrics.RecordGeneration(ctx, resp.ModelUsed, false, nil)
		return generation{content: resp.Content, model: resp.ModelUsed}, nil
	}
	lastErr := wrapGenerationErr(err, a, a.Model)
	o.metrics.RecordGeneration(ctx, a.Model, false, lastErr)

	for _, m := range o.fallbacks {
		if ctx.Err() != nil {
			return generation{}, ctx.Err()
		}
		if m == a.Model {
			continue
		}
		req.Model = m
		resp, err := attempt(modelBreaker(m), req)
		if err == nil {
			o.logger.InfoContext(ctx, "orchestrator.generation.fallback_model",
				slog.String("agent_id", a.ID),
				slog.String("model", a.Model),
				slog.String("fallback", m),
			)
			o.metrics.RecordGeneration(ctx, resp.ModelUsed, true, nil)
			return generation{content: resp.Content, model: resp.ModelUsed}, nil
		}
		lastErr = wrapGenerationErr(err, a, m)
		o.metrics.RecordGeneration(ctx, m, true, lastErr)
	}
	if ctx.Err() != nil {
		return generation{}, ctx.Err()
	}
	o.logger.WarnContext(ctx, "orchestrator.generation.exhausted",
		slog.String("agent_id", a.ID),
		slog.String("agent_type", string(a.Type)),
		slog.String("error", lastErr.Error()),
	)
	return generation{content: agent.FallbackContent(lastErr.Error()), fallback: true}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyType(a, b agent.Type) agent.Type {
	if a != "" {
		return a
	}
	return b
}

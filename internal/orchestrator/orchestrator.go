// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator implements C9: the sequential glue that spawns
// agents, consults memory, runs debates, records experiments, and writes
// the final audit event. It is the only component that writes to both
// memory and the ledger.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vexlabs/vex/internal/audit"
	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/debate"
	"github.com/vexlabs/vex/internal/evolution"
	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/memory"
	"github.com/vexlabs/vex/internal/vexerr"
)

var executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vex",
	Subsystem: "orchestrator",
	Name:      "executions_total",
	Help:      "Task executions by tenant and status.",
}, []string{"tenant", "status"})

// Config tunes one orchestrator instance.
type Config struct {
	Protocol    debate.Protocol
	RecallK     int   // memory episodes consulted per task, default 5
	MaxParallel int64 // concurrent debates under ExecuteMany, default 4
}

func (c Config) withDefaults() Config {
	if c.Protocol == "" {
		c.Protocol = debate.Majority
	}
	if c.RecallK <= 0 {
		c.RecallK = 5
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	return c
}

// TaskResult is the structured outcome surfaced to callers: the debate
// result plus the executing agent.
type TaskResult struct {
	*debate.Result
	AgentID   string  `json:"agent_id"`
	TaskClass string  `json:"task_class"`
	Fitness   float64 `json:"fitness"`
}

// Orchestrator wires the core subsystems together.
type Orchestrator struct {
	agents    *genome.Store
	memory    *memory.Store
	engine    *debate.Engine
	loop      *evolution.Loop
	ledger    *audit.Ledger
	evaluator evolution.FitnessEvaluator
	clock     clock.Clock
	cfg       Config
	log       *slog.Logger
	tracer    trace.Tracer
	sem       *semaphore.Weighted
}

// New assembles an orchestrator. evaluator may be nil to use the default
// heuristic evaluator.
func New(agents *genome.Store, mem *memory.Store, engine *debate.Engine, loop *evolution.Loop, ledger *audit.Ledger, evaluator evolution.FitnessEvaluator, c clock.Clock, cfg Config, log *slog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if evaluator == nil {
		evaluator = evolution.HeuristicEvaluator{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		agents:    agents,
		memory:    mem,
		engine:    engine,
		loop:      loop,
		ledger:    ledger,
		evaluator: evaluator,
		clock:     c,
		cfg:       cfg,
		log:       log,
		tracer:    otel.Tracer("vex/orchestrator"),
		sem:       semaphore.NewWeighted(cfg.MaxParallel),
	}
}

// Execute runs one task end to end: agent selection, memory consult,
// debate, fitness evaluation, experiment recording, and the final audit
// event. A failed status indicates an unrecoverable core fault;
// inconclusive is a first-class debate outcome.
func (o *Orchestrator) Execute(ctx context.Context, tenant, task string) (*TaskResult, error) {
	if tenant == "" || task == "" {
		return nil, vexerr.New(vexerr.Input, "orchestrator.Execute", "tenant and task are required")
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.execute",
		trace.WithAttributes(attribute.String("tenant", tenant)))
	defer span.End()

	taskClass := ClassifyTask(task)

	agent, err := o.selectAgent(ctx, tenant, taskClass)
	if err != nil {
		return nil, err
	}

	prompt, recalled := o.consultMemory(ctx, tenant, task)

	debateResult, err := o.engine.Run(ctx, agent, prompt)
	if err != nil {
		executionsTotal.WithLabelValues(tenant, string(debate.StatusFailed)).Inc()
		return &TaskResult{Result: debateResult, AgentID: agent.ID, TaskClass: taskClass}, err
	}

	consensus := 0.0
	if debateResult.Status == debate.StatusOK {
		consensus = debateResult.Confidence
	}
	components, overall := o.evaluator.Evaluate(evolution.Evaluation{
		Task:      task,
		Answer:    debateResult.Answer,
		Rounds:    debateResult.Transcript.Rounds(),
		Recent:    recalled,
		Consensus: consensus,
	})

	agent.Fitness = overall
	if err := o.agents.Save(ctx, agent); err != nil {
		return nil, err
	}

	rules, err := o.loop.Record(ctx, evolution.ExperimentRecord{
		AgentID:           agent.ID,
		Traits:            agent.Genome.Traits(),
		TaskClass:         taskClass,
		TaskSummary:       summarizeTask(task),
		FitnessComponents: components,
		OverallFitness:    overall,
		TenantID:          tenant,
	})
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		o.auditBatch(ctx, tenant, rules)
	}

	if debateResult.Answer != "" {
		episode := fmt.Sprintf("task: %s\nanswer: %s", task, debateResult.Answer)
		if _, err := o.memory.Insert(ctx, tenant, episode, overall); err != nil {
			o.log.Warn("episode insert failed", "tenant", tenant, "error", err)
		}
	}

	diff := &audit.Diff{Fields: map[string]any{
		"task_class": taskClass,
		"status":     string(debateResult.Status),
		"fitness":    overall,
	}}
	if _, err := o.ledger.Append(ctx, tenant, agent.ID, "orchestrator.execute", audit.NewSystemActor("orchestrator"), diff); err != nil {
		return nil, err
	}

	executionsTotal.WithLabelValues(tenant, string(debateResult.Status)).Inc()
	return &TaskResult{
		Result:    debateResult,
		AgentID:   agent.ID,
		TaskClass: taskClass,
		Fitness:   overall,
	}, nil
}

// ExecuteMany runs independent tasks in parallel, bounded by MaxParallel,
// and joins them before returning. Individual task failures do not abort
// the batch; each slot carries its own result or error.
func (o *Orchestrator) ExecuteMany(ctx context.Context, tenant string, tasks []string) ([]*TaskResult, []error) {
	results := make([]*TaskResult, len(tasks))
	errs := make([]error, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			if err := o.sem.Acquire(gctx, 1); err != nil {
				errs[i] = vexerr.Wrap(vexerr.Cancelled, "orchestrator.ExecuteMany", "semaphore wait", err)
				return nil
			}
			defer o.sem.Release(1)
			results[i], errs[i] = o.Execute(gctx, tenant, task)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// selectAgent reuses the fittest lineage when a pool exists, spawning a
// child via tournament selection, else creates a genesis agent. Applicable
// optimization rules perturb the child's genome; the perturbation is
// audited so trait drift is explainable.
func (o *Orchestrator) selectAgent(ctx context.Context, tenant, taskClass string) (*genome.Agent, error) {
	pool, err := o.agents.List(ctx, tenant)
	if err != nil {
		return nil, err
	}

	var agent *genome.Agent
	if len(pool) == 0 {
		agent = genome.New(genome.Config{Name: "proposer", Role: "general purpose proposer"}, tenant, o.clock)
	} else {
		parent := genome.TournamentSelect(pool, 0, nil)
		mate := genome.TournamentSelect(pool, 0, nil)
		agent = genome.SpawnChild(parent, mate, genome.Config{}, o.clock, nil)
	}

	rules, err := o.loop.Rules().Applicable(ctx, tenant, taskClass)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		var applied []genome.Adjustment
		for _, rule := range rules {
			applied = append(applied, rule.Adjustments...)
		}
		before := agent.Genome
		agent.ApplyAdjustments(applied)
		o.auditRuleApplication(ctx, tenant, agent, before, rules)
	}

	if err := o.agents.Save(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// consultMemory recalls relevant episodes and folds them into the task
// prompt as context packets. Recall failures degrade to a bare prompt.
func (o *Orchestrator) consultMemory(ctx context.Context, tenant, task string) (string, []string) {
	episodes, err := o.memory.Recall(ctx, tenant, task, o.cfg.RecallK)
	if err != nil {
		o.log.Warn("memory recall failed", "tenant", tenant, "error", err)
		return task, nil
	}
	if len(episodes) == 0 {
		return task, nil
	}

	now := o.clock.Now()
	var sb strings.Builder
	sb.WriteString("RELEVANT CONTEXT:\n")
	recalled := make([]string, 0, len(episodes))
	for _, e := range episodes {
		packet := e.Packet(now)
		fmt.Fprintf(&sb, "- %s\n", packet.Content)
		recalled = append(recalled, e.Content)
	}
	sb.WriteString("\nTASK:\n")
	sb.WriteString(task)
	return sb.String(), recalled
}

func (o *Orchestrator) auditRuleApplication(ctx context.Context, tenant string, agent *genome.Agent, before genome.Genome, rules []evolution.OptimizationRule) {
	ruleIDs := make([]string, len(rules))
	for i, r := range rules {
		ruleIDs[i] = r.ID
	}
	diff := &audit.Diff{Fields: map[string]any{
		"rules":  ruleIDs,
		"before": before.Traits(),
		"after":  agent.Genome.Traits(),
	}}
	if _, err := o.ledger.Append(ctx, tenant, agent.ID, "agent.rule_applied", audit.NewSystemActor("evolution"), diff); err != nil {
		o.log.Warn("rule application audit failed", "tenant", tenant, "agent", agent.ID, "error", err)
	}
}

func (o *Orchestrator) auditBatch(ctx context.Context, tenant string, rules []evolution.OptimizationRule) {
	descriptions := make([]string, len(rules))
	for i, r := range rules {
		descriptions[i] = r.Description
	}
	diff := &audit.Diff{Fields: map[string]any{"rules": descriptions}}
	if _, err := o.ledger.Append(ctx, tenant, "evolution", "evolution.batch", audit.NewSystemActor("evolution"), diff); err != nil {
		o.log.Warn("batch audit failed", "tenant", tenant, "error", err)
	}
}

// ClassifyTask buckets a task into a coarse class used for rule matching
// and experiment clustering.
func ClassifyTask(task string) string {
	lower := strings.ToLower(task)
	switch {
	case strings.ContainsAny(lower, "0123456789") && containsAny(lower, "+", "-", "*", "/", "sum", "calculate", "compute"):
		return "arithmetic"
	case containsAny(lower, "code", "function", "bug", "compile", "implement"):
		return "coding"
	case containsAny(lower, "summarize", "summary", "tl;dr"):
		return "summarization"
	case containsAny(lower, "why", "explain", "reason"):
		return "reasoning"
	case containsAny(lower, "what", "who", "when", "where", "capital"):
		return "factual"
	default:
		return "general"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// summarizeTask truncates a task to the summary stored on experiments.
func summarizeTask(task string) string {
	runes := []rune(task)
	if len(runes) > 200 {
		return string(runes[:200]) + "…"
	}
	return task
}

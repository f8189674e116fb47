// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package debate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vexlabs/vex/internal/anchor"
	"github.com/vexlabs/vex/internal/audit"
	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/llm"
	"github.com/vexlabs/vex/internal/merkle"
	"github.com/vexlabs/vex/internal/vexerr"
)

var debatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vex",
	Subsystem: "debate",
	Name:      "debates_total",
	Help:      "Completed debates by tenant and status.",
}, []string{"tenant", "status"})

var roundsHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "vex",
	Subsystem: "debate",
	Name:      "rounds",
	Help:      "Rounds per debate.",
	Buckets:   []float64{1, 2, 3, 4, 5},
}, []string{"tenant"})

// Status is the debate's terminal state. Inconclusive is a first-class
// outcome, not an error.
type Status string

const (
	StatusOK           Status = "ok"
	StatusInconclusive Status = "inconclusive"
	StatusFailed       Status = "failed"
)

// Config tunes one engine instance. Zero fields take the documented
// defaults.
type Config struct {
	MaxRounds          int           // default 3
	ChallengeThreshold float64       // Red-accept early exit, default 0.7
	TurnTimeout        time.Duration // per-LLM-call, default 30s
	WallClock          time.Duration // per-debate, default 5m
	Protocol           Protocol      // default Majority
	StrictMode         bool          // never skip Reflection
	BaseMaxTokens      int           // default 1024, scaled by verbosity
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 3
	}
	if c.ChallengeThreshold <= 0 {
		c.ChallengeThreshold = 0.7
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 30 * time.Second
	}
	if c.WallClock <= 0 {
		c.WallClock = 5 * time.Minute
	}
	if c.Protocol == "" {
		c.Protocol = Majority
	}
	if c.BaseMaxTokens <= 0 {
		c.BaseMaxTokens = 1024
	}
	return c
}

// Result is the structured outcome the orchestrator surfaces.
type Result struct {
	Status     Status          `json:"status"`
	Answer     string          `json:"answer,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Transcript *Transcript     `json:"transcript"`
	Outcome    *Outcome        `json:"outcome,omitempty"`
	MerkleRoot merkle.Hash     `json:"merkle_root"`
	Receipt    *anchor.Receipt `json:"anchor_receipt,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Engine runs adversarial debates. A single debate is sequential;
// independent debates may run concurrently over one Engine since all
// mutable state lives in the per-debate transcript and the ledger's
// per-entity locks.
type Engine struct {
	provider llm.Provider
	ledger   *audit.Ledger
	anchors  *anchor.Publisher // nil disables anchoring
	clock    clock.Clock
	cfg      Config
	log      *slog.Logger
	tracer   trace.Tracer
}

// NewEngine wires a debate engine. anchors may be nil.
func NewEngine(provider llm.Provider, ledger *audit.Ledger, anchors *anchor.Publisher, c clock.Clock, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		provider: provider,
		ledger:   ledger,
		anchors:  anchors,
		clock:    c,
		cfg:      cfg.withDefaults(),
		log:      log,
		tracer:   otel.Tracer("vex/debate"),
	}
}

// Run executes the full state machine for task with blue as proposer:
// Propose → Challenge → [Rebut → Challenge]* → Reflect → Consense → Done.
// Every completed turn is audit-appended; cancelled turns are not.
func (e *Engine) Run(ctx context.Context, blue *genome.Agent, task string) (*Result, error) {
	ctx, cancelWall := context.WithTimeout(ctx, e.cfg.WallClock)
	defer cancelWall()

	ctx, span := e.tracer.Start(ctx, "debate.run",
		trace.WithAttributes(
			attribute.String("tenant", blue.TenantID),
			attribute.String("protocol", string(e.cfg.Protocol)),
		))
	defer span.End()

	tenant := blue.TenantID
	red := SpawnShadow(blue, e.clock)
	transcript := NewTranscript(tenant, task)
	result := &Result{Transcript: transcript}

	// Propose.
	answer, seal := e.blueTurn(ctx, transcript, blue, 1, blueSystemPrompt(blue), task)
	if seal != nil {
		return e.seal(ctx, result, blue, *seal)
	}

	var redVotes []Vote
	earlyAccept := false

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		if clock.Cancelled(ctx) {
			return e.seal(ctx, result, blue, sealState{status: StatusInconclusive, reason: "aborted between rounds"})
		}

		vote, sealRed := e.redTurn(ctx, transcript, red, round, task, answer)
		if sealRed != nil {
			return e.seal(ctx, result, blue, *sealRed)
		}
		redVotes = append(redVotes, vote)

		if !vote.IsChallenge && vote.Confidence >= e.cfg.ChallengeThreshold {
			earlyAccept = true
			break
		}
		if round == e.cfg.MaxRounds {
			break
		}

		if clock.Cancelled(ctx) {
			return e.seal(ctx, result, blue, sealState{status: StatusInconclusive, reason: "aborted between turns"})
		}
		rebuttal, sealBlue := e.blueTurn(ctx, transcript, blue, round+1, blueSystemPrompt(blue), RebuttalPrompt(task, answer, vote))
		if sealBlue != nil {
			return e.seal(ctx, result, blue, *sealBlue)
		}
		answer = rebuttal
	}

	// Reflect: unconditional after the round budget; an early Red accept
	// skips it unless strict mode demands the third voice.
	var reflectionBallot *Ballot
	if !earlyAccept || e.cfg.StrictMode {
		lastVote := redVotes[len(redVotes)-1]
		verdict, vote, sealReflect := e.reflectionTurn(ctx, transcript, red, task, transcript.LatestAnswer(), lastVote)
		if sealReflect != nil {
			return e.seal(ctx, result, blue, *sealReflect)
		}
		reflectionBallot = &Ballot{Agrees: verdict != ReflectEscalate, Confidence: vote.Confidence}
	}

	// Consense.
	ballots := []Ballot{{Agrees: true, Confidence: blue.SelfConfidence()}}
	for _, v := range redVotes {
		ballots = append(ballots, Ballot{Agrees: !v.IsChallenge, Confidence: v.Confidence})
	}
	if reflectionBallot != nil {
		ballots = append(ballots, *reflectionBallot)
	}
	outcome := Evaluate(e.cfg.Protocol, ballots)
	result.Outcome = &outcome
	result.Answer = transcript.LatestAnswer()
	result.Confidence = outcome.Confidence

	state := sealState{status: StatusOK}
	if !outcome.Passed {
		state = sealState{status: StatusInconclusive, reason: fmt.Sprintf("consensus not reached under %s", outcome.Protocol)}
	}
	return e.seal(ctx, result, blue, state)
}

// sealState carries the terminal status a debate ends in, set wherever the
// state machine exits.
type sealState struct {
	status Status
	reason string
	err    error
}

// seal finalizes the debate: records the consensus audit event (for every
// terminal path that completed at least one turn), computes the Merkle
// root over the debate's events, and optionally anchors it. The partial
// transcript is sealed even on inconclusive or failed exits.
func (e *Engine) seal(ctx context.Context, result *Result, blue *genome.Agent, state sealState) (*Result, error) {
	result.Status = state.status
	result.Reason = state.reason

	tenant := blue.TenantID
	// The seal itself must survive caller cancellation: use a detached
	// context bounded by the anchor/persistence timeout.
	sealCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if len(result.Transcript.Turns) > 0 || state.status == StatusOK {
		diff := &audit.Diff{Fields: map[string]any{
			"status":     string(state.status),
			"rounds":     result.Transcript.Rounds(),
			"vote_count": 0,
		}}
		if result.Outcome != nil {
			diff.Fields["vote_count"] = result.Outcome.VoteCount
			diff.Fields["passed"] = result.Outcome.Passed
			diff.Fields["protocol"] = string(result.Outcome.Protocol)
		}
		if state.reason != "" {
			diff.Fields["reason"] = state.reason
		}
		if _, err := e.ledger.Append(sealCtx, tenant, result.Transcript.ID, "debate.consense", audit.NewSystemActor("debate-engine"), diff); err != nil {
			e.log.Error("consensus audit append failed", "tenant", tenant, "debate", result.Transcript.ID, "error", err)
			result.Status = StatusFailed
			result.Reason = "audit append failed"
			return result, err
		}
	}

	root, err := e.ledger.MerkleRoot(sealCtx, tenant, result.Transcript.ID)
	if err != nil {
		result.Status = StatusFailed
		result.Reason = "merkle root computation failed"
		return result, err
	}
	result.MerkleRoot = root

	if e.anchors != nil {
		receipt, err := e.anchors.Publish(sealCtx, root, anchor.Metadata{
			Tenant:      tenant,
			Sequence:    int64(len(result.Transcript.Turns)),
			TimestampMs: e.clock.NowMillis(),
			Description: "debate " + result.Transcript.ID,
		})
		if err != nil {
			// Best-effort: the caller-owned retry queue is the recovery path.
			e.log.Warn("anchor publish failed", "tenant", tenant, "debate", result.Transcript.ID, "error", err)
		} else {
			result.Receipt = &receipt
		}
	}

	debatesTotal.WithLabelValues(tenant, string(result.Status)).Inc()
	roundsHistogram.WithLabelValues(tenant).Observe(float64(result.Transcript.Rounds()))
	e.log.Info("debate sealed",
		"tenant", tenant,
		"debate", result.Transcript.ID,
		"status", result.Status,
		"rounds", result.Transcript.Rounds(),
		"root", root.Hex())
	return result, state.err
}

func blueSystemPrompt(blue *genome.Agent) string {
	return fmt.Sprintf("You are %s, a %s. Answer the task directly and concisely. State only what you can support.", blue.Name, blue.Role)
}

// blueTurn runs one Blue completion, audits it, and returns the answer.
// A non-nil sealState means the state machine must exit.
func (e *Engine) blueTurn(ctx context.Context, transcript *Transcript, blue *genome.Agent, round int, system, prompt string) (string, *sealState) {
	resp, state := e.complete(ctx, blue, system, prompt)
	if state != nil {
		return "", state
	}
	turn := Turn{Role: RoleBlue, Round: round, Content: resp.Content}
	transcript.Append(turn)
	if state := e.auditTurn(ctx, transcript, blue, turn); state != nil {
		return "", state
	}
	return resp.Content, nil
}

// redTurn runs one Red challenge and parses its structured vote.
func (e *Engine) redTurn(ctx context.Context, transcript *Transcript, red *genome.Agent, round int, task, answer string) (Vote, *sealState) {
	resp, state := e.complete(ctx, red, redSystemPrompt, RedPrompt(task, answer))
	if state != nil {
		return Vote{}, state
	}
	vote := ParseVote(resp.Content, resp.Structured)
	turn := Turn{Role: RoleRed, Round: round, Content: resp.Content, Vote: &vote}
	transcript.Append(turn)
	if state := e.auditTurn(ctx, transcript, red, turn); state != nil {
		return Vote{}, state
	}
	return vote, nil
}

// reflectionTurn runs the third role over Blue's final answer and Red's
// last critique.
func (e *Engine) reflectionTurn(ctx context.Context, transcript *Transcript, red *genome.Agent, task, answer string, lastVote Vote) (ReflectionVerdict, Vote, *sealState) {
	resp, state := e.complete(ctx, red, reflectionSystemPrompt, ReflectionPrompt(task, answer, lastVote))
	if state != nil {
		return ReflectEscalate, Vote{}, state
	}
	verdict, vote := ParseReflection(resp.Content, resp.Structured)
	turn := Turn{Role: RoleReflection, Round: transcript.Rounds(), Content: resp.Content, Vote: &vote}
	transcript.Append(turn)
	if state := e.auditTurn(ctx, transcript, red, turn); state != nil {
		return ReflectEscalate, Vote{}, state
	}
	return verdict, vote, nil
}

// complete issues one LLM call under the per-turn timeout with bounded
// retry. An in-flight call is awaited on cancellation but its result is
// discarded; the returned sealState tells the state machine how to exit.
func (e *Engine) complete(ctx context.Context, agent *genome.Agent, system, prompt string) (llm.Response, *sealState) {
	turnCtx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	defer cancel()

	resp, err := llm.CompleteWithRetry(turnCtx, e.provider, llm.Request{
		System:        system,
		Prompt:        prompt,
		Params:        agent.Genome.Sampling(),
		BaseMaxTokens: e.cfg.BaseMaxTokens,
	}, e.log)
	if err == nil {
		if clock.Cancelled(ctx) {
			// The call completed but the debate was cancelled mid-flight:
			// discard the result, write no audit event.
			return llm.Response{}, &sealState{status: StatusInconclusive, reason: "cancelled; in-flight turn discarded"}
		}
		return resp, nil
	}
	if vexerr.Is(err, vexerr.Cancelled) || clock.Cancelled(ctx) {
		return llm.Response{}, &sealState{status: StatusInconclusive, reason: "cancelled; in-flight turn discarded"}
	}
	return llm.Response{}, &sealState{status: StatusInconclusive, reason: "llm retries exhausted"}
}

// auditTurn appends one completed turn to the ledger.
func (e *Engine) auditTurn(ctx context.Context, transcript *Transcript, actor *genome.Agent, turn Turn) *sealState {
	diff := &audit.Diff{Fields: map[string]any{"text": turn.Content}}
	if turn.Vote != nil {
		diff.Fields["vote"] = map[string]any{
			"is_challenge": turn.Vote.IsChallenge,
			"confidence":   turn.Vote.Confidence,
		}
	}
	action := fmt.Sprintf("debate.%s.%d", turn.Role, turn.Round)
	if _, err := e.ledger.Append(ctx, transcript.TenantID, transcript.ID, action, audit.NewAgentActor(actor.ID), diff); err != nil {
		if vexerr.Is(err, vexerr.Cancelled) {
			return &sealState{status: StatusInconclusive, reason: "cancelled before turn was audited"}
		}
		return &sealState{status: StatusFailed, reason: "audit append failed", err: err}
	}
	return nil
}

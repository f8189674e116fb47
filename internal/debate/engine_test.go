// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package debate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexlabs/vex/internal/audit"
	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/llm"
	"github.com/vexlabs/vex/internal/storage"
)

func newTestEngine(t *testing.T, mock *llm.Mock, cfg Config) (*Engine, *audit.Ledger, *genome.Agent) {
	t.Helper()
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := clock.New()
	ledger := audit.New(db, c, nil, nil)
	engine := NewEngine(mock, ledger, nil, c, cfg, nil)
	blue := genome.New(genome.Config{Name: "blue", Role: "proposer"}, "t1", c)
	return engine, ledger, blue
}

// S1: uncontested debate — one round, status ok, Merkle root over the
// three audit events (propose, challenge, consense).
func TestUncontestedDebate(t *testing.T) {
	mock := llm.NewMock().
		Respond("4").
		Respond(`{"is_challenge": false, "confidence": 0.9, "reasoning": "arithmetic checks out"}`)

	engine, ledger, blue := newTestEngine(t, mock, Config{})
	result, err := engine.Run(context.Background(), blue, "2+2?")
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "4", result.Answer)
	assert.Equal(t, 1, result.Transcript.Rounds())
	assert.Len(t, result.Transcript.Turns, 2)
	assert.False(t, result.MerkleRoot.IsZero())

	report, err := ledger.VerifyChain(context.Background(), "t1", result.Transcript.ID)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 3, report.Checked)

	root, err := ledger.MerkleRoot(context.Background(), "t1", result.Transcript.ID)
	require.NoError(t, err)
	assert.True(t, result.MerkleRoot.Equal(root))
}

// S2: contested debate under SuperMajority — Blue never revises, Red keeps
// challenging, Reflection escalates: inconclusive, with at least one
// rebuttal in the transcript.
func TestContestedDebateInconclusive(t *testing.T) {
	challenge := `{"is_challenge": true, "confidence": 0.95, "reasoning": "Paris is the capital of France, not Germany"}`
	mock := llm.NewMock().
		Respond("Paris is the capital of Germany").
		Respond(challenge).
		Respond("I maintain that Paris is the capital of Germany").
		Respond(challenge).
		Respond("Paris is the capital of Germany, as I said").
		Respond(challenge).
		Respond(`{"verdict": "escalate", "confidence": 0.9, "reasoning": "proposer refuses the correction"}`)

	engine, _, blue := newTestEngine(t, mock, Config{Protocol: SuperMajority})
	result, err := engine.Run(context.Background(), blue, "What is the capital of Germany?")
	require.NoError(t, err)

	assert.Equal(t, StatusInconclusive, result.Status)
	rebuttals := 0
	for _, turn := range result.Transcript.Turns {
		if turn.Role == RoleBlue && turn.Round > 1 {
			rebuttals++
		}
	}
	assert.GreaterOrEqual(t, rebuttals, 1)
	assert.Equal(t, 3, result.Transcript.Rounds())
}

// A contested debate resolved by revision: Red challenges, Blue revises,
// Red accepts the revision (early accept, no Reflection). Ballots are self,
// one challenge, one accept — 2/3, which passes under the default Majority.
func TestContestedDebateResolvedByRevision(t *testing.T) {
	mock := llm.NewMock().
		Respond("Paris is the capital of Germany").
		Respond(`{"is_challenge": true, "confidence": 0.95, "reasoning": "wrong country"}`).
		Respond("Correction: Berlin is the capital of Germany").
		Respond(`{"is_challenge": false, "confidence": 0.9, "reasoning": "revised answer is correct"}`)

	engine, _, blue := newTestEngine(t, mock, Config{})
	result, err := engine.Run(context.Background(), blue, "What is the capital of Germany?")
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "Correction: Berlin is the capital of Germany", result.Answer)
	assert.Equal(t, 2, result.Transcript.Rounds())
}

func TestStrictModeRunsReflectionOnEarlyAccept(t *testing.T) {
	mock := llm.NewMock().
		Respond("4").
		Respond(`{"is_challenge": false, "confidence": 0.9, "reasoning": "fine"}`).
		Respond(`{"verdict": "affirm", "confidence": 0.8, "reasoning": "sound"}`)

	engine, _, blue := newTestEngine(t, mock, Config{StrictMode: true})
	result, err := engine.Run(context.Background(), blue, "2+2?")
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	var sawReflection bool
	for _, turn := range result.Transcript.Turns {
		if turn.Role == RoleReflection {
			sawReflection = true
		}
	}
	assert.True(t, sawReflection)
}

func TestReflectionRevisionBecomesAnswer(t *testing.T) {
	mock := llm.NewMock().
		Respond("Paris is the capital of Germany").
		Respond(`{"is_challenge": true, "confidence": 0.6, "reasoning": "wrong country"}`).
		Respond("Paris is the capital of Germany still").
		Respond(`{"is_challenge": true, "confidence": 0.6, "reasoning": "still wrong"}`).
		Respond("Paris is the capital of Germany, final").
		Respond(`{"is_challenge": true, "confidence": 0.6, "reasoning": "still wrong"}`).
		Respond(`{"verdict": "revise", "confidence": 0.9, "reasoning": "the challenger is right", "revision": "Berlin is the capital of Germany"}`)

	engine, _, blue := newTestEngine(t, mock, Config{})
	result, err := engine.Run(context.Background(), blue, "What is the capital of Germany?")
	require.NoError(t, err)
	assert.Equal(t, "Berlin is the capital of Germany", result.Answer)
}

func TestProviderExhaustionSealsInconclusive(t *testing.T) {
	mock := llm.NewMock() // empty script: every call errors
	engine, _, blue := newTestEngine(t, mock, Config{})

	result, err := engine.Run(context.Background(), blue, "2+2?")
	require.NoError(t, err)
	assert.Equal(t, StatusInconclusive, result.Status)
	assert.Empty(t, result.Transcript.Turns)
}

func TestCancellationSealsWithoutAuditingTurn(t *testing.T) {
	mock := llm.NewMock().Respond("unused")
	engine, ledger, blue := newTestEngine(t, mock, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := engine.Run(ctx, blue, "2+2?")
	require.NoError(t, err)
	assert.Equal(t, StatusInconclusive, result.Status)
	assert.Empty(t, result.Transcript.Turns)

	report, err := ledger.VerifyChain(context.Background(), "t1", result.Transcript.ID)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
}

func TestWallClockTimeoutSealsPartialTranscript(t *testing.T) {
	mock := llm.NewMock().
		Respond("slow answer").
		Respond(`{"is_challenge": true, "confidence": 0.9, "reasoning": "challenge"}`)

	engine, _, blue := newTestEngine(t, mock, Config{WallClock: time.Nanosecond})
	result, err := engine.Run(context.Background(), blue, "2+2?")
	require.NoError(t, err)
	assert.Equal(t, StatusInconclusive, result.Status)
}

func TestShadowInvertsSkepticism(t *testing.T) {
	c := clock.NewFixed(time.Unix(1700000000, 0))
	blue := genome.New(genome.Config{Name: "blue", Role: "proposer"}, "t1", c)
	blue.Genome.Set(genome.TraitSkepticism, 0.05)
	blue.Genome.Set(genome.TraitPrecision, 0.55)

	red := SpawnShadow(blue, c)
	assert.Greater(t, red.Genome.Skepticism, blue.Genome.Skepticism)
	assert.Greater(t, red.Genome.Precision, blue.Genome.Precision)
	assert.Equal(t, blue.Generation+1, red.Generation)
	assert.Equal(t, blue.ID, red.ParentID)
}

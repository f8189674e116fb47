// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexlabs/vex/internal/audit"
	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/debate"
	"github.com/vexlabs/vex/internal/evolution"
	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/llm"
	"github.com/vexlabs/vex/internal/memory"
	"github.com/vexlabs/vex/internal/storage"
)

func newTestOrchestrator(t *testing.T, mock *llm.Mock) (*Orchestrator, *audit.Ledger, *storage.DB) {
	t.Helper()
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := clock.New()
	ledger := audit.New(db, c, nil, nil)
	mem, err := memory.NewStore(memory.Config{Decay: memory.DecayExponential, Clock: c, DB: db})
	require.NoError(t, err)
	engine := debate.NewEngine(mock, ledger, nil, c, debate.Config{}, nil)
	loop := evolution.NewLoop(db, c, nil, 0, nil)
	agents := genome.NewStore(db)

	o := New(agents, mem, engine, loop, ledger, nil, c, Config{}, nil)
	return o, ledger, db
}

func acceptScript(mock *llm.Mock, answer string) {
	mock.Respond(answer).
		Respond(`{"is_challenge": false, "confidence": 0.9, "reasoning": "sound"}`)
}

func TestExecuteEndToEnd(t *testing.T) {
	mock := llm.NewMock()
	acceptScript(mock, "4")
	o, ledger, _ := newTestOrchestrator(t, mock)

	result, err := o.Execute(context.Background(), "t1", "calculate 2+2")
	require.NoError(t, err)

	assert.Equal(t, debate.StatusOK, result.Status)
	assert.Equal(t, "4", result.Answer)
	assert.Equal(t, "arithmetic", result.TaskClass)
	assert.NotEmpty(t, result.AgentID)
	assert.Greater(t, result.Fitness, 0.0)
	assert.False(t, result.MerkleRoot.IsZero())

	// Tenant chain verifies: debate turns plus the final orchestrator event.
	report, err := ledger.VerifyChain(context.Background(), "t1", "")
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.GreaterOrEqual(t, report.Checked, 4)
}

func TestExecuteValidatesInput(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, llm.NewMock())
	_, err := o.Execute(context.Background(), "", "task")
	require.Error(t, err)
	_, err = o.Execute(context.Background(), "t1", "")
	require.Error(t, err)
}

func TestExecuteReusesLineage(t *testing.T) {
	mock := llm.NewMock()
	acceptScript(mock, "first answer")
	acceptScript(mock, "second answer")
	o, _, db := newTestOrchestrator(t, mock)
	ctx := context.Background()

	first, err := o.Execute(ctx, "t1", "what is the capital of France")
	require.NoError(t, err)
	second, err := o.Execute(ctx, "t1", "what is the capital of Spain")
	require.NoError(t, err)
	assert.NotEqual(t, first.AgentID, second.AgentID)

	agents := genome.NewStore(db)
	child, err := agents.Get(ctx, "t1", second.AgentID)
	require.NoError(t, err)
	assert.Equal(t, 1, child.Generation)
	assert.Equal(t, first.AgentID, child.ParentID)
}

func TestExecuteManyJoinsAllTasks(t *testing.T) {
	// Concurrent debates dequeue mock responses in arrival order, so every
	// scripted response must be valid for either role: an accepting vote
	// parses as Red's structured accept and doubles as Blue's answer text.
	mock := llm.NewMock()
	for i := 0; i < 6; i++ {
		mock.Respond(`{"is_challenge": false, "confidence": 0.9, "reasoning": "sound"}`)
	}
	o, _, _ := newTestOrchestrator(t, mock)

	results, errs := o.ExecuteMany(context.Background(), "t1", []string{
		"calculate 1+1", "calculate 2+2", "calculate 3+3",
	})
	require.Len(t, results, 3)
	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, debate.StatusOK, results[i].Status)
	}
}

func TestClassifyTask(t *testing.T) {
	assert.Equal(t, "arithmetic", ClassifyTask("calculate 2+2"))
	assert.Equal(t, "coding", ClassifyTask("fix the bug in this function"))
	assert.Equal(t, "factual", ClassifyTask("what is the capital of Germany"))
	assert.Equal(t, "reasoning", ClassifyTask("explain why the sky is blue"))
	assert.Equal(t, "general", ClassifyTask("hello there"))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evolution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/storage"
)

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3}, []float64{6, 4, 2}), 1e-9)
	assert.Zero(t, Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})) // zero variance
	assert.Zero(t, Pearson([]float64{1}, []float64{1}))             // too few points
	assert.Zero(t, Pearson([]float64{1, 2}, []float64{1}))          // length mismatch
}

func perfectCorrelationRecords(n int) []ExperimentRecord {
	records := make([]ExperimentRecord, n)
	for i := range records {
		exploration := 0.1 + 1.4*float64(i)/float64(n-1)
		records[i] = ExperimentRecord{
			Traits: map[string]float64{
				genome.TraitExploration: exploration,
				genome.TraitPrecision:   0.75,
				genome.TraitCreativity:  0.5,
				genome.TraitSkepticism:  0.25,
				genome.TraitVerbosity:   1.25,
			},
			TaskClass:      "arithmetic",
			OverallFitness: (exploration - 0.1) / 1.4,
			TenantID:       "t1",
		}
	}
	return records
}

// S5: 100 experiments where exploration perfectly correlates with fitness.
// Exactly one rule, affected_traits = ["exploration"], confidence at least
// the batching-implied floor.
func TestPerfectCorrelationYieldsSingleRule(t *testing.T) {
	candidates := GenerateCandidates(perfectCorrelationRecords(100))
	require.Len(t, candidates, 1)
	assert.Equal(t, genome.TraitExploration, candidates[0].Trait)
	assert.InDelta(t, 1.0, candidates[0].Correlation, 1e-9)

	rules := Reflect(context.Background(), nil, candidates, nil, nil)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{genome.TraitExploration}, rules[0].AffectedTraits)
	assert.GreaterOrEqual(t, rules[0].Confidence, minCorrelation)
	assert.Contains(t, rules[0].Description, "increase exploration")
}

func TestCandidateRequiresSampleSize(t *testing.T) {
	assert.Empty(t, GenerateCandidates(perfectCorrelationRecords(20)))
}

func TestCandidateRequiresCorrelationMagnitude(t *testing.T) {
	records := perfectCorrelationRecords(50)
	// Scramble fitness so no trait correlates.
	for i := range records {
		records[i].OverallFitness = float64(i%2)
	}
	assert.Empty(t, GenerateCandidates(records))
}

func TestCandidateAdjustmentDirection(t *testing.T) {
	up := Candidate{Trait: genome.TraitExploration, Correlation: 0.8}
	assert.Greater(t, up.Adjustment().Delta, 0.0)
	down := Candidate{Trait: genome.TraitExploration, Correlation: -0.8}
	assert.Less(t, down.Adjustment().Delta, 0.0)
}

func TestLoopBatchThresholdTriggersSynthesis(t *testing.T) {
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	c := clock.NewFixed(time.Unix(1700000000, 0))
	loop := NewLoop(db, c, nil, 30, nil)

	records := perfectCorrelationRecords(30)
	var rules []OptimizationRule
	for i, rec := range records {
		c.Advance(time.Second)
		got, err := loop.Record(context.Background(), rec)
		require.NoError(t, err)
		if i < len(records)-1 {
			assert.Empty(t, got)
		} else {
			rules = got
		}
	}
	require.Len(t, rules, 1)
	assert.Equal(t, "t1", rules[0].TenantID)

	applicable, err := loop.Rules().Applicable(context.Background(), "t1", "arithmetic")
	require.NoError(t, err)
	require.Len(t, applicable, 1)

	other, err := loop.Rules().Applicable(context.Background(), "t1", "translation")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRulesOrderedByConfidenceThenRecency(t *testing.T) {
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	c := clock.NewFixed(time.Unix(1700000000, 0))
	store := NewRuleStore(db, c)
	ctx := context.Background()

	_, err = store.Save(ctx, OptimizationRule{Description: "low", Confidence: 0.3, TenantID: "t1"})
	require.NoError(t, err)
	c.Advance(time.Minute)
	_, err = store.Save(ctx, OptimizationRule{Description: "high-old", Confidence: 0.9, TenantID: "t1"})
	require.NoError(t, err)
	c.Advance(time.Minute)
	_, err = store.Save(ctx, OptimizationRule{Description: "high-new", Confidence: 0.9, TenantID: "t1"})
	require.NoError(t, err)

	rules, err := store.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "high-new", rules[0].Description)
	assert.Equal(t, "high-old", rules[1].Description)
	assert.Equal(t, "low", rules[2].Description)
}

func TestHeuristicEvaluator(t *testing.T) {
	h := HeuristicEvaluator{MaxRounds: 3}

	components, overall := h.Evaluate(Evaluation{
		Task:      "capital of France",
		Answer:    "the capital of France is Paris",
		Reference: "the capital of France is Paris",
		Rounds:    1,
	})
	assert.InDelta(t, 1.0, components["correctness"], 1e-9)
	assert.InDelta(t, 1.0, components["efficiency"], 1e-9)
	assert.Greater(t, overall, 0.8)

	components, _ = h.Evaluate(Evaluation{
		Answer:    "completely unrelated words here",
		Reference: "the capital of France is Paris",
		Rounds:    4,
	})
	assert.Zero(t, components["correctness"])
	assert.Zero(t, components["efficiency"])

	// Novelty drops when the answer repeats recent output.
	components, _ = h.Evaluate(Evaluation{
		Answer: "same words again",
		Recent: []string{"same words again"},
		Rounds: 1,
	})
	assert.Zero(t, components["novelty"])
}

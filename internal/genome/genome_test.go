// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package genome

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexlabs/vex/internal/clock"
)

type seededRand struct{ r *rand.Rand }

func newSeededRand(seed uint64) *seededRand {
	return &seededRand{r: rand.New(rand.NewPCG(seed, seed))}
}

func (s *seededRand) Float64() float64     { return s.r.Float64() }
func (s *seededRand) NormFloat64() float64 { return s.r.NormFloat64() }
func (s *seededRand) IntN(n int) int       { return s.r.IntN(n) }

func assertInRange(t *testing.T, g Genome) {
	t.Helper()
	for _, name := range TraitNames {
		v, ok := g.Get(name)
		require.True(t, ok)
		r := Ranges[name]
		assert.GreaterOrEqual(t, v, r.Min, "trait %s below range", name)
		assert.LessOrEqual(t, v, r.Max, "trait %s above range", name)
	}
}

func TestDefaultGenomeIsMidpoint(t *testing.T) {
	g := Default()
	assert.InDelta(t, 0.8, g.Exploration, 1e-9)
	assert.InDelta(t, 0.75, g.Precision, 1e-9)
	assert.InDelta(t, 0.5, g.Creativity, 1e-9)
	assert.InDelta(t, 0.25, g.Skepticism, 1e-9)
	assert.InDelta(t, 1.25, g.Verbosity, 1e-9)
}

func TestSetClampsToRange(t *testing.T) {
	var g Genome
	g.Set(TraitExploration, 99)
	assert.Equal(t, 1.5, g.Exploration)
	g.Set(TraitExploration, -99)
	assert.Equal(t, 0.1, g.Exploration)
	g.Set(TraitSkepticism, 0.7)
	assert.Equal(t, 0.5, g.Skepticism)
}

// Property 4: every trait of every descendant stays within its range across
// arbitrary crossover/mutation sequences.
func TestDescendantsStayInRange(t *testing.T) {
	rng := newSeededRand(42)
	c := clock.NewFixed(time.Unix(1700000000, 0))

	root := New(Config{Name: "root", Role: "proposer"}, "t1", c)
	mate := New(Config{Name: "mate", Role: "proposer"}, "t1", c)
	pool := []*Agent{root, mate}

	for i := 0; i < 500; i++ {
		p := TournamentSelect(pool, 3, rng)
		m := TournamentSelect(pool, 3, rng)
		child := SpawnChild(p, m, Config{}, c, rng)
		assertInRange(t, child.Genome)
		assert.Equal(t, p.Generation+1, child.Generation)
		child.Fitness = rng.Float64()
		pool = append(pool, child)
		if len(pool) > 50 {
			pool = pool[len(pool)-50:]
		}
	}
}

func TestApplyAdjustmentsClamps(t *testing.T) {
	c := clock.NewFixed(time.Unix(1700000000, 0))
	a := New(Config{Name: "a", Role: "r"}, "t1", c)
	a.ApplyAdjustments([]Adjustment{
		{Trait: TraitExploration, Delta: 10},
		{Trait: TraitPrecision, Delta: -10},
		{Trait: "nonexistent", Delta: 1},
	})
	assert.Equal(t, 1.5, a.Genome.Exploration)
	assert.Equal(t, 0.5, a.Genome.Precision)
	assertInRange(t, a.Genome)
}

func TestSamplingMapsTraitsDirectly(t *testing.T) {
	g := Genome{Exploration: 1.2, Precision: 0.9, Creativity: 0.3, Skepticism: 0.1, Verbosity: 2.0}
	p := g.Sampling()
	assert.Equal(t, 1.2, p.Temperature)
	assert.Equal(t, 0.9, p.TopP)
	assert.Equal(t, 0.3, p.PresencePenalty)
	assert.Equal(t, 0.1, p.FrequencyPenalty)
	assert.Equal(t, 2048, p.MaxTokens(1024))
}

func TestSelfConfidenceFloor(t *testing.T) {
	a := &Agent{Fitness: 0.1}
	assert.Equal(t, 0.5, a.SelfConfidence())
	a.Fitness = 0.8
	assert.Equal(t, 0.8, a.SelfConfidence())
	a.Fitness = 1.7
	assert.Equal(t, 1.0, a.SelfConfidence())
}

func TestTournamentSelectPrefersFitness(t *testing.T) {
	rng := newSeededRand(7)
	c := clock.NewFixed(time.Unix(1700000000, 0))
	weak := New(Config{Name: "weak", Role: "r"}, "t1", c)
	strong := New(Config{Name: "strong", Role: "r"}, "t1", c)
	strong.Fitness = 1.0
	pool := []*Agent{weak, strong}

	wins := 0
	for i := 0; i < 100; i++ {
		if TournamentSelect(pool, 3, rng) == strong {
			wins++
		}
	}
	// With tournament size 3 over two candidates, the fitter one loses only
	// when all three draws pick the weaker agent first and never the strong.
	assert.Greater(t, wins, 80)
}

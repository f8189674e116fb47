// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package genome

import (
	"math/rand/v2"
)

const (
	// mutationRate is the per-trait probability of post-crossover mutation.
	mutationRate = 0.1
	// mutationSigmaFraction scales Gaussian noise to 5% of the trait range.
	mutationSigmaFraction = 0.05
	// defaultTournamentSize is the reproduction-selection tournament size.
	defaultTournamentSize = 3
)

// Rand is the subset of math/rand/v2 the operators draw from, injectable so
// tests can run deterministic sequences.
type Rand interface {
	Float64() float64
	NormFloat64() float64
	IntN(n int) int
}

type stdRand struct{}

func (stdRand) Float64() float64     { return rand.Float64() }
func (stdRand) NormFloat64() float64 { return rand.NormFloat64() }
func (stdRand) IntN(n int) int       { return rand.IntN(n) }

// DefaultRand is the process-wide random source.
var DefaultRand Rand = stdRand{}

// Crossover combines two parents trait by trait: with probability 0.5 the
// child takes one parent's value uniformly, otherwise the arithmetic mean.
// The result is clamped, though crossover of in-range parents cannot leave
// the range.
func Crossover(a, b Genome, rng Rand) Genome {
	if rng == nil {
		rng = DefaultRand
	}
	var child Genome
	for _, name := range TraitNames {
		av, _ := a.Get(name)
		bv, _ := b.Get(name)
		var v float64
		if rng.Float64() < 0.5 {
			if rng.Float64() < 0.5 {
				v = av
			} else {
				v = bv
			}
		} else {
			v = (av + bv) / 2
		}
		child.Set(name, v)
	}
	return child
}

// Mutate perturbs each trait with probability 0.1 by Gaussian noise with
// σ = 0.05·range, clamping the result.
func Mutate(g Genome, rng Rand) Genome {
	if rng == nil {
		rng = DefaultRand
	}
	out := g
	for _, name := range TraitNames {
		if rng.Float64() >= mutationRate {
			continue
		}
		r := Ranges[name]
		v, _ := out.Get(name)
		out.Set(name, v+rng.NormFloat64()*mutationSigmaFraction*r.Width())
	}
	return out
}

// TournamentSelect picks the fittest of `size` uniformly drawn candidates.
// size <= 0 uses the default of 3. The pool must be non-empty.
func TournamentSelect(pool []*Agent, size int, rng Rand) *Agent {
	if len(pool) == 0 {
		return nil
	}
	if rng == nil {
		rng = DefaultRand
	}
	if size <= 0 {
		size = defaultTournamentSize
	}
	best := pool[rng.IntN(len(pool))]
	for i := 1; i < size; i++ {
		candidate := pool[rng.IntN(len(pool))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

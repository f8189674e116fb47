// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evolution

import (
	"strings"
)

// Evaluation is the input to fitness scoring: what the agent produced and
// the context it produced it in.
type Evaluation struct {
	Task      string
	Answer    string
	Reference string   // expected outcome, empty when unknown
	Rounds    int      // debate rounds consumed
	Recent    []string // the agent's recent episode texts, for novelty
	Consensus float64  // consensus confidence, 0 when inconclusive
}

// FitnessEvaluator computes the fitness component map stored on an
// experiment record plus the combined overall scalar.
type FitnessEvaluator interface {
	Evaluate(ev Evaluation) (components map[string]float64, overall float64)
}

// HeuristicEvaluator is the default evaluator: correctness from answer/
// reference token overlap, efficiency from turns-to-consensus, novelty
// from lexical distance to the agent's own recent output.
type HeuristicEvaluator struct {
	// MaxRounds normalizes the efficiency score; default 3.
	MaxRounds int
}

func (h HeuristicEvaluator) Evaluate(ev Evaluation) (map[string]float64, float64) {
	maxRounds := h.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}

	correctness := ev.Consensus
	if ev.Reference != "" {
		correctness = jaccard(tokens(ev.Answer), tokens(ev.Reference))
	}

	efficiency := 1.0
	if ev.Rounds > 1 {
		efficiency = 1.0 - float64(ev.Rounds-1)/float64(maxRounds)
		if efficiency < 0 {
			efficiency = 0
		}
	}

	novelty := 1.0
	if len(ev.Recent) > 0 {
		answerTokens := tokens(ev.Answer)
		var maxOverlap float64
		for _, prior := range ev.Recent {
			if o := jaccard(answerTokens, tokens(prior)); o > maxOverlap {
				maxOverlap = o
			}
		}
		novelty = 1 - maxOverlap
	}

	components := map[string]float64{
		"correctness": correctness,
		"efficiency":  efficiency,
		"novelty":     novelty,
	}
	// Correctness dominates; efficiency and novelty refine.
	overall := 0.6*correctness + 0.25*efficiency + 0.15*novelty
	return components, clampUnit(overall)
}

func tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(f, ".,!?;:\"'()")] = struct{}{}
	}
	delete(out, "")
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

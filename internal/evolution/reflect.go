// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/llm"
)

// reflectionTemplate asks the collaborator to refine statistical
// candidates into natural-language rules with confidence scores.
var reflectionTemplate = prompts.NewPromptTemplate(
	`You are refining optimization rules for AI agent behavior.

STATISTICAL CANDIDATES (correlation between a trait and fitness):
{{.candidates}}

REPRESENTATIVE EXPERIMENTS (trait vector, task class, overall fitness):
{{.experiments}}

Refine the candidates into concise rules. Merge candidates that describe
the same underlying pattern; drop candidates the experiments contradict.

Respond ONLY with a JSON object:
{"rules": [{"description": "<rule>", "affected_traits": ["<trait>"], "confidence": <0.0-1.0>}]}`,
	[]string{"candidates", "experiments"},
)

const reflectionSystem = "You are an analyst distilling statistical evidence into behavioral rules. Output only JSON."

// reflectSampleSize bounds how many experiments ride along in the prompt.
const reflectSampleSize = 10

type reflectedRule struct {
	Description    string   `json:"description"`
	AffectedTraits []string `json:"affected_traits"`
	Confidence     float64  `json:"confidence"`
}

// Reflect sends the candidates plus a representative experiment sample to
// the LLM collaborator and returns refined rules. On any provider or parse
// failure the statistical candidates are returned unrefined — reflection
// improves rules, it never gates them.
func Reflect(ctx context.Context, provider llm.Provider, candidates []Candidate, sample []ExperimentRecord, log *slog.Logger) []OptimizationRule {
	if log == nil {
		log = slog.Default()
	}
	statistical := rulesFromCandidates(candidates)
	if provider == nil || len(candidates) == 0 {
		return statistical
	}

	var candidateLines, experimentLines strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&candidateLines, "- %s (confidence %.2f)\n", c.Description(), c.Confidence())
	}
	if len(sample) > reflectSampleSize {
		sample = sample[:reflectSampleSize]
	}
	for _, rec := range sample {
		traits, _ := json.Marshal(rec.Traits)
		fmt.Fprintf(&experimentLines, "- class=%s fitness=%.2f traits=%s\n", rec.TaskClass, rec.OverallFitness, traits)
	}

	prompt, err := reflectionTemplate.Format(map[string]any{
		"candidates":  candidateLines.String(),
		"experiments": experimentLines.String(),
	})
	if err != nil {
		log.Warn("reflection template format failed", "error", err)
		return statistical
	}

	params := genome.Default().Sampling()
	params.Temperature = 0.2
	resp, err := llm.CompleteWithRetry(ctx, provider, llm.Request{
		System: reflectionSystem,
		Prompt: prompt,
		Params: params,
	}, log)
	if err != nil || resp.Structured == nil {
		log.Warn("reflective stage unavailable, keeping statistical rules", "error", err)
		return statistical
	}

	var payload struct {
		Rules []reflectedRule `json:"rules"`
	}
	if err := json.Unmarshal(resp.Structured, &payload); err != nil || len(payload.Rules) == 0 {
		return statistical
	}

	// Refined rules inherit adjustments from the candidates covering the
	// same traits; a refined rule naming an unknown trait is dropped.
	byTrait := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byTrait[c.Trait] = c
	}
	var refined []OptimizationRule
	for _, r := range payload.Rules {
		var adjustments []genome.Adjustment
		var traits []string
		var sourceCount int
		taskClass := ""
		for _, trait := range r.AffectedTraits {
			c, ok := byTrait[trait]
			if !ok {
				continue
			}
			adjustments = append(adjustments, c.Adjustment())
			traits = append(traits, trait)
			sourceCount += c.SampleSize
			taskClass = c.TaskClass
		}
		if len(traits) == 0 {
			continue
		}
		refined = append(refined, OptimizationRule{
			Description:    r.Description,
			AffectedTraits: traits,
			Adjustments:    adjustments,
			TaskClass:      taskClass,
			Confidence:     clampUnit(r.Confidence),
			SourceCount:    sourceCount,
		})
	}
	if len(refined) == 0 {
		return statistical
	}
	return refined
}

func rulesFromCandidates(candidates []Candidate) []OptimizationRule {
	rules := make([]OptimizationRule, 0, len(candidates))
	for _, c := range candidates {
		rules = append(rules, OptimizationRule{
			Description:    c.Description(),
			AffectedTraits: []string{c.Trait},
			Adjustments:    []genome.Adjustment{c.Adjustment()},
			TaskClass:      c.TaskClass,
			Confidence:     c.Confidence(),
			SourceCount:    c.SampleSize,
		})
	}
	return rules
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

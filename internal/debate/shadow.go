// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package debate

import (
	"fmt"
	"strings"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/genome"
)

// SpawnShadow derives the Red challenger from Blue: same lineage, but with
// skepticism and precision mirrored within their ranges (a Blue near the
// bottom of a range yields a Red near the top, and the reverse) and
// exploration held to the lower quarter of its range — the inverted
// sampling profile that makes Red a focused fault-finder instead of a
// second proposer.
func SpawnShadow(blue *genome.Agent, c clock.Clock) *genome.Agent {
	red := genome.SpawnChild(blue, blue, genome.Config{
		Name: blue.Name + "-shadow",
		Role: "adversarial challenger",
	}, c, nil)

	g := blue.Genome
	skepRange := genome.Ranges[genome.TraitSkepticism]
	precRange := genome.Ranges[genome.TraitPrecision]
	explRange := genome.Ranges[genome.TraitExploration]
	// Mirror skepticism and precision within range; keep exploration low.
	red.Genome.Set(genome.TraitSkepticism, skepRange.Max-(g.Skepticism-skepRange.Min))
	red.Genome.Set(genome.TraitPrecision, precRange.Max-(g.Precision-precRange.Min))
	red.Genome.Set(genome.TraitExploration, explRange.Min+(explRange.Max-g.Exploration)*0.25)
	return red
}

// redSystemPrompt enumerates the failure categories Red hunts for and the
// structured vote it must emit.
const redSystemPrompt = `You are a critical challenger. Examine the proposer's answer for these failure categories:
- unsupported claim: assertions with no backing evidence
- logical gap: conclusions that do not follow from premises
- hallucination: invented facts, sources, or entities
- assumption chain: stacked unstated assumptions

Respond ONLY with a JSON object:
{"is_challenge": <bool>, "confidence": <0.0-1.0>, "reasoning": "<why>", "suggested_revision": "<optional corrected answer>"}

Set is_challenge=true only when you found a genuine defect. If the answer is sound, say so with is_challenge=false.`

// RedPrompt builds the challenge request for the given claim, seeded with
// heuristic areas of interest so the model scrutinizes the likeliest
// weak points first.
func RedPrompt(task, claim string) string {
	var guidance string
	if issues := DetectIssues(claim); len(issues) > 0 {
		guidance = "Pay special attention to: " + strings.Join(issues, "; ")
	} else {
		guidance = "Look for hidden assumptions, unstated premises, and edge cases."
	}
	return fmt.Sprintf("TASK:\n%s\n\nPROPOSED ANSWER:\n%s\n\n%s", task, claim, guidance)
}

// RebuttalPrompt asks Blue to address Red's challenge.
func RebuttalPrompt(task, claim string, challenge Vote) string {
	return fmt.Sprintf(
		"TASK:\n%s\n\nYOUR PREVIOUS ANSWER:\n%s\n\nA challenger raised this objection (confidence %.2f):\n%s\n\n"+
			"Either defend your answer with evidence or produce a corrected answer. Respond with the answer only.",
		task, claim, challenge.Confidence, challenge.Reasoning)
}

// DetectIssues runs the pattern-based heuristic pass over a claim. The
// result seeds Red's prompt; the keyword fallback for an unparseable vote
// is heuristicVote's separate marker lists, not this pass.
func DetectIssues(claim string) []string {
	var issues []string
	lower := strings.ToLower(claim)

	if containsAny(lower, "always", "never", "all ", "none ") {
		issues = append(issues, "universal claims ('always'/'never') that may not hold for edge cases")
	}
	if containsAny(lower, "many", "some", "significant") {
		issues = append(issues, "vague quantifiers that may hide missing data")
	}
	if containsAny(lower, "because", "therefore") {
		issues = append(issues, "causal links that may be logical leaps")
	}
	if containsAny(lower, "%", "percent") {
		issues = append(issues, "statistics that may be unsourced")
	}
	if containsAny(lower, "obvious", "clearly", "undeniable", "proven") {
		issues = append(issues, "certainty language that assumes its own conclusion")
	}
	return issues
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

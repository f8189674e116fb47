// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package debate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReflectionVerdict is what the third role concluded after re-reading both
// sides. Without Reflection, Blue and Red converge toward Blue's position
// under most protocols; this role exists to break that bias.
type ReflectionVerdict string

const (
	ReflectAffirm   ReflectionVerdict = "affirm"
	ReflectRevise   ReflectionVerdict = "revise"
	ReflectEscalate ReflectionVerdict = "escalate"
)

const reflectionSystemPrompt = `You are a neutral reviewer. You will read a task, a proposer's final answer, and a challenger's critique. Judge them independently; do not default to agreeing with either side.

Respond ONLY with a JSON object:
{"verdict": "affirm" | "revise" | "escalate", "confidence": <0.0-1.0>, "reasoning": "<why>", "revision": "<corrected answer, required when verdict is revise>"}

- affirm: the proposer's answer stands as-is
- revise: the answer needs the correction you provide
- escalate: neither side resolved the question; a human should decide`

// ReflectionPrompt builds the request for the reflection turn.
func ReflectionPrompt(task, answer string, challenge Vote) string {
	return fmt.Sprintf(
		"TASK:\n%s\n\nPROPOSER'S FINAL ANSWER:\n%s\n\nCHALLENGER'S CRITIQUE (is_challenge=%v, confidence %.2f):\n%s",
		task, answer, challenge.IsChallenge, challenge.Confidence, challenge.Reasoning)
}

type reflectionPayload struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Revision   string  `json:"revision"`
}

// ParseReflection extracts the verdict, converting it into a ballot-ready
// vote: affirm agrees, revise agrees with the revision attached, escalate
// counts against the answer.
func ParseReflection(content string, structured json.RawMessage) (ReflectionVerdict, Vote) {
	if structured != nil {
		var p reflectionPayload
		if err := json.Unmarshal(structured, &p); err == nil && p.Verdict != "" {
			verdict := ReflectionVerdict(strings.ToLower(p.Verdict))
			switch verdict {
			case ReflectAffirm, ReflectRevise, ReflectEscalate:
				return verdict, Vote{
					IsChallenge:       verdict == ReflectEscalate,
					Confidence:        clamp01(p.Confidence),
					Reasoning:         p.Reasoning,
					SuggestedRevision: p.Revision,
				}
			}
		}
	}
	// Heuristic fallback mirrors Red's: capped confidence, lean on keywords.
	lower := strings.ToLower(content)
	verdict := ReflectAffirm
	if containsAny(lower, "escalate", "cannot determine", "human") {
		verdict = ReflectEscalate
	} else if containsAny(lower, "revise", "correction", "instead") {
		verdict = ReflectRevise
	}
	return verdict, Vote{
		IsChallenge: verdict == ReflectEscalate,
		Confidence:  fallbackConfidenceCap,
		Reasoning:   "keyword heuristic fallback: structured reflection unavailable",
	}
}

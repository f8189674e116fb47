// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/vexlabs/vex/internal/genome"
)

// Summarizer satisfies episodic memory's compression collaborator by
// consolidating episode texts through the provider.
type Summarizer struct {
	provider Provider
}

// NewSummarizer wraps a provider.
func NewSummarizer(provider Provider) *Summarizer { return &Summarizer{provider: provider} }

const summarizeSystem = "You are a memory consolidation system. Summarize episodic " +
	"memories into a coherent record that preserves the most important facts, " +
	"decisions, and context. Output only the summary."

// Summarize compresses texts at roughly ratio:1.
func (s *Summarizer) Summarize(ctx context.Context, texts []string, ratio int) (string, error) {
	var sb strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&sb, "MEMORY %d:\n%s\n\n", i+1, t)
	}
	totalWords := len(strings.Fields(sb.String()))
	target := totalWords / max(ratio, 1)
	if target < 20 {
		target = 20
	}
	prompt := fmt.Sprintf("Consolidate the following memories into at most %d words.\n\n%s", target, sb.String())

	params := genome.Default().Sampling()
	params.Temperature = 0.3
	resp, err := s.provider.Complete(ctx, Request{System: summarizeSystem, Prompt: prompt, Params: params})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

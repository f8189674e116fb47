// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the capability surface the debate engine consumes
// (C6) plus the concrete providers and the transparent wrappers (rate
// limiter, circuit breaker, retry) that sit in front of them. The core
// depends only on Provider; everything else here is a collaborator detail.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/vexlabs/vex/internal/genome"
)

// Request carries one completion call: system prompt, user prompt, and the
// sampling parameters derived from the active genome.
type Request struct {
	System        string
	Prompt        string
	Params        genome.SamplingParams
	BaseMaxTokens int // scaled by the genome's verbosity multiplier
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed LLM call. Structured is non-nil when the content,
// or the span from its first '{' to its last '}', parses as a JSON object.
type Response struct {
	Content    string
	Usage      Usage
	Structured json.RawMessage
}

// Provider is the minimum contract: complete a request, probe availability.
// Providers, retries, caching, and circuit breaking live behind this
// surface; the debate engine never sees past it.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Available(ctx context.Context) bool
	Name() string
}

// extractStructured attempts to parse the response content, then the span
// from its first '{' to its last '}', as a JSON object. Returns nil when
// neither parses.
func extractStructured(content string) json.RawMessage {
	candidates := []string{content}
	if start := strings.IndexByte(content, '{'); start >= 0 {
		if end := strings.LastIndexByte(content, '}'); end > start {
			candidates = append(candidates, content[start:end+1])
		}
	}
	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err == nil {
			return json.RawMessage(c)
		}
	}
	return nil
}

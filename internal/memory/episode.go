// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"fmt"
	"time"
)

// Episode is an immutable memory record. Content and importance never
// change after insert; only horizon placement, access count, and last
// access move.
type Episode struct {
	ID           string    `json:"id"`
	TimestampMs  int64     `json:"timestamp_ms"`
	Content      string    `json:"content"`
	Importance   float64   `json:"importance"`
	Horizon      Horizon   `json:"horizon"`
	AccessCount  int       `json:"access_count"`
	LastAccessMs int64     `json:"last_access_ms"`
	Embedding    []float32 `json:"embedding,omitempty"`
	TenantID     string    `json:"tenant_id"`
	// Compressed marks an episode synthesized from evicted sources.
	Compressed  bool `json:"compressed,omitempty"`
	SourceCount int  `json:"source_count,omitempty"`
}

// Age returns the episode's age relative to now.
func (e *Episode) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(e.TimestampMs))
}

// CompressionLevel tags how much of an episode's content a ContextPacket
// carries when memory hands it to an agent.
type CompressionLevel string

const (
	// CompressionFull carries the verbatim content (Immediate, ShortTerm).
	CompressionFull CompressionLevel = "full"
	// CompressionSummarized carries summarized content (MediumTerm, LongTerm).
	CompressionSummarized CompressionLevel = "summarized"
	// CompressionReference carries a pointer plus a one-line gist (Permanent).
	CompressionReference CompressionLevel = "reference"
)

// levelFor maps a horizon to the packet compression level.
func levelFor(h Horizon) CompressionLevel {
	switch h {
	case Immediate, ShortTerm:
		return CompressionFull
	case MediumTerm, LongTerm:
		return CompressionSummarized
	default:
		return CompressionReference
	}
}

// ContextPacket is the immutable, identified payload agents consume. It is
// built from an episode at recall time; expiry mirrors the source horizon's
// window.
type ContextPacket struct {
	ID          string           `json:"id"`
	Content     string           `json:"content"`
	CreatedAtMs int64            `json:"created_at_ms"`
	ExpiresAtMs int64            `json:"expires_at_ms,omitempty"`
	Level       CompressionLevel `json:"level"`
	SourceID    string           `json:"source_id"`
}

// Packet renders the episode as a ContextPacket at the compression level its
// horizon dictates.
func (e *Episode) Packet(now time.Time) ContextPacket {
	p := ContextPacket{
		ID:          e.ID + ":packet",
		CreatedAtMs: now.UnixMilli(),
		Level:       levelFor(e.Horizon),
		SourceID:    e.ID,
	}
	if w := e.Horizon.Window(); w != 0 {
		p.ExpiresAtMs = now.Add(w).UnixMilli()
	}
	switch p.Level {
	case CompressionReference:
		p.Content = fmt.Sprintf("[episode %s] %s", e.ID, gist(e.Content))
	default:
		p.Content = e.Content
	}
	return p
}

// gist returns the first line of content, truncated to 120 runes.
func gist(content string) string {
	for i, r := range content {
		if r == '\n' {
			content = content[:i]
			break
		}
	}
	runes := []rune(content)
	if len(runes) > 120 {
		return string(runes[:120]) + "…"
	}
	return content
}

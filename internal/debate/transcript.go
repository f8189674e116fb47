// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package debate implements C7: the adversarial Blue/Red/Reflection loop
// with structured voting, pluggable consensus protocols, per-turn audit
// events, and a Merkle root over the sealed transcript.
package debate

import (
	"github.com/google/uuid"
)

// Role tags a transcript turn.
type Role string

const (
	RoleBlue       Role = "blue"
	RoleRed        Role = "red"
	RoleReflection Role = "reflection"
)

// Turn is one entry in a debate transcript. Vote is non-nil for Red turns
// and for Reflection turns, which carry their verdict as a vote.
type Turn struct {
	Role    Role   `json:"role"`
	Round   int    `json:"round"`
	Content string `json:"content"`
	Vote    *Vote  `json:"vote,omitempty"`
}

// Transcript is the ordered record of a debate — the input to consensus
// and the payload sealed into the audit ledger.
type Transcript struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	TenantID string `json:"tenant_id"`
	Turns    []Turn `json:"turns"`
}

// NewTranscript starts an empty transcript for task.
func NewTranscript(tenant, task string) *Transcript {
	return &Transcript{ID: uuid.NewString(), Task: task, TenantID: tenant}
}

// Append records a turn.
func (t *Transcript) Append(turn Turn) { t.Turns = append(t.Turns, turn) }

// LatestAnswer returns Blue's most recent answer — the candidate that
// consensus decides on. Reflection revisions count as Blue's latest answer
// when they carry a revision.
func (t *Transcript) LatestAnswer() string {
	var answer string
	for _, turn := range t.Turns {
		switch turn.Role {
		case RoleBlue:
			answer = turn.Content
		case RoleReflection:
			if turn.Vote != nil && turn.Vote.SuggestedRevision != "" {
				answer = turn.Vote.SuggestedRevision
			}
		}
	}
	return answer
}

// Rounds returns the highest round number recorded.
func (t *Transcript) Rounds() int {
	max := 0
	for _, turn := range t.Turns {
		if turn.Round > max {
			max = turn.Round
		}
	}
	return max
}

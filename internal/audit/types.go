// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit implements C2: the append-only, hash-chained, actor-
// attributed audit ledger with optional per-event Ed25519 signatures and
// Merkle-rooted verification windows.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vexlabs/vex/internal/merkle"
)

// ActorKind is the closed set of actor categories.
type ActorKind string

const (
	ActorAgent  ActorKind = "agent"
	ActorHuman  ActorKind = "human"
	ActorSystem ActorKind = "system"
)

// Actor identifies who performed an action. Human actors are pseudonymized
// before the event ever reaches Append; Agent and System actors keep their
// raw identifier.
type Actor struct {
	Kind  ActorKind `json:"kind"`
	Value string    `json:"value"`
}

// PseudonymizeHuman returns the actor to persist for a Human identifier:
// SHA-256 over "tenant:identifier", hex-encoded. Call sites must never
// construct an ActorHuman Actor with a raw identifier directly.
func PseudonymizeHuman(tenant, identifier string) Actor {
	sum := sha256.Sum256([]byte(tenant + ":" + identifier))
	return Actor{Kind: ActorHuman, Value: hex.EncodeToString(sum[:])}
}

// NewAgentActor and NewSystemActor store raw identifiers; only Human
// actors are pseudonymized.
func NewAgentActor(id string) Actor  { return Actor{Kind: ActorAgent, Value: id} }
func NewSystemActor(id string) Actor { return Actor{Kind: ActorSystem, Value: id} }

// Compliance carries the optional ISO-42001/EU-AI-Act-style review fields.
// These ride inside the canonicalized diff, so the chain computation is
// unaffected by their presence or absence.
type Compliance struct {
	Rationale           string   `json:"rationale,omitempty"`
	PolicyVersion       string   `json:"policy_version,omitempty"`
	HumanReviewRequired bool     `json:"human_review_required,omitempty"`
	ApprovalSignatures  []string `json:"approval_signatures,omitempty"`
	EvidenceCapsuleHash string   `json:"evidence_capsule_hash,omitempty"`
}

// Diff is the structured payload attached to an event, canonicalized and
// hashed as part of the chain computation.
type Diff struct {
	Fields     map[string]any `json:"fields,omitempty"`
	Compliance *Compliance    `json:"compliance,omitempty"`
}

// Event is one immutable, hash-chained ledger entry.
type Event struct {
	ID           string      `json:"id"`
	EntityID     string      `json:"entity_id"`
	Action       string      `json:"action"`
	Actor        Actor       `json:"actor"`
	Diff         *Diff       `json:"diff,omitempty"`
	PreviousHash merkle.Hash `json:"previous_hash"`
	CurrentHash  merkle.Hash `json:"current_hash"`
	Signature    []byte      `json:"signature,omitempty"`
	TimestampMs  int64       `json:"timestamp_ms"`
	TenantID     string      `json:"tenant_id"`
}

// fieldsForHash renders the fixed, documented field order the chain
// computation hashes over: entity, action, actor, diff, timestamp. The
// previous hash is prepended separately by computeCurrentHash.
func (e *Event) fieldsForHash() ([]byte, error) {
	diffCanonical := []byte("null")
	if e.Diff != nil {
		c, err := CanonicalJSON(e.Diff)
		if err != nil {
			return nil, err
		}
		diffCanonical = c
	}
	return []byte(fmt.Sprintf("%s|%s|%s:%s|%s|%d",
		e.EntityID, e.Action, e.Actor.Kind, e.Actor.Value, diffCanonical, e.TimestampMs)), nil
}

func computeCurrentHash(previous merkle.Hash, e *Event) (merkle.Hash, error) {
	fields, err := e.fieldsForHash()
	if err != nil {
		return merkle.Hash{}, err
	}
	buf := make([]byte, 0, len(previous)+len(fields))
	buf = append(buf, previous[:]...)
	buf = append(buf, fields...)
	return merkle.Digest(buf), nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package genome

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/storage"
	"github.com/vexlabs/vex/internal/vexerr"
)

// Config describes a new root agent.
type Config struct {
	Name   string
	Role   string
	Genome *Genome // nil uses the midpoint default
}

// Agent is an addressable decision-making entity parameterized by a genome.
// Agents are owned by the orchestrator; genome reads need no
// synchronization, and trait mutation happens only at spawn/apply-rule
// boundaries.
type Agent struct {
	ID          string  `json:"id"`
	ParentID    string  `json:"parent_id,omitempty"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	Generation  int     `json:"generation"`
	Fitness     float64 `json:"fitness"`
	Genome      Genome  `json:"genome"`
	TenantID    string  `json:"tenant_id"`
	CreatedAtMs int64   `json:"created_at_ms"`
	RetiredAtMs int64   `json:"retired_at_ms,omitempty"`
}

// New creates a genesis agent: generation 0, fitness 0, no parent.
func New(cfg Config, tenant string, c clock.Clock) *Agent {
	g := Default()
	if cfg.Genome != nil {
		g = cfg.Genome.Clamped()
	}
	return &Agent{
		ID:          uuid.NewString(),
		Name:        cfg.Name,
		Role:        cfg.Role,
		Genome:      g,
		TenantID:    tenant,
		CreatedAtMs: c.NowMillis(),
	}
}

// SpawnChild derives a child from two parents: generation parent+1, traits
// from crossover then mutation. The second parent may equal the first for
// asexual spawning.
func SpawnChild(parent, mate *Agent, cfg Config, c clock.Clock, rng Rand) *Agent {
	if mate == nil {
		mate = parent
	}
	child := Mutate(Crossover(parent.Genome, mate.Genome, rng), rng)
	name := cfg.Name
	if name == "" {
		name = parent.Name + "-child"
	}
	role := cfg.Role
	if role == "" {
		role = parent.Role
	}
	return &Agent{
		ID:          uuid.NewString(),
		ParentID:    parent.ID,
		Name:        name,
		Role:        role,
		Generation:  parent.Generation + 1,
		Genome:      child,
		TenantID:    parent.TenantID,
		CreatedAtMs: c.NowMillis(),
	}
}

// Adjustment is one trait nudge derived from an optimization rule.
type Adjustment struct {
	Trait string  `json:"trait"`
	Delta float64 `json:"delta"`
}

// ApplyAdjustments nudges the agent's traits in place, bounded to ranges.
// The caller records the perturbation as an audit event so trait drift
// stays explainable.
func (a *Agent) ApplyAdjustments(adjustments []Adjustment) {
	for _, adj := range adjustments {
		v, ok := a.Genome.Get(adj.Trait)
		if !ok {
			continue
		}
		a.Genome.Set(adj.Trait, v+adj.Delta)
	}
}

// SelfConfidence derives Blue's own vote confidence from fitness, floored
// at 0.5 so a fresh agent's proposal is never weighted below a coin flip.
func (a *Agent) SelfConfidence() float64 {
	if a.Fitness < 0.5 {
		return 0.5
	}
	if a.Fitness > 1.0 {
		return 1.0
	}
	return a.Fitness
}

// Retired reports whether the agent has been explicitly retired.
func (a *Agent) Retired() bool { return a.RetiredAtMs != 0 }

// Store persists agents in the Warm tier's agents table.
type Store struct {
	db *storage.DB
}

// NewStore wraps db's agents table.
func NewStore(db *storage.DB) *Store { return &Store{db: db} }

// Save writes the agent row. Genomes are clamped on write so the bounds
// invariant holds for every persisted descendant.
func (s *Store) Save(ctx context.Context, a *Agent) error {
	a.Genome = a.Genome.Clamped()
	return s.db.Put(ctx, storage.TableAgents, a.TenantID, a.ID, a)
}

// Get loads one agent by id.
func (s *Store) Get(ctx context.Context, tenant, id string) (*Agent, error) {
	var a Agent
	found, err := s.db.Get(ctx, storage.TableAgents, tenant, id, &a)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, vexerr.New(vexerr.Input, "genome.Store.Get", "agent not found")
	}
	a.Genome = a.Genome.Clamped()
	return &a, nil
}

// List returns every non-retired agent for tenant — the selection pool.
func (s *Store) List(ctx context.Context, tenant string) ([]*Agent, error) {
	var agents []*Agent
	err := s.db.Scan(ctx, storage.TableAgents, tenant, func(_ string, value []byte) error {
		var a Agent
		if err := json.Unmarshal(value, &a); err != nil {
			return err
		}
		if a.Retired() {
			return nil
		}
		a.Genome = a.Genome.Clamped()
		agents = append(agents, &a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agents, nil
}

// Retire marks the agent retired and persists the change. Agents persist
// until explicitly retired; there is no implicit expiry.
func (s *Store) Retire(ctx context.Context, a *Agent, c clock.Clock) error {
	a.RetiredAtMs = c.NowMillis()
	return s.Save(ctx, a)
}

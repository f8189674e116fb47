// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evolution implements C8: converting accumulated experiment
// records into optimization rules through a statistical correlation stage
// and an optional LLM-backed reflective stage.
package evolution

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/storage"
)

// DefaultBatchThreshold is the number of records that triggers rule
// synthesis when no explicit trigger fires first.
const DefaultBatchThreshold = 70

// ExperimentRecord snapshots one agent execution: the trait vector at
// execution time, the task, the fitness component breakdown, and the
// overall fitness scalar. Experiments live indefinitely; batches are
// summarized into rules, never deleted.
type ExperimentRecord struct {
	ID                string             `json:"id"`
	AgentID           string             `json:"agent_id"`
	Traits            map[string]float64 `json:"traits"`
	TaskClass         string             `json:"task_class"`
	TaskSummary       string             `json:"task_summary"`
	FitnessComponents map[string]float64 `json:"fitness_components"`
	OverallFitness    float64            `json:"overall_fitness"`
	TenantID          string             `json:"tenant_id"`
	TimestampMs       int64              `json:"timestamp_ms"`
}

// ExperimentStore persists experiments in the Warm tier.
type ExperimentStore struct {
	db    *storage.DB
	clock clock.Clock
}

// NewExperimentStore wraps db's experiments table.
func NewExperimentStore(db *storage.DB, c clock.Clock) *ExperimentStore {
	return &ExperimentStore{db: db, clock: c}
}

// Record assigns an id and timestamp and persists the experiment.
func (s *ExperimentStore) Record(ctx context.Context, rec ExperimentRecord) (ExperimentRecord, error) {
	rec.ID = uuid.NewString()
	rec.TimestampMs = s.clock.NowMillis()
	if err := s.db.Put(ctx, storage.TableExperiments, rec.TenantID, rec.ID, rec); err != nil {
		return ExperimentRecord{}, err
	}
	return rec, nil
}

// List returns every experiment for tenant in timestamp order.
func (s *ExperimentStore) List(ctx context.Context, tenant string) ([]ExperimentRecord, error) {
	var records []ExperimentRecord
	err := s.db.Scan(ctx, storage.TableExperiments, tenant, func(_ string, value []byte) error {
		var rec ExperimentRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TimestampMs < records[j].TimestampMs })
	return records, nil
}

// Count returns the number of stored experiments for tenant.
func (s *ExperimentStore) Count(ctx context.Context, tenant string) (int, error) {
	n := 0
	err := s.db.Scan(ctx, storage.TableExperiments, tenant, func(_ string, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

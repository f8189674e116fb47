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
	"sort"

	"github.com/google/uuid"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/genome"
	"github.com/vexlabs/vex/internal/storage"
)

// OptimizationRule is a trait-level recommendation synthesized from a
// batch of experiments. Adjustments carry the concrete bounded nudges
// applied at agent spawn.
type OptimizationRule struct {
	ID             string              `json:"id"`
	Description    string              `json:"description"`
	AffectedTraits []string            `json:"affected_traits"`
	Adjustments    []genome.Adjustment `json:"adjustments"`
	TaskClass      string              `json:"task_class"`
	Confidence     float64             `json:"confidence"`
	SourceCount    int                 `json:"source_count"`
	TenantID       string              `json:"tenant_id"`
	CreatedAtMs    int64               `json:"created_at_ms"`
}

// RuleStore persists optimization rules in the Warm tier.
type RuleStore struct {
	db    *storage.DB
	clock clock.Clock
}

// NewRuleStore wraps db's optimization_rules table.
func NewRuleStore(db *storage.DB, c clock.Clock) *RuleStore {
	return &RuleStore{db: db, clock: c}
}

// Save assigns an id and creation time and persists the rule.
func (s *RuleStore) Save(ctx context.Context, rule OptimizationRule) (OptimizationRule, error) {
	rule.ID = uuid.NewString()
	rule.CreatedAtMs = s.clock.NowMillis()
	if rule.Confidence < 0 {
		rule.Confidence = 0
	}
	if rule.Confidence > 1 {
		rule.Confidence = 1
	}
	if err := s.db.Put(ctx, storage.TableOptimizationRules, rule.TenantID, rule.ID, rule); err != nil {
		return OptimizationRule{}, err
	}
	return rule, nil
}

// List returns tenant's rules ordered by (confidence DESC, created_at DESC).
func (s *RuleStore) List(ctx context.Context, tenant string) ([]OptimizationRule, error) {
	var rules []OptimizationRule
	err := s.db.Scan(ctx, storage.TableOptimizationRules, tenant, func(_ string, value []byte) error {
		var rule OptimizationRule
		if err := json.Unmarshal(value, &rule); err != nil {
			return err
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Confidence != rules[j].Confidence {
			return rules[i].Confidence > rules[j].Confidence
		}
		return rules[i].CreatedAtMs > rules[j].CreatedAtMs
	})
	return rules, nil
}

// Applicable returns the rules matching a task class, in List order.
func (s *RuleStore) Applicable(ctx context.Context, tenant, taskClass string) ([]OptimizationRule, error) {
	rules, err := s.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	matched := rules[:0]
	for _, rule := range rules {
		if rule.TaskClass == "" || rule.TaskClass == taskClass {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evolution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/llm"
	"github.com/vexlabs/vex/internal/storage"
)

var batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vex",
	Subsystem: "evolution",
	Name:      "batches_total",
	Help:      "Rule-synthesis batches run, by tenant.",
}, []string{"tenant"})

var rulesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "vex",
	Subsystem: "evolution",
	Name:      "rules_synthesized",
	Help:      "Rules produced by the most recent synthesis batch.",
}, []string{"tenant"})

// Loop owns the record → correlate → reflect → persist cycle. Records
// accumulate until the batch threshold, then synthesis runs; Synthesize
// can also be triggered explicitly.
type Loop struct {
	experiments *ExperimentStore
	rules       *RuleStore
	provider    llm.Provider // nil disables the reflective stage
	threshold   int
	log         *slog.Logger

	mu             sync.Mutex
	sinceSynthesis map[string]int
}

// NewLoop builds the evolution loop. threshold <= 0 uses the default 70.
func NewLoop(db *storage.DB, c clock.Clock, provider llm.Provider, threshold int, log *slog.Logger) *Loop {
	if threshold <= 0 {
		threshold = DefaultBatchThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		experiments:    NewExperimentStore(db, c),
		rules:          NewRuleStore(db, c),
		provider:       provider,
		threshold:      threshold,
		log:            log,
		sinceSynthesis: make(map[string]int),
	}
}

// Rules exposes the rule store for spawn-time application.
func (l *Loop) Rules() *RuleStore { return l.rules }

// Record persists one experiment and runs synthesis when the tenant's
// batch threshold is reached. The synthesized rules (if any) are returned
// so callers can audit the batch.
func (l *Loop) Record(ctx context.Context, rec ExperimentRecord) ([]OptimizationRule, error) {
	if _, err := l.experiments.Record(ctx, rec); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.sinceSynthesis[rec.TenantID]++
	due := l.sinceSynthesis[rec.TenantID] >= l.threshold
	if due {
		l.sinceSynthesis[rec.TenantID] = 0
	}
	l.mu.Unlock()

	if !due {
		return nil, nil
	}
	return l.Synthesize(ctx, rec.TenantID)
}

// Synthesize runs the statistical and reflective stages over the tenant's
// full experiment history and persists the resulting rules.
func (l *Loop) Synthesize(ctx context.Context, tenant string) ([]OptimizationRule, error) {
	records, err := l.experiments.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	candidates := GenerateCandidates(records)
	if len(candidates) == 0 {
		l.log.Info("synthesis batch produced no candidates", "tenant", tenant, "experiments", len(records))
		return nil, nil
	}

	rules := Reflect(ctx, l.provider, candidates, records, l.log)
	saved := make([]OptimizationRule, 0, len(rules))
	for _, rule := range rules {
		rule.TenantID = tenant
		persisted, err := l.rules.Save(ctx, rule)
		if err != nil {
			return saved, err
		}
		saved = append(saved, persisted)
	}

	batchesTotal.WithLabelValues(tenant).Inc()
	rulesGauge.WithLabelValues(tenant).Set(float64(len(saved)))
	l.log.Info("synthesis batch complete", "tenant", tenant, "experiments", len(records), "rules", len(saved))
	return saved, nil
}

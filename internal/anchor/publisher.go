// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package anchor

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vexlabs/vex/internal/merkle"
	"github.com/vexlabs/vex/internal/storage"
	"github.com/vexlabs/vex/internal/vexerr"
)

var publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "vex",
	Subsystem: "anchor",
	Name:      "publish_duration_seconds",
	Help:      "Anchor publication latency by backend and outcome.",
}, []string{"backend", "outcome"})

// Publisher wraps a Backend with the default 15s per-anchor publication
// timeout and surfaces failures as Provider errors for a caller-owned
// retry queue — anchoring is never on the debate hot path.
type Publisher struct {
	backend Backend
	timeout time.Duration
	db      *storage.DB // nil skips receipt persistence
	log     *slog.Logger
}

func NewPublisher(backend Backend, timeout time.Duration, log *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{backend: backend, timeout: timeout, log: log}
}

// WithReceiptStore mirrors every issued receipt into the anchor_receipts
// table, keyed by the anchored root, so receipts are queryable alongside
// the ledger they prove.
func (p *Publisher) WithReceiptStore(db *storage.DB) *Publisher {
	p.db = db
	return p
}

func (p *Publisher) Publish(ctx context.Context, root merkle.Hash, meta Metadata) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := p.backend.Anchor(ctx, root, meta)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	publishDuration.WithLabelValues(p.backend.Name(), outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		p.log.Warn("anchor publication failed", "backend", p.backend.Name(), "error", err)
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.Publisher.Publish", "anchor backend failed", err)
	}
	if p.db != nil {
		if err := p.db.Put(ctx, storage.TableAnchorReceipts, meta.Tenant, receipt.RootHex, receipt); err != nil {
			// The backend already holds the authoritative receipt; a mirror
			// failure only degrades local queryability.
			p.log.Warn("receipt persistence failed", "root", receipt.RootHex, "error", err)
		}
	}
	p.log.Info("anchor published", "backend", p.backend.Name(), "root", root.Hex())
	return receipt, nil
}

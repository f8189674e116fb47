// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the collaborator surfaces VEX consumes but
// does not implement: durable anchor retry, external audit export, and
// tenant derivation. The open source build uses no-op defaults; deployment
// builds inject concrete implementations via ServiceOptions without
// modifying core packages.
//
// The types here are deliberately self-contained (hex strings, raw JSON)
// so implementations live outside this module without importing its
// internals. All implementations must be safe for concurrent use.
package extensions

import (
	"context"
	"sync"
)

// AnchorRequest is one root awaiting (re-)publication: the Merkle root in
// hex plus the backend metadata that accompanied the failed attempt.
type AnchorRequest struct {
	RootHex     string `json:"root_hex"`
	Tenant      string `json:"tenant"`
	Sequence    int64  `json:"sequence"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// AnchorQueue is the durable FIFO backing anchor-publication retry: a
// failed publish is enqueued and retried with backoff by the
// implementation. The core only enqueues; draining, retry pacing, and
// permanent-failure handling belong to the implementation.
type AnchorQueue interface {
	// Enqueue records a root whose publication failed. Must not block on
	// the eventual retry.
	Enqueue(ctx context.Context, req AnchorRequest) error
	// Depth reports the number of queued, not-yet-published roots.
	Depth(ctx context.Context) (int, error)
}

// AuditExporter forwards sealed audit events to an external compliance
// system (SIEM, log aggregation). Export failures must never fail the
// originating append; the ledger remains the source of truth.
type AuditExporter interface {
	Export(ctx context.Context, tenant, eventID string, payload []byte) error
	Flush(ctx context.Context) error
}

// TenantResolver derives the tenant id for a request. Auth happens
// upstream of the core; this surface only maps an already-authenticated
// principal onto a tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, principal string) (tenant string, err error)
}

// ServiceOptions groups all extension points. Nil fields fall back to the
// no-op defaults from DefaultOptions.
type ServiceOptions struct {
	AnchorQueue    AnchorQueue
	AuditExporter  AuditExporter
	TenantResolver TenantResolver
}

// DefaultOptions returns fully populated no-op options.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AnchorQueue:    &NopAnchorQueue{},
		AuditExporter:  &NopAuditExporter{},
		TenantResolver: &StaticTenantResolver{Tenant: "default"},
	}
}

// Normalize fills nil fields with no-op defaults.
func (o ServiceOptions) Normalize() ServiceOptions {
	def := DefaultOptions()
	if o.AnchorQueue == nil {
		o.AnchorQueue = def.AnchorQueue
	}
	if o.AuditExporter == nil {
		o.AuditExporter = def.AuditExporter
	}
	if o.TenantResolver == nil {
		o.TenantResolver = def.TenantResolver
	}
	return o
}

// NopAnchorQueue drops enqueued roots. Single-node deployments that can
// tolerate missed anchors use this; everything anchored remains provable
// from the ledger itself.
type NopAnchorQueue struct{}

func (q *NopAnchorQueue) Enqueue(context.Context, AnchorRequest) error { return nil }
func (q *NopAnchorQueue) Depth(context.Context) (int, error)           { return 0, nil }

// MemoryAnchorQueue is a bounded in-process queue for tests and demos. It
// is not durable; production deployments provide a disk- or broker-backed
// implementation.
type MemoryAnchorQueue struct {
	mu      sync.Mutex
	pending []AnchorRequest
	limit   int
}

// NewMemoryAnchorQueue bounds the queue at limit entries (<=0 means 1024).
func NewMemoryAnchorQueue(limit int) *MemoryAnchorQueue {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryAnchorQueue{limit: limit}
}

func (q *MemoryAnchorQueue) Enqueue(_ context.Context, req AnchorRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.limit {
		// Drop oldest: a newer root supersedes it for timestamping purposes.
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, req)
	return nil
}

func (q *MemoryAnchorQueue) Depth(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

// Drain removes and returns every pending request, oldest first.
func (q *MemoryAnchorQueue) Drain() []AnchorRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// NopAuditExporter discards exports.
type NopAuditExporter struct{}

func (e *NopAuditExporter) Export(context.Context, string, string, []byte) error { return nil }
func (e *NopAuditExporter) Flush(context.Context) error                          { return nil }

// StaticTenantResolver maps every principal to one fixed tenant — the
// single-tenant default.
type StaticTenantResolver struct {
	Tenant string
}

func (r *StaticTenantResolver) Resolve(_ context.Context, _ string) (string, error) {
	return r.Tenant, nil
}

var (
	_ AnchorQueue    = (*NopAnchorQueue)(nil)
	_ AnchorQueue    = (*MemoryAnchorQueue)(nil)
	_ AuditExporter  = (*NopAuditExporter)(nil)
	_ TenantResolver = (*StaticTenantResolver)(nil)
)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package anchor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/merkle"
)

// MemoryBackend is an in-process anchor sink used by tests and by
// single-process demos that don't need durable receipts.
type MemoryBackend struct {
	mu       sync.Mutex
	receipts []Receipt
	clock    clock.Clock
}

func NewMemoryBackend(c clock.Clock) *MemoryBackend {
	return &MemoryBackend{clock: c}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Healthy(ctx context.Context) bool { return true }

func (m *MemoryBackend) Anchor(ctx context.Context, root merkle.Hash, meta Metadata) (Receipt, error) {
	r := Receipt{
		Backend:     m.Name(),
		RootHex:     root.Hex(),
		Locator:     uuid.NewString(),
		Metadata:    meta,
		TimestampMs: m.clock.NowMillis(),
	}
	m.mu.Lock()
	m.receipts = append(m.receipts, r)
	m.mu.Unlock()
	return r, nil
}

// Receipts returns a copy of every receipt issued so far.
func (m *MemoryBackend) Receipts() []Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Receipt, len(m.receipts))
	copy(out, m.receipts)
	return out
}

var _ Backend = (*MemoryBackend)(nil)

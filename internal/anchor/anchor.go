// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package anchor implements C3: pluggable, one-way publication of Merkle
// roots to external timestamping substrates. Anchoring is best-effort and
// never on the debate hot path; failures are surfaced so a caller-owned
// retry queue can retry.
package anchor

import (
	"context"

	"github.com/vexlabs/vex/internal/merkle"
)

// Metadata describes the batch being anchored.
type Metadata struct {
	Tenant      string `json:"tenant"`
	Sequence    int64  `json:"sequence"`
	TimestampMs int64  `json:"timestamp_ms"`
	Description string `json:"description,omitempty"`
}

// Receipt proves a root was published to a backend. Locator is
// backend-specific: a file offset, a git commit id, or an opaque
// transaction id.
type Receipt struct {
	Backend     string   `json:"backend"`
	RootHex     string   `json:"root_hex"`
	Locator     string   `json:"locator"`
	Metadata    Metadata `json:"metadata"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// Backend is the capability surface any anchor sink implements. Runtime
// polymorphism here is required because users plug in new external
// substrates; the closed protocol/decay enums stay tagged variants.
type Backend interface {
	Anchor(ctx context.Context, root merkle.Hash, meta Metadata) (Receipt, error)
	Name() string
	Healthy(ctx context.Context) bool
}

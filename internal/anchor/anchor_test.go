// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package anchor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/merkle"
	"github.com/vexlabs/vex/internal/storage"
)

// S6: anchor a root through the file backend, read the JSON-Lines file
// back, and check the last record's root_hex matches.
func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := clock.NewFixed(time.Unix(1_700_000_000, 0))
	backend, err := NewFileBackend("anchors.jsonl", dir, c)
	require.NoError(t, err)

	root := merkle.Digest([]byte("window-1"))
	receipt, err := backend.Anchor(context.Background(), root, Metadata{Tenant: "t1", Sequence: 1})
	require.NoError(t, err)
	assert.Equal(t, root.Hex(), receipt.RootHex)

	second := merkle.Digest([]byte("window-2"))
	_, err = backend.Anchor(context.Background(), second, Metadata{Tenant: "t1", Sequence: 2})
	require.NoError(t, err)

	last, err := backend.TailLast()
	require.NoError(t, err)
	assert.Equal(t, second.Hex(), last.RootHex)
	assert.Equal(t, "file", last.Backend)
	assert.Equal(t, int64(2), last.Metadata.Sequence)
}

func TestFileBackendRejectsTraversal(t *testing.T) {
	c := clock.NewFixed(time.Unix(1_700_000_000, 0))
	_, err := NewFileBackend("../escape.jsonl", t.TempDir(), c)
	require.Error(t, err)
}

func TestMemoryBackendRecords(t *testing.T) {
	c := clock.NewFixed(time.Unix(1_700_000_000, 0))
	backend := NewMemoryBackend(c)

	root := merkle.Digest([]byte("root"))
	receipt, err := backend.Anchor(context.Background(), root, Metadata{Tenant: "t1"})
	require.NoError(t, err)
	assert.Equal(t, root.Hex(), receipt.RootHex)
	require.Len(t, backend.Receipts(), 1)
}

func TestPublisherWrapsFailureAsProviderError(t *testing.T) {
	c := clock.NewFixed(time.Unix(1_700_000_000, 0))
	// A file backend pointed at an unwritable path: the publisher surfaces
	// the failure for the caller-owned retry queue.
	backend := &FileBackend{path: "/proc/does-not-exist/anchors.jsonl", clock: c}
	pub := NewPublisher(backend, time.Second, nil)

	_, err := pub.Publish(context.Background(), merkle.Digest([]byte("r")), Metadata{Tenant: "t1"})
	require.Error(t, err)
}

func TestPublisherSuccess(t *testing.T) {
	c := clock.NewFixed(time.Unix(1_700_000_000, 0))
	pub := NewPublisher(NewMemoryBackend(c), time.Second, nil)

	receipt, err := pub.Publish(context.Background(), merkle.Digest([]byte("r")), Metadata{Tenant: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "memory", receipt.Backend)
}

func TestPublisherMirrorsReceiptToStore(t *testing.T) {
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := clock.NewFixed(time.Unix(1_700_000_000, 0))
	pub := NewPublisher(NewMemoryBackend(c), time.Second, nil).WithReceiptStore(db)

	root := merkle.Digest([]byte("r"))
	_, err = pub.Publish(context.Background(), root, Metadata{Tenant: "t1"})
	require.NoError(t, err)

	var stored Receipt
	found, err := db.Get(context.Background(), storage.TableAnchorReceipts, "t1", root.Hex(), &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, root.Hex(), stored.RootHex)
}

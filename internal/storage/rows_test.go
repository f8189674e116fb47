// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Name string `json:"name"`
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, TableAgents, "t1", "a1", row{Name: "alpha"}))

	var got row
	found, err := db.Get(ctx, TableAgents, "t1", "a1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alpha", got.Name)

	found, err = db.Get(ctx, TableAgents, "t1", "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutRowWithTipIsOneCommit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutRowWithTip(ctx, TableAuditEvents, "t1", "e1", row{Name: "first"}, "t1/entity-1"))

	var got row
	found, err := db.Get(ctx, TableAuditEvents, "t1", "e1", &got)
	require.NoError(t, err)
	require.True(t, found)

	tip, ok, err := db.GetTip(ctx, TableAuditEvents, "t1/entity-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "e1", tip)

	// Advancing the tip for the same entity replaces, never appends.
	require.NoError(t, db.PutRowWithTip(ctx, TableAuditEvents, "t1", "e2", row{Name: "second"}, "t1/entity-1"))
	tip, ok, err = db.GetTip(ctx, TableAuditEvents, "t1/entity-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "e2", tip)
}

func TestScanSkipsTipPointers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutRowWithTip(ctx, TableAuditEvents, "t1", "e1", row{Name: "one"}, "t1/entity-1"))
	require.NoError(t, db.PutRowWithTip(ctx, TableAuditEvents, "t1", "e2", row{Name: "two"}, "t1/entity-2"))

	var ids []string
	err := db.Scan(ctx, TableAuditEvents, "t1", func(id string, _ []byte) error {
		ids = append(ids, id)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)
}

func TestScanIsTenantScoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, TableAgents, "t1", "a1", row{Name: "one"}))
	require.NoError(t, db.Put(ctx, TableAgents, "t1x", "a2", row{Name: "two"}))

	count := 0
	err := db.Scan(ctx, TableAgents, "t1", func(_ string, _ []byte) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

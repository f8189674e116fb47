// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexlabs/vex/internal/clock"
)

func newTestStore(t *testing.T, decay DecayStrategy) (*Store, *clock.Fixed) {
	t.Helper()
	c := clock.NewFixed(time.Unix(1700000000, 0))
	s, err := NewStore(Config{Decay: decay, Clock: c})
	require.NoError(t, err)
	return s, c
}

func TestHorizonForAge(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want Horizon
	}{
		{time.Minute, Immediate},
		{5 * time.Minute, Immediate},
		{6 * time.Minute, ShortTerm},
		{time.Hour, ShortTerm},
		{2 * time.Hour, MediumTerm},
		{25 * time.Hour, LongTerm},
		{8 * 24 * time.Hour, Permanent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ForAge(tc.age), "age %v", tc.age)
	}
}

// S4 plus property 5: insert 15 into Immediate (capacity 10); 5 lowest are
// evicted and the conservation invariant holds.
func TestImmediateOverflowEvictsLowestScored(t *testing.T) {
	s, _ := newTestStore(t, DecayExponential)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		// Later inserts get higher importance, so the five lowest-importance
		// episodes are the eviction victims.
		_, err := s.Insert(ctx, "t1", fmt.Sprintf("episode %d", i), float64(i)/15.0)
		require.NoError(t, err)
	}

	perHorizon, inserted, evicted := s.Counts("t1")
	assert.Equal(t, 10, perHorizon[Immediate])
	assert.Equal(t, 15, inserted)
	assert.Equal(t, 5, evicted)

	live := 0
	for _, n := range perHorizon {
		live += n
	}
	assert.Equal(t, inserted-evicted, live)
}

func TestTickMigratesAcrossHorizons(t *testing.T) {
	s, c := newTestStore(t, DecayNone)
	ctx := context.Background()

	e, err := s.Insert(ctx, "t1", "old news", 0.8)
	require.NoError(t, err)
	assert.Equal(t, Immediate, e.Horizon)

	c.Advance(10 * time.Minute)
	require.NoError(t, s.Tick(ctx, "t1"))
	assert.Equal(t, ShortTerm, e.Horizon)

	c.Advance(2 * time.Hour)
	require.NoError(t, s.Tick(ctx, "t1"))
	assert.Equal(t, MediumTerm, e.Horizon)

	perHorizon, inserted, evicted := s.Counts("t1")
	live := 0
	for _, n := range perHorizon {
		live += n
	}
	assert.Equal(t, inserted-evicted, live)
}

func TestCapacityNeverExceededUnderChurn(t *testing.T) {
	s, c := newTestStore(t, DecayExponential)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		_, err := s.Insert(ctx, "t1", fmt.Sprintf("event %d", i), 0.5)
		require.NoError(t, err)
		if i%20 == 0 {
			c.Advance(3 * time.Minute)
			require.NoError(t, s.Tick(ctx, "t1"))
		}
	}
	require.NoError(t, s.Tick(ctx, "t1"))

	perHorizon, inserted, evicted := s.Counts("t1")
	for _, h := range AllHorizons {
		assert.LessOrEqual(t, perHorizon[h], h.DefaultCapacity(), "horizon %s over capacity", h)
	}
	live := 0
	for _, n := range perHorizon {
		live += n
	}
	assert.Equal(t, inserted-evicted, live)
}

func TestRecallRanksBySimilarityAndRaisesAccessCount(t *testing.T) {
	s, _ := newTestStore(t, DecayNone)
	ctx := context.Background()

	_, err := s.Insert(ctx, "t1", "the merkle tree root changed after the audit", 0.5)
	require.NoError(t, err)
	match, err := s.Insert(ctx, "t1", "debate consensus reached on the capital of France", 0.5)
	require.NoError(t, err)

	got, err := s.Recall(ctx, "t1", "what was the debate consensus about France", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, match.ID, got[0].ID)
	assert.Equal(t, 1, got[0].AccessCount)
}

func TestRecallIsTenantScoped(t *testing.T) {
	s, _ := newTestStore(t, DecayNone)
	ctx := context.Background()

	_, err := s.Insert(ctx, "t1", "tenant one secret", 0.9)
	require.NoError(t, err)

	got, err := s.Recall(ctx, "t2", "secret", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompressReplacesBelowMedian(t *testing.T) {
	s, _ := newTestStore(t, DecayNone)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := s.Insert(ctx, "t1", fmt.Sprintf("fact number %d about the system", i), float64(i)/8.0)
		require.NoError(t, err)
	}

	compressed, err := s.Compress(ctx, "t1", Immediate)
	require.NoError(t, err)
	require.NotNil(t, compressed)
	assert.True(t, compressed.Compressed)
	assert.Equal(t, 4, compressed.SourceCount)
	// Mean of the four lowest importances: (0+1+2+3)/8/4.
	assert.InDelta(t, 0.1875, compressed.Importance, 1e-9)

	perHorizon, inserted, evicted := s.Counts("t1")
	assert.Equal(t, 5, perHorizon[Immediate]) // 8 - 4 sources + 1 compressed
	live := 0
	for _, n := range perHorizon {
		live += n
	}
	assert.Equal(t, inserted-evicted, live)
}

func TestDecayStrategies(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := &Episode{TimestampMs: now.Add(-2 * time.Minute).UnixMilli(), Importance: 1.0, Horizon: Immediate}

	assert.Equal(t, 1.0, DecayNone.Score(e, now))
	linear := DecayLinear.Score(e, now)
	assert.InDelta(t, 0.6, linear, 1e-9)
	exp := DecayExponential.Score(e, now)
	assert.Greater(t, exp, 0.0)
	assert.Less(t, exp, 1.0)

	// Step decay halves per crossed horizon boundary.
	old := &Episode{TimestampMs: now.Add(-2 * time.Hour).UnixMilli(), Importance: 1.0, Horizon: MediumTerm}
	assert.InDelta(t, 0.25, DecayStep.Score(old, now), 1e-9)
}

func TestReinforcementRaisesScore(t *testing.T) {
	now := time.Unix(1700000000, 0)
	fresh := &Episode{TimestampMs: now.UnixMilli(), Importance: 0.5, Horizon: Immediate}
	recalled := &Episode{TimestampMs: now.UnixMilli(), Importance: 0.5, Horizon: Immediate, AccessCount: 5}
	assert.Greater(t, DecayExponential.Score(recalled, now), DecayExponential.Score(fresh, now))
}

func TestPacketLevels(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := &Episode{ID: "e1", Content: "line one\nline two", Horizon: Immediate, TimestampMs: now.UnixMilli()}
	p := e.Packet(now)
	assert.Equal(t, CompressionFull, p.Level)
	assert.Equal(t, "line one\nline two", p.Content)
	assert.NotZero(t, p.ExpiresAtMs)

	e.Horizon = LongTerm
	assert.Equal(t, CompressionSummarized, e.Packet(now).Level)

	e.Horizon = Permanent
	p = e.Packet(now)
	assert.Equal(t, CompressionReference, p.Level)
	assert.Contains(t, p.Content, "[episode e1]")
	assert.Zero(t, p.ExpiresAtMs)
}

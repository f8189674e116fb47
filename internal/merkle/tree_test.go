// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTreeRoot(t *testing.T) {
	tr := New(nil)
	assert.Equal(t, Digest(nil), tr.Root())
}

func TestSingleLeafRootEqualsLeaf(t *testing.T) {
	tr := New([][]byte{[]byte("solo")})
	assert.Equal(t, LeafHash([]byte("solo")), tr.Root())
}

func TestRootStableBuiltInOneShotVsIncremental(t *testing.T) {
	data := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}

	oneShot := New(data)

	incremental := New(nil)
	for _, d := range data {
		incremental.Insert(d)
	}

	assert.Equal(t, oneShot.Root(), incremental.Root())
}

func TestOddLevelDuplicatesLastNode(t *testing.T) {
	data := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	tr := New(data)

	left := NodeHash(LeafHash(data[0]), LeafHash(data[1]))
	right := NodeHash(LeafHash(data[2]), LeafHash(data[2]))
	want := NodeHash(left, right)

	assert.Equal(t, want, tr.Root())
}

func TestInclusionProofSoundness(t *testing.T) {
	data := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e"), []byte("f"), []byte("g")}
	tr := New(data)
	root := tr.Root()

	for i, d := range data {
		proof, err := tr.Proof(i)
		require.NoError(t, err)
		assert.True(t, Verify(d, proof, root), "leaf %d should verify", i)
		assert.False(t, Verify([]byte("not-the-leaf"), proof, root), "wrong leaf must not verify")
	}
}

func TestProofOutOfRange(t *testing.T) {
	tr := New([][]byte{[]byte("a")})
	_, err := tr.Proof(5)
	assert.Error(t, err)
	_, err = tr.Proof(-1)
	assert.Error(t, err)
}

func TestHashEqualConstantTime(t *testing.T) {
	h1 := Digest([]byte("x"))
	h2 := Digest([]byte("x"))
	h3 := Digest([]byte("y"))
	assert.True(t, h1.Equal(h2))
	assert.False(t, h1.Equal(h3))
}

func TestLeafAndNodeDomainsDiffer(t *testing.T) {
	data := []byte("same-bytes")
	leaf := LeafHash(data)
	node := NodeHash(Digest(nil), Digest(nil))
	assert.NotEqual(t, leaf, node)
}

func TestHashHexRoundTrip(t *testing.T) {
	h := Digest([]byte("round-trip"))
	parsed, err := HashFromHex(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package merkle

// Tree is an ordered sequence of leaf digests plus a cached root. Leaves are
// stored as domain-separated leaf hashes: New and Insert apply LeafHash to
// raw data, while NewFromLeafHashes stores the given hashes as they are.
//
// Levels are built bottom-up. A lone trailing node on an odd level is
// paired with itself (not zero-padded) when the next level is computed; the
// stored level keeps its odd count.
type Tree struct {
	leaves []Hash // domain-separated leaf hashes, insertion order
	levels [][]Hash
}

// New builds a tree from raw leaf data, in insertion order.
func New(leafData [][]byte) *Tree {
	t := &Tree{}
	for _, d := range leafData {
		t.leaves = append(t.leaves, LeafHash(d))
	}
	t.rebuild()
	return t
}

// NewFromLeafHashes builds a tree from already-hashed leaves (e.g. audit
// event current_hash values, which are Merkle leaves by value, not by
// re-hashing raw bytes a second time).
func NewFromLeafHashes(leaves []Hash) *Tree {
	t := &Tree{leaves: append([]Hash{}, leaves...)}
	t.rebuild()
	return t
}

// Root returns the tree's root hash. The empty tree's root is Digest(nil).
func (t *Tree) Root() Hash {
	if len(t.levels) == 0 {
		return Digest(nil)
	}
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int { return len(t.leaves) }

// Contains reports whether hash appears anywhere among the stored leaves.
func (t *Tree) Contains(hash Hash) bool {
	for _, l := range t.leaves {
		if l.Equal(hash) {
			return true
		}
	}
	return false
}

// Insert appends a new leaf and rebuilds every level from the leaves, so
// each call costs O(n); it does not recompute only the affected path.
func (t *Tree) Insert(data []byte) {
	t.leaves = append(t.leaves, LeafHash(data))
	t.rebuild()
}

// Proof is the sequence of sibling hashes plus the index's bit pattern
// (0 = left, 1 = right at that level) needed to recompute the root from a
// single leaf.
type Proof struct {
	Siblings []Hash
	Bits     []bool
	Index    int
}

// Proof builds an inclusion proof for the leaf at index.
func (t *Tree) Proof(index int) (Proof, error) {
	if index < 0 || index >= len(t.leaves) {
		return Proof{}, errIndexOutOfRange
	}
	p := Proof{Index: index}
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		isRight := idx%2 == 1
		var siblingIdx int
		if isRight {
			siblingIdx = idx - 1
		} else {
			siblingIdx = idx + 1
			if siblingIdx >= len(nodes) {
				// odd trailing node duplicated against itself
				siblingIdx = idx
			}
		}
		p.Siblings = append(p.Siblings, nodes[siblingIdx])
		p.Bits = append(p.Bits, isRight)
		idx /= 2
	}
	return p, nil
}

// Verify checks that leafData, combined through proof, produces root.
func Verify(leafData []byte, proof Proof, root Hash) bool {
	current := LeafHash(leafData)
	for i, sibling := range proof.Siblings {
		if proof.Bits[i] {
			current = NodeHash(sibling, current)
		} else {
			current = NodeHash(current, sibling)
		}
	}
	return current.Equal(root)
}

// VerifyLeafHash is Verify's variant for callers that already hold the
// domain-separated leaf hash (e.g. an audit current_hash used as a leaf).
func VerifyLeafHash(leaf Hash, proof Proof, root Hash) bool {
	current := leaf
	for i, sibling := range proof.Siblings {
		if proof.Bits[i] {
			current = NodeHash(sibling, current)
		} else {
			current = NodeHash(current, sibling)
		}
	}
	return current.Equal(root)
}

// rebuild recomputes every level bottom-up. This is O(n) per insert, which
// satisfies amortized O(log n) only if the caller batches inserts; individual
// Insert calls here favor correctness and small trees (audit windows) over
// asymptotic optimality on very large leaf sets.
func (t *Tree) rebuild() {
	if len(t.leaves) == 0 {
		t.levels = nil
		return
	}
	levels := [][]Hash{append([]Hash{}, t.leaves...)}
	current := levels[0]
	for len(current) > 1 {
		next := make([]Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, NodeHash(current[i], current[i+1]))
			} else {
				// odd trailing node: duplicate before pairing
				next = append(next, NodeHash(current[i], current[i]))
			}
		}
		levels = append(levels, next)
		current = next
	}
	t.levels = levels
}

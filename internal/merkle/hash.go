// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package merkle implements the digest and Merkle-tree primitives shared by
// the audit ledger and the anchor sink: a fixed-width hash, domain-separated
// leaf/node hashing, tree construction with odd-level duplication, and
// inclusion proofs.
package merkle

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Size is the digest width in bytes.
const Size = sha256.Size

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// Hash is a fixed-width 32-byte digest.
type Hash [Size]byte

// Zero is the zero-value hash used as the genesis previous-hash.
var Zero Hash

// Digest hashes arbitrary bytes with no domain prefix. Used for the audit
// chain's current_hash, which has its own documented field composition and
// is not a Merkle leaf.
func Digest(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// LeafHash hashes data as a Merkle leaf: H(0x00 || data). Domain-separating
// leaves from internal nodes prevents an attacker from presenting an
// internal node's preimage as a valid leaf.
func LeafHash(data []byte) Hash {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// NodeHash combines two child hashes as H(0x01 || left || right).
func NodeHash(left, right Hash) Hash {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(left[:])
	h.Write(right[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Equal performs a constant-time comparison, required because hash equality
// checks guard tamper-detection logic.
func (h Hash) Equal(other Hash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the genesis zero-hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// HashFromHex parses a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != Size {
		return h, errWrongLength
	}
	copy(h[:], b)
	return h, nil
}

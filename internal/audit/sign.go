// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/vexlabs/vex/internal/merkle"
)

// Signer holds an Ed25519 keypair used for optional detached signatures
// over an event's current_hash. Grounded on the stdlib-only KeyPair
// pattern (GenerateKeyPair/Sign/Verify) rather than a third-party crypto
// library — Ed25519 is a stdlib primitive and no pack example improves on
// it for fixed-size detached signatures.
type Signer struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewSigner generates a fresh Ed25519 keypair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Signer{public: pub, private: priv}, nil
}

// SignerFromPrivateKey reconstructs a Signer from a stored seed.
func SignerFromPrivateKey(seed []byte) *Signer {
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{public: priv.Public().(ed25519.PublicKey), private: priv}
}

// PublicKey returns the verification key.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.public }

// Sign produces a detached signature over hash.
func (s *Signer) Sign(hash merkle.Hash) []byte {
	return ed25519.Sign(s.private, hash[:])
}

// Verify checks a detached signature over hash against a public key. It is
// independent of chain verification — a missing or invalid signature does
// not itself imply a broken chain.
func Verify(pub ed25519.PublicKey, hash merkle.Hash, signature []byte) bool {
	return ed25519.Verify(pub, hash[:], signature)
}

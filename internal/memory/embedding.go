// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// Embedder produces the vector persisted alongside episode content and used
// for cosine-similarity recall. Runtime polymorphism here is deliberate:
// deployments plug in external embedding backends.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// cosine computes cosine similarity between two vectors; mismatched or zero
// vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

const hashEmbedderDims = 256

// HashEmbedder is the deterministic, dependency-free fallback embedder:
// a hashed bag-of-words projection. It is not a semantic model; it exists
// so single-process deployments and tests get stable, meaningful-enough
// recall ordering without an embedding service.
type HashEmbedder struct{}

func (HashEmbedder) Dimensions() int { return hashEmbedderDims }

func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashEmbedderDims)
	for _, token := range tokenize(text) {
		sum := sha256.Sum256([]byte(token))
		idx := binary.BigEndian.Uint32(sum[:4]) % hashEmbedderDims
		// Sign from a second hash byte spreads tokens across both poles,
		// which keeps unrelated texts near-orthogonal.
		if sum[4]%2 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

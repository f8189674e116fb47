// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"bytes"
	"encoding/json"
	"sort"
)

// CanonicalJSON re-encodes v with sorted object keys, no insignificant
// whitespace, and fixed number formatting — the encoding diffs are hashed
// under before entering the chain computation.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonicalize(generic)); err != nil {
		return nil, err
	}
	// Encode appends a trailing newline; strip it so the byte sequence is
	// exactly the canonical form with no incidental suffix.
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return out, nil
}

// canonicalize recursively rebuilds maps as key-sorted ordered structures.
// encoding/json already marshals map[string]any keys in sorted order, so
// the recursive walk exists to normalize nested maps/slices consistently
// rather than to re-implement sorting itself.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = canonicalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return val
	}
}

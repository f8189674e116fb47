// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package anchor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/merkle"
	"github.com/vexlabs/vex/internal/vexerr"
)

// FileBackend appends one JSON object per line to a local file: the default
// development/single-node anchor sink.
type FileBackend struct {
	path  string
	clock clock.Clock
}

// NewFileBackend validates that path resolves inside baseDir (no ".."
// traversal) before returning a usable backend.
func NewFileBackend(path, baseDir string, c clock.Clock) (*FileBackend, error) {
	if strings.Contains(path, "..") {
		return nil, vexerr.New(vexerr.Configuration, "anchor.NewFileBackend", "path must not contain '..'")
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(baseDir, path)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, vexerr.Wrap(vexerr.Configuration, "anchor.NewFileBackend", "resolve base dir", err)
	}
	absResolved, err := filepath.Abs(resolved)
	if err != nil {
		return nil, vexerr.Wrap(vexerr.Configuration, "anchor.NewFileBackend", "resolve path", err)
	}
	rel, err := filepath.Rel(absBase, absResolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, vexerr.New(vexerr.Configuration, "anchor.NewFileBackend", "path escapes base directory")
	}
	return &FileBackend{path: absResolved, clock: c}, nil
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) Healthy(ctx context.Context) bool {
	dir := filepath.Dir(f.path)
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Anchor appends {root_hex, metadata, timestamp} as one JSON-Lines record.
func (f *FileBackend) Anchor(ctx context.Context, root merkle.Hash, meta Metadata) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Cancelled, "anchor.FileBackend.Anchor", "context cancelled", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.FileBackend.Anchor", "create anchor dir", err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.FileBackend.Anchor", "open anchor file", err)
	}
	defer file.Close()

	// The locator is the byte offset the record starts at.
	info, err := file.Stat()
	if err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.FileBackend.Anchor", "stat anchor file", err)
	}
	receipt := Receipt{
		Backend:     f.Name(),
		RootHex:     root.Hex(),
		Locator:     strconv.FormatInt(info.Size(), 10),
		Metadata:    meta,
		TimestampMs: f.clock.NowMillis(),
	}

	line, err := json.Marshal(receipt)
	if err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Input, "anchor.FileBackend.Anchor", "marshal receipt", err)
	}

	if _, err := file.Write(append(line, '\n')); err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.FileBackend.Anchor", "append receipt", err)
	}
	return receipt, nil
}

// TailLast reads the last JSON-Lines record, used by vexctl's "anchor tail"
// and by S6's round-trip test.
func (f *FileBackend) TailLast() (Receipt, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.FileBackend.TailLast", "read anchor file", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		return Receipt{}, vexerr.New(vexerr.Input, "anchor.FileBackend.TailLast", "anchor file is empty")
	}
	var r Receipt
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &r); err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Storage, "anchor.FileBackend.TailLast", "parse last line", err)
	}
	return r, nil
}

var _ Backend = (*FileBackend)(nil)

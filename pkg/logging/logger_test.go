// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseLevel(tc.in), "input %q", tc.in)
	}
}

func TestJSONOutputCarriesServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Service: "vexd", JSON: true, Writer: &buf})

	l.Slog().Info("audit event appended", "tenant", "t1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "vexd", line["service"])
	assert.Equal(t, "audit event appended", line["msg"])
	assert.Equal(t, "t1", line["tenant"])
}

func TestComponentAttribute(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Service: "vexd", JSON: true, Writer: &buf})

	l.Component("debate").Info("debate sealed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debate", line["component"])
	assert.Equal(t, "vexd", line["service"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, JSON: true, Writer: &buf})

	l.Slog().Info("dropped")
	l.Slog().Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestQuietDiscardsStream(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Quiet: true, Writer: &buf})

	l.Slog().Error("nothing to see")
	assert.Zero(t, buf.Len())
}

func TestFileLoggingForcesJSON(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Service: "vexd", LogDir: dir, Quiet: true})

	l.Slog().Info("persisted line", "tenant", "t1")
	require.NoError(t, l.Close())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), "vexd_"))

	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "persisted line", line["msg"])
	assert.Equal(t, "t1", line["tenant"])
}

func TestFileAndStreamBothReceiveLines(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l := New(Config{Service: "vexd", LogDir: dir, Writer: &buf})

	l.Slog().Info("both sinks")
	require.NoError(t, l.Close())

	assert.Contains(t, buf.String(), "both sinks")
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "both sinks")
}

func TestUnusableLogDirDegradesToStream(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{LogDir: "/proc/not-writable/logs", JSON: true, Writer: &buf})

	l.Slog().Info("still logged")
	assert.Contains(t, buf.String(), "still logged")
	require.NoError(t, l.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(Config{Service: "vexd", LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.NoError(t, Default().Close())
}

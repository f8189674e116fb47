// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the structured logger every VEX component logs
// through. One logger is created at process start; each subsystem receives
// a child tagged with its name via Component, so every line carries
// service and component attributes and can be filtered downstream.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a configuration string to a Level. Unknown values fall
// back to Info; absence of configuration is never a fault.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config describes one process-wide logger.
type Config struct {
	// Level is the minimum severity emitted. The zero value is LevelDebug;
	// ParseLevel maps an empty or unknown string to LevelInfo.
	Level Level

	// Service is stamped on every line as the "service" attribute.
	Service string

	// JSON selects machine-parseable output. File logging always uses
	// JSON, so setting LogDir implies it.
	JSON bool

	// Quiet drops the stream output; useful for daemons whose stderr is
	// not monitored. With LogDir also unset, logging is discarded.
	Quiet bool

	// LogDir, when set, appends to "<Service>_<YYYY-MM-DD>.log" inside
	// the directory (created with 0750 if absent).
	LogDir string

	// Writer overrides the default stderr stream; tests point it at a
	// buffer.
	Writer io.Writer
}

// Logger owns the handler and the log file, if any.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New builds a logger from cfg. Construction never fails: an unusable
// LogDir degrades to stream-only logging rather than blocking startup.
func New(cfg Config) *Logger {
	stream := cfg.Writer
	if stream == nil {
		stream = os.Stderr
	}
	if cfg.Quiet {
		stream = nil
	}

	l := &Logger{}
	var out io.Writer
	if cfg.LogDir != "" {
		if f := openLogFile(cfg.LogDir, cfg.Service); f != nil {
			l.file = f
			cfg.JSON = true
			if stream != nil {
				out = io.MultiWriter(stream, f)
			} else {
				out = f
			}
		}
	}
	if out == nil {
		out = stream
	}
	if out == nil {
		out = io.Discard
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	l.slog = slog.New(handler)
	return l
}

// Default returns an Info-level text logger on stderr with service "vex".
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "vex"})
}

// Slog exposes the underlying *slog.Logger for call sites that take the
// standard type.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Component returns a child logger stamped with the component's name —
// the handle injected into each subsystem constructor.
func (l *Logger) Component(name string) *slog.Logger {
	return l.slog.With("component", name)
}

// Close syncs and closes the log file, if one was opened. Safe to call
// more than once.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// openLogFile opens the dated append-only log file, returning nil on any
// failure so logging degrades instead of failing startup.
func openLogFile(dir, service string) *os.File {
	if service == "" {
		service = "vex"
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil
	}
	return f
}

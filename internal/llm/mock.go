// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"sync"

	"github.com/vexlabs/vex/internal/vexerr"
)

// Mock is a scripted provider for tests: it replays queued responses in
// order and records every request it saw.
type Mock struct {
	mu        sync.Mutex
	script    []mockStep
	requests  []Request
	available bool
}

type mockStep struct {
	content string
	err     error
}

// NewMock starts with an empty script and reports available.
func NewMock() *Mock { return &Mock{available: true} }

// Respond queues a successful completion.
func (m *Mock) Respond(content string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{content: content})
	return m
}

// Fail queues an error step.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{err: err})
	return m
}

// SetAvailable controls the availability probe.
func (m *Mock) SetAvailable(v bool) { m.mu.Lock(); m.available = v; m.mu.Unlock() }

// Requests returns a copy of every request seen so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request{}, m.requests...)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Available(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *Mock) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, vexerr.Wrap(vexerr.Cancelled, "llm.Mock.Complete", "context cancelled", err)
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		m.mu.Unlock()
		return Response{}, vexerr.New(vexerr.Provider, "llm.Mock.Complete", "script exhausted")
	}
	step := m.script[0]
	m.script = m.script[1:]
	m.mu.Unlock()

	if step.err != nil {
		return Response{}, vexerr.Wrap(vexerr.Provider, "llm.Mock.Complete", "scripted failure", step.err)
	}
	return Response{Content: step.content, Structured: extractStructured(step.content)}, nil
}

var _ Provider = (*Mock)(nil)

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
	"time"

	"github.com/vexlabs/vex/internal/vexerr"
)

// breakerState is the circuit breaker's state machine:
//
//	CLOSED ──[failure threshold]──► OPEN
//	   ▲                              │
//	   └───[success]◄── HALF_OPEN ◄──┘ [timeout]
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// BreakerConfig controls how the circuit responds to provider failures.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before opening. Default 5.
	FailureThreshold int
	// SuccessThreshold is consecutive half-open successes to close. Default 2.
	SuccessThreshold int
	// OpenTimeout is how long to reject before probing half-open. Default 30s.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 30 * time.Second}
}

// Breaker wraps a provider with a circuit breaker so a failing backend
// fails fast instead of stalling every debate turn on its timeout. Safe
// for concurrent use.
type Breaker struct {
	inner Provider
	cfg   BreakerConfig

	mu        sync.Mutex
	state     breakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker applies cfg defaults for zero fields.
func NewBreaker(inner Provider, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	return &Breaker{inner: inner, cfg: cfg}
}

func (b *Breaker) Name() string { return b.inner.Name() }

// Available reports false while the circuit is open — the probe itself
// would be rejected.
func (b *Breaker) Available(ctx context.Context) bool {
	if !b.allow() {
		return false
	}
	return b.inner.Available(ctx)
}

func (b *Breaker) Complete(ctx context.Context, req Request) (Response, error) {
	if !b.allow() {
		return Response{}, vexerr.New(vexerr.Provider, "llm.Breaker.Complete", "circuit open")
	}
	resp, err := b.inner.Complete(ctx, req)
	b.record(err == nil)
	return resp, err
}

// allow reports whether a call may proceed, transitioning open→half-open
// after the timeout.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenTimeout {
			b.state = breakerHalfOpen
			b.successes = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		switch b.state {
		case breakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = breakerClosed
				b.failures = 0
			}
		default:
			b.failures = 0
		}
		return
	}
	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = time.Now()
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = breakerOpen
			b.openedAt = time.Now()
		}
	}
}

var _ Provider = (*Breaker)(nil)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexlabs/vex/internal/vexerr"
)

func TestExtractStructured(t *testing.T) {
	assert.Nil(t, extractStructured("plain prose, no json"))
	assert.NotNil(t, extractStructured(`{"is_challenge": true}`))
	assert.NotNil(t, extractStructured("Sure, here you go:\n{\"confidence\": 0.9}\nDone."))
	assert.Nil(t, extractStructured("{broken"))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	mock := NewMock().
		Fail(errors.New("transient")).
		Fail(errors.New("transient")).
		Respond("ok")

	resp, err := CompleteWithRetry(context.Background(), mock, Request{Prompt: "p"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Len(t, mock.Requests(), 3)
}

func TestRetryExhaustionIsProviderError(t *testing.T) {
	mock := NewMock().
		Fail(errors.New("down")).
		Fail(errors.New("down")).
		Fail(errors.New("down"))

	_, err := CompleteWithRetry(context.Background(), mock, Request{Prompt: "p"}, nil)
	require.Error(t, err)
	assert.True(t, vexerr.Is(err, vexerr.Provider))
}

func TestRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := NewMock().Respond("never reached")

	_, err := CompleteWithRetry(ctx, mock, Request{Prompt: "p"}, nil)
	require.Error(t, err)
	assert.True(t, vexerr.Is(err, vexerr.Cancelled))
	assert.Empty(t, mock.Requests())
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	mock := NewMock()
	for i := 0; i < 3; i++ {
		mock.Fail(errors.New("down"))
	}
	b := NewBreaker(mock, BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Complete(ctx, Request{Prompt: "p"})
		require.Error(t, err)
	}

	// Circuit is now open: calls fail fast without reaching the provider.
	_, err := b.Complete(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Len(t, mock.Requests(), 3)

	// After the open timeout, a half-open success closes the circuit.
	time.Sleep(15 * time.Millisecond)
	mock.Respond("recovered")
	resp, err := b.Complete(ctx, Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
}

func TestRateLimitedPassesThrough(t *testing.T) {
	mock := NewMock().Respond("a").Respond("b")
	rl := NewRateLimited(mock, 1000, 2)
	ctx := context.Background()

	for _, want := range []string{"a", "b"} {
		resp, err := rl.Complete(ctx, Request{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
}

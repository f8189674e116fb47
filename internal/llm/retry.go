// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/vexlabs/vex/internal/vexerr"
)

const (
	retryAttempts    = 3
	retryBaseBackoff = 500 * time.Millisecond
)

// CompleteWithRetry runs provider.Complete with the debate engine's bounded
// retry policy: three attempts with exponential backoff. Cancellation is
// checked before every attempt and never retried. On exhaustion the last
// Provider error is returned; the caller converts it to an inconclusive
// debate result rather than raising it further.
func CompleteWithRetry(ctx context.Context, provider Provider, req Request, log *slog.Logger) (Response, error) {
	if log == nil {
		log = slog.Default()
	}
	var lastErr error
	backoff := retryBaseBackoff
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, vexerr.Wrap(vexerr.Cancelled, "llm.CompleteWithRetry", "context cancelled", err)
		}
		resp, err := provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if vexerr.Is(err, vexerr.Cancelled) {
			return Response{}, err
		}
		lastErr = err
		log.Warn("llm call failed", "provider", provider.Name(), "attempt", attempt, "error", err)
		if attempt < retryAttempts {
			select {
			case <-ctx.Done():
				return Response{}, vexerr.Wrap(vexerr.Cancelled, "llm.CompleteWithRetry", "context cancelled during backoff", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return Response{}, vexerr.Wrap(vexerr.Provider, "llm.CompleteWithRetry", "attempts exhausted", lastErr)
}

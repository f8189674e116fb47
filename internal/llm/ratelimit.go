// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/vexlabs/vex/internal/vexerr"
)

// RateLimited shapes calls to an inner provider with a token bucket. It is
// transparent: same surface in, same surface out.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
func NewRateLimited(inner Provider, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) Available(ctx context.Context) bool { return r.inner.Available(ctx) }

func (r *RateLimited) Complete(ctx context.Context, req Request) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Response{}, vexerr.Wrap(vexerr.Cancelled, "llm.RateLimited.Complete", "rate limit wait", err)
	}
	return r.inner.Complete(ctx, req)
}

var _ Provider = (*RateLimited)(nil)

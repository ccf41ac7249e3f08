package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Embedder so provider calls never exceed a fixed rate.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
func NewRateLimited(next Embedder, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) (Vector, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Embed(ctx, text)
}

func (r *RateLimited) Dims() int { return r.next.Dims() }

// Ping forwards to the wrapped embedder when it supports health checks.
func (r *RateLimited) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

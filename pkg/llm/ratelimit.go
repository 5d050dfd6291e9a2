package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedProvider shares one token bucket across every caller of the
// wrapped provider, so concurrent analyses stay under the provider quota.
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// WithRateLimit wraps p so every call first waits on limiter
func WithRateLimit(p Provider, limiter *rate.Limiter) *RateLimitedProvider {
	return &RateLimitedProvider{provider: p, limiter: limiter}
}

// Complete waits for a token, then delegates to the wrapped provider
func (r *RateLimitedProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}
	return r.provider.Complete(ctx, req)
}

// Name returns the wrapped provider name
func (r *RateLimitedProvider) Name() string {
	return r.provider.Name()
}

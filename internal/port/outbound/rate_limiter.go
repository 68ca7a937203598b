package outbound

import (
	"context"
	"time"
)

// RateLimitConfig parameterizes one GCRA check: rate requests per period,
// with burst allowing that many requests to clear at once.
type RateLimitConfig struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// RateLimitResult is the outcome of one Allow call.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}

// RateLimiter backs rule.ClassRateLimit rules: a rule in that class is
// checked against a key derived from the rule id and the event's actor instead of
// the vector-similarity kernel (spec.md's rate-limit enforcement class is
// evaluated as hard admission control, not semantic comparison).
type RateLimiter interface {
	Allow(ctx context.Context, key string, config RateLimitConfig) (RateLimitResult, error)
}

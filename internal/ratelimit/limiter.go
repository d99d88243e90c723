// Package ratelimit provides keyed request rate limiting. It ships a
// hybrid-window limiter and a token bucket limiter behind one interface,
// with an optional distributed counter store for multi-instance
// deployments.
package ratelimit

import (
	"context"
	"time"
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowN checks if n requests are allowed for the given key.
	AllowN(ctx context.Context, key string, n int) (*Result, error)

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Result represents the result of a rate limit check. Limit, Remaining
// and ResetAt are populated on every check, allowed or denied, so callers
// can emit standard throttling headers.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is when the current window resets.
	ResetAt time.Time

	// RetryAfter is how long to wait before retrying. Non-zero only when
	// denied.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (r *Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	secs := int(r.RetryAfter / time.Second)
	if r.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Algorithm represents the rate limiting algorithm type.
type Algorithm string

const (
	// AlgorithmWindow uses the hybrid fixed/sliding window algorithm.
	AlgorithmWindow Algorithm = "window"

	// AlgorithmTokenBucket uses the token bucket algorithm.
	AlgorithmTokenBucket Algorithm = "token_bucket"
)

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// BucketLimiter applies a token bucket per key: sustained throughput of
// limit/window with bursts up to the configured burst size. Suited to
// profiles where short spikes are fine but the average must hold.
type BucketLimiter struct {
	limit  int
	window time.Duration
	burst  int

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewBucketLimiter creates a token bucket limiter refilling at
// limit/window. A zero burst defaults to the limit.
func NewBucketLimiter(limit int, window time.Duration, burst, maxKeys int) (*BucketLimiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate window must be positive, got %v", window)
	}
	if burst <= 0 {
		burst = limit
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	l := &BucketLimiter{
		limit:  limit,
		window: window,
		burst:  burst,
	}
	l.buckets = expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, 2*window)
	return l, nil
}

// Allow implements Limiter.
func (l *BucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *BucketLimiter) AllowN(_ context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		n = 1
	}
	lim := l.bucket(key)

	now := time.Now()
	allowed := lim.AllowN(now, n)

	tokens := lim.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	res := &Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
	}
	if !allowed {
		// Time for one token to refill.
		res.RetryAfter = time.Duration(float64(time.Second) / float64(lim.Limit()))
	}
	return res, nil
}

// Reset implements Limiter.
func (l *BucketLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	l.buckets.Remove(key)
	l.mu.Unlock()
	return nil
}

func (l *BucketLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.buckets.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(float64(l.limit)/l.window.Seconds()), l.burst)
	l.buckets.Add(key, lim)
	return lim
}

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/ratelimit/store"
)

// DefaultMaxKeys bounds the number of live records a WindowLimiter holds.
const DefaultMaxKeys = 100_000

// DefaultMirrorTimeout bounds one shared-counter round-trip.
const DefaultMirrorTimeout = 2 * time.Second

// WindowLimiter counts requests per key in a window anchored at the key's
// first request. Records live in a size- and TTL-bounded cache; an
// abandoned key costs nothing after its window lapses.
type WindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	logger observability.Logger

	mu      sync.Mutex
	records *expirable.LRU[string, *windowRecord]

	// mirror, when set, keeps a shared counter per wall-clock window
	// bucket so several instances converge on one total.
	mirror store.Store
}

type windowRecord struct {
	mu            sync.Mutex
	count         int
	windowResetAt time.Time
}

// WindowOption is a functional option for the WindowLimiter.
type WindowOption func(*windowOptions)

type windowOptions struct {
	maxKeys int
	now     func() time.Time
	logger  observability.Logger
	mirror  store.Store
}

// WithMaxKeys bounds the record cache.
func WithMaxKeys(n int) WindowOption {
	return func(o *windowOptions) {
		if n > 0 {
			o.maxKeys = n
		}
	}
}

// WithWindowLogger sets the logger for the limiter.
func WithWindowLogger(logger observability.Logger) WindowOption {
	return func(o *windowOptions) {
		o.logger = logger
	}
}

// WithWindowClock overrides the time source. Tests only.
func WithWindowClock(now func() time.Time) WindowOption {
	return func(o *windowOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMirror attaches a distributed counter store. Mirror failures degrade
// to the local count with a logged warning.
func WithMirror(s store.Store) WindowOption {
	return func(o *windowOptions) {
		o.mirror = s
	}
}

// NewWindowLimiter creates a limiter allowing limit requests per window
// per key.
func NewWindowLimiter(limit int, window time.Duration, opts ...WindowOption) (*WindowLimiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate window must be positive, got %v", window)
	}

	o := &windowOptions{
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	l := &WindowLimiter{
		limit:  limit,
		window: window,
		now:    o.now,
		logger: o.logger,
		mirror: o.mirror,
	}
	// Records older than a full window are dead weight; keep them for two
	// windows so a record is never evicted mid-window.
	l.records = expirable.NewLRU[string, *windowRecord](o.maxKeys, nil, 2*window)

	return l, nil
}

// Allow implements Limiter.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *WindowLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		n = 1
	}
	now := l.now()

	rec := l.record(key)
	rec.mu.Lock()
	if now.After(rec.windowResetAt) {
		rec.count = 0
		rec.windowResetAt = now.Add(l.window)
	}
	rec.count += n
	count := rec.count
	resetAt := rec.windowResetAt
	rec.mu.Unlock()

	// The local count is settled; the shared round-trip happens outside
	// the record lock so a slow mirror cannot stall other requests on
	// this key.
	if l.mirror != nil {
		if shared, err := l.mirrorCount(ctx, key, now, n); err != nil {
			l.logger.Warn("rate limit mirror unavailable, using local count",
				observability.String("key", key),
				observability.Error(err))
		} else if int(shared) > count {
			count = int(shared)
		}
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	res := &Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
	}
	return res, nil
}

// Reset implements Limiter.
func (l *WindowLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	l.records.Remove(key)
	l.mu.Unlock()

	if l.mirror != nil {
		if err := l.mirror.Delete(ctx, l.mirrorKey(key, l.now())); err != nil {
			return fmt.Errorf("reset mirror for %s: %w", key, err)
		}
	}
	return nil
}

// record returns the live record for key, creating it if needed. Creation
// races resolve to a single record under l.mu.
func (l *WindowLimiter) record(key string) *windowRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records.Get(key); ok {
		return rec
	}
	rec := &windowRecord{windowResetAt: l.now().Add(l.window)}
	l.records.Add(key, rec)
	return rec
}

// mirrorCount bumps the shared counter for the wall-clock bucket holding
// now and returns the converged total. Local windows are anchored at each
// key's first request, so the bucket is derived from the clock, not from
// the record: every instance lands on the same key for the same instant.
func (l *WindowLimiter) mirrorCount(ctx context.Context, key string, now time.Time, n int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultMirrorTimeout)
	defer cancel()
	return l.mirror.IncrementWithExpiry(ctx, l.mirrorKey(key, now), int64(n), 2*l.window)
}

// mirrorKey returns the shared-counter key for the window bucket holding t.
func (l *WindowLimiter) mirrorKey(key string, t time.Time) string {
	return fmt.Sprintf("%s:%d", key, t.Truncate(l.window).Unix())
}

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearancehq/tiergate/internal/ratelimit/store"
)

// ============================================================================
// WindowLimiter Tests
// ============================================================================

func TestNewWindowLimiter_Validation(t *testing.T) {
	_, err := NewWindowLimiter(0, time.Minute)
	assert.Error(t, err)

	_, err = NewWindowLimiter(5, 0)
	assert.Error(t, err)
}

func TestWindowLimiter_AllowUpToLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, err := NewWindowLimiter(5, time.Minute, WithWindowClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 5, res.Limit)
		assert.Equal(t, 5-i, res.Remaining)
		assert.Equal(t, now.Add(time.Minute), res.ResetAt)
		assert.Zero(t, res.RetryAfter)
	}

	// Sixth request in the same window is denied with retry metadata.
	now = now.Add(30 * time.Second)
	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30*time.Second, res.RetryAfter)
	assert.Equal(t, 30, res.RetryAfterSeconds())
}

func TestWindowLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, err := NewWindowLimiter(2, time.Minute, WithWindowClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// Past the window the key starts fresh.
	now = now.Add(61 * time.Second)
	res, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, now.Add(time.Minute), res.ResetAt)
}

func TestWindowLimiter_KeysAreIndependent(t *testing.T) {
	l, err := NewWindowLimiter(1, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestWindowLimiter_Reset(t *testing.T) {
	l, err := NewWindowLimiter(1, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "k"))

	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// Concurrent increments on one key must account for every request.
func TestWindowLimiter_ConcurrentCounts(t *testing.T) {
	const limit = 100
	const workers = 20
	const perWorker = 10

	l, err := NewWindowLimiter(limit, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				res, err := l.Allow(ctx, "shared")
				if err != nil {
					continue
				}
				if res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 200 requests against a limit of 100: exactly 100 admitted.
	assert.Equal(t, limit, allowed)

	res, err := l.Allow(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestWindowLimiter_BoundedKeys(t *testing.T) {
	l, err := NewWindowLimiter(1, time.Minute, WithMaxKeys(8))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := l.Allow(ctx, string(rune('a'+i%26))+string(rune('a'+i/26)))
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, l.records.Len(), 8)
}

// Two limiter instances sharing a mirror converge on one total.
func TestWindowLimiter_Mirror(t *testing.T) {
	mirror := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	a, err := NewWindowLimiter(3, time.Minute, WithWindowClock(clock), WithMirror(mirror))
	require.NoError(t, err)
	b, err := NewWindowLimiter(3, time.Minute, WithWindowClock(clock), WithMirror(mirror))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := a.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// Fourth request across the pair is over the shared limit.
	res, err = b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

// Instances never see each other's first request, so their local window
// anchors differ. The shared bucket is derived from the wall clock, and
// the pair must still converge on one total.
func TestWindowLimiter_MirrorConvergesAcrossSkewedClocks(t *testing.T) {
	mirror := store.NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)

	a, err := NewWindowLimiter(3, time.Minute,
		WithWindowClock(func() time.Time { return base }), WithMirror(mirror))
	require.NoError(t, err)
	b, err := NewWindowLimiter(3, time.Minute,
		WithWindowClock(func() time.Time { return base.Add(time.Second) }), WithMirror(mirror))
	require.NoError(t, err)
	ctx := context.Background()

	// Instance A consumes the whole limit.
	for i := 1; i <= 3; i++ {
		res, err := a.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d on a", i)
	}

	// Instance B's first request is the fourth overall and must be denied
	// even though its own local count is 1.
	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

// Limiters on either side of a bucket boundary count separately.
func TestWindowLimiter_MirrorBucketsAreWindowAligned(t *testing.T) {
	l, err := NewWindowLimiter(3, time.Minute)
	require.NoError(t, err)

	inBucket := time.Date(2026, 3, 1, 12, 0, 59, 0, time.UTC)
	nextBucket := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	assert.Equal(t, l.mirrorKey("k", inBucket), l.mirrorKey("k", inBucket.Add(-59*time.Second)))
	assert.NotEqual(t, l.mirrorKey("k", inBucket), l.mirrorKey("k", nextBucket))
}

// A dead mirror degrades to local counting instead of failing the check.
func TestWindowLimiter_MirrorUnavailable(t *testing.T) {
	l, err := NewWindowLimiter(2, time.Minute, WithMirror(failingStore{}))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (int64, error) {
	return 0, assert.AnError
}
func (failingStore) IncrementWithExpiry(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, assert.AnError
}
func (failingStore) Delete(context.Context, string) error { return assert.AnError }
func (failingStore) Close() error                         { return nil }

func TestWindowLimiter_RetryAfterSecondsRoundsUp(t *testing.T) {
	res := &Result{RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, 2, res.RetryAfterSeconds())

	res = &Result{RetryAfter: 2 * time.Second}
	assert.Equal(t, 2, res.RetryAfterSeconds())

	res = &Result{}
	assert.Equal(t, 0, res.RetryAfterSeconds())
}

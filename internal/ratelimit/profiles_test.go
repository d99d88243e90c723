package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Registry Tests
// ============================================================================

func TestNewRegistry_Defaults(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	for _, name := range []string{ProfileAnonymous, ProfileAuthenticated, ProfileAdmin} {
		_, ok := r.Limiter(name)
		assert.True(t, ok, "profile %s", name)
	}
}

func TestNewRegistry_InvalidProfile(t *testing.T) {
	_, err := NewRegistry([]Profile{{Name: "bad", Limit: 0, Window: time.Minute}})
	assert.Error(t, err)

	_, err = NewRegistry([]Profile{{Name: "bad", Limit: 5, Window: time.Minute, Algorithm: "nope"}})
	assert.Error(t, err)

	_, err = NewRegistry([]Profile{{Limit: 5, Window: time.Minute}})
	assert.Error(t, err)
}

func TestRegistry_Allow(t *testing.T) {
	r, err := NewRegistry([]Profile{
		{Name: ProfileAnonymous, Limit: 2, Window: time.Minute},
		{Name: ProfileAdmin, Limit: 1, Window: time.Minute},
	})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := r.Allow(ctx, ProfileAdmin, "admin:x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = r.Allow(ctx, ProfileAdmin, "admin:x")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRegistry_UnknownProfileFallsBackToAnonymous(t *testing.T) {
	r, err := NewRegistry([]Profile{{Name: ProfileAnonymous, Limit: 1, Window: time.Minute}})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := r.Allow(ctx, "mystery", "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = r.Allow(ctx, "mystery", "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRegistry_Reload(t *testing.T) {
	r, err := NewRegistry([]Profile{{Name: ProfileAnonymous, Limit: 1, Window: time.Minute}})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := r.Allow(ctx, ProfileAnonymous, "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	res, err = r.Allow(ctx, ProfileAnonymous, "k")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// Reload raises the limit; counts start over.
	require.NoError(t, r.Reload([]Profile{{Name: ProfileAnonymous, Limit: 5, Window: time.Minute}}))

	res, err = r.Allow(ctx, ProfileAnonymous, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
}

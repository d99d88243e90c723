package session

import (
	"context"
	"errors"
	"time"

	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/tier"
)

// Policy decides what happens when the primary backend is unavailable.
type Policy string

const (
	// PolicyFailClosed treats backend failure as "no session". Production
	// default.
	PolicyFailClosed Policy = "fail-closed"

	// PolicyFailOpen serves reads and writes from the in-process fallback
	// while the backend is down. Sessions written during the outage are
	// local to this instance.
	PolicyFailOpen Policy = "fail-open"
)

// FallbackStore layers an in-process store behind a primary backend.
// Writes go to both so the fallback can serve a fail-open outage; reads
// hit the primary first.
type FallbackStore struct {
	primary  Store
	fallback Store
	policy   Policy
	logger   observability.Logger
}

// NewFallbackStore wraps primary with an in-process fallback under the
// given policy. An unknown policy is treated as fail-closed.
func NewFallbackStore(primary Store, fallback Store, policy Policy, logger observability.Logger) *FallbackStore {
	if policy != PolicyFailOpen {
		policy = PolicyFailClosed
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		logger:   logger,
	}
}

// Get implements Store.
func (s *FallbackStore) Get(ctx context.Context, handle string) (*Record, error) {
	rec, err := s.primary.Get(ctx, handle)
	if err == nil || !errors.Is(err, ErrStoreUnavailable) {
		return rec, err
	}
	if s.policy == PolicyFailOpen {
		s.logger.Warn("session backend unavailable, serving from local fallback",
			observability.Error(err))
		return s.fallback.Get(ctx, handle)
	}
	return nil, err
}

// GetTier implements Store. Under fail-closed, backend failure surfaces as
// ErrStoreUnavailable so callers can distinguish "no session" from "could
// not check".
func (s *FallbackStore) GetTier(ctx context.Context, handle string) (tier.Tier, error) {
	return tierOf(ctx, s, handle)
}

// Put implements Store.
func (s *FallbackStore) Put(ctx context.Context, handle string, rec *Record, ttl time.Duration) error {
	if err := s.fallback.Put(ctx, handle, rec, ttl); err != nil {
		return err
	}
	err := s.primary.Put(ctx, handle, rec, ttl)
	if errors.Is(err, ErrStoreUnavailable) && s.policy == PolicyFailOpen {
		s.logger.Warn("session backend unavailable, session is local to this instance",
			observability.String("handle", handle[:minInt(8, len(handle))]),
			observability.Error(err))
		return nil
	}
	return err
}

// Invalidate implements Store. Both layers are always cleared; a logout
// must not survive a backend blip.
func (s *FallbackStore) Invalidate(ctx context.Context, handle string) error {
	fbErr := s.fallback.Invalidate(ctx, handle)
	if err := s.primary.Invalidate(ctx, handle); err != nil {
		return err
	}
	return fbErr
}

// Close implements Store.
func (s *FallbackStore) Close() error {
	fbErr := s.fallback.Close()
	if err := s.primary.Close(); err != nil {
		return err
	}
	return fbErr
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

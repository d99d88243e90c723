package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clearancehq/tiergate/internal/tier"
)

// Common session store errors.
var (
	// ErrSessionNotFound is returned when no live record exists for a
	// handle. Expired records count as not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable is returned when the backend cannot be reached.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Record is the server-side state of one session.
type Record struct {
	// PrincipalID identifies the authenticated principal.
	PrincipalID string `json:"principal_id"`

	// Tier is the access tier granted to the session.
	Tier tier.Tier `json:"tier"`

	// Role is the principal's role at login time.
	Role string `json:"role,omitempty"`

	// CreatedAt is when the session was established.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the session stops being valid. Reads past this
	// instant behave as if no record existed.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Store persists session records.
type Store interface {
	// Get returns the live record for the handle, or ErrSessionNotFound.
	Get(ctx context.Context, handle string) (*Record, error)

	// GetTier returns the tier of the live session for the handle.
	// Missing or expired sessions return tier.None with no error;
	// backend failures return ErrStoreUnavailable.
	GetTier(ctx context.Context, handle string) (tier.Tier, error)

	// Put stores the record under the handle with the given TTL.
	Put(ctx context.Context, handle string, rec *Record, ttl time.Duration) error

	// Invalidate removes the record for the handle. Removing an absent
	// handle is not an error.
	Invalidate(ctx context.Context, handle string) error

	// Close releases backend resources.
	Close() error
}

// NewHandle returns a fresh opaque session handle.
func NewHandle() string {
	return uuid.NewString()
}

// tierOf implements the shared GetTier contract on top of Get.
func tierOf(ctx context.Context, s Store, handle string) (tier.Tier, error) {
	rec, err := s.Get(ctx, handle)
	switch {
	case err == nil:
		return rec.Tier, nil
	case errors.Is(err, ErrSessionNotFound):
		return tier.None, nil
	default:
		return tier.None, err
	}
}

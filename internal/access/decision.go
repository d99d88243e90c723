// Package access produces authorization decisions for tiered content.
// A Decision is the only form in which access is granted or denied;
// handlers translate it to HTTP, the audit sink records it.
package access

import (
	"net/http"

	"github.com/clearancehq/tiergate/internal/ratelimit"
)

// Reason classifies a denial.
type Reason string

// Denial reasons.
const (
	ReasonInsufficientTier  Reason = "insufficient_tier"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonSessionExpired    Reason = "session_expired"
	ReasonClearanceRequired Reason = "clearance_required"
	ReasonStoreUnavailable  Reason = "store_unavailable"
)

// Decision is the tagged outcome of an authorization check. The zero
// value denies.
type Decision struct {
	allowed bool
	reason  Reason
	rate    *ratelimit.Result
}

// Allowed constructs a granting decision carrying the rate check result
// for response headers.
func Allowed(rate *ratelimit.Result) Decision {
	return Decision{allowed: true, rate: rate}
}

// Denied constructs a denial with the given reason.
func Denied(reason Reason) Decision {
	return Decision{reason: reason}
}

// DeniedRateLimited constructs a throttling denial carrying retry
// metadata.
func DeniedRateLimited(rate *ratelimit.Result) Decision {
	return Decision{reason: ReasonRateLimited, rate: rate}
}

// Allowed reports whether access is granted.
func (d Decision) Allowed() bool {
	return d.allowed
}

// Reason returns the denial reason, empty when allowed.
func (d Decision) Reason() Reason {
	if d.allowed {
		return ""
	}
	return d.reason
}

// Rate returns the rate check result, if one was performed.
func (d Decision) Rate() *ratelimit.Result {
	return d.rate
}

// RetryAfterSeconds returns the wait advised to a throttled caller.
func (d Decision) RetryAfterSeconds() int {
	if d.allowed || d.reason != ReasonRateLimited || d.rate == nil {
		return 0
	}
	return d.rate.RetryAfterSeconds()
}

// StatusCode maps the decision to an HTTP status.
func (d Decision) StatusCode() int {
	if d.allowed {
		return http.StatusOK
	}
	switch d.reason {
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonInsufficientTier:
		return http.StatusForbidden
	case ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		// session_expired, clearance_required, or a zero-value denial.
		return http.StatusUnauthorized
	}
}

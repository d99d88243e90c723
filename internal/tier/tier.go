// Package tier defines the ordered clearance levels that gate content and
// administrative operations, and the pure authorization rule over them.
package tier

import (
	"fmt"
)

// Tier represents a clearance level. Tiers form a total order:
// public < inner-circle < private.
type Tier string

// Known tiers, lowest to highest.
const (
	// None is the absence of a tier: no session, or an expired one.
	// It is below every real tier and satisfies only Public.
	None Tier = ""

	// Public requires no session at all.
	Public Tier = "public"

	// InnerCircle gates member-only content.
	InnerCircle Tier = "inner-circle"

	// Private is the highest clearance level.
	Private Tier = "private"
)

// ordered lists the real tiers by ascending clearance. The order is fixed
// at process start and never mutated.
var ordered = []Tier{Public, InnerCircle, Private}

// Index returns the position of t in the total order. None and unknown
// tiers sit below Public at -1.
func (t Tier) Index() int {
	for i, known := range ordered {
		if t == known {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t.Index() >= 0
}

// AtLeast reports whether t is at or above other in the total order.
func (t Tier) AtLeast(other Tier) bool {
	return t.Index() >= other.Index()
}

// Parse converts a string to a Tier, rejecting unknown values.
func Parse(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return None, fmt.Errorf("unknown tier: %q", s)
	}
	return t, nil
}

// Authorize reports whether a session holding sessionTier may access a
// resource requiring required. Public content never requires a session;
// any higher tier requires a session at or above it. The function is pure
// and total: every tier pair, including None on either side, has a
// defined answer.
//
// Callers must resolve expiry before calling: an expired session must be
// presented as None, never as its former tier.
func Authorize(required, sessionTier Tier) bool {
	if required == Public || required == None {
		return true
	}
	if !sessionTier.Valid() {
		return false
	}
	return sessionTier.AtLeast(required)
}

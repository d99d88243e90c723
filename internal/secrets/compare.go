package secrets

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Equal reports whether a and b hold the same secret value. The comparison
// runs in constant time with respect to the contents of both inputs.
// Inputs of different lengths compare unequal without a length-dependent
// early exit: both sides are reduced to fixed-size SHA-256 digests before
// the byte comparison, and the raw lengths are folded in separately.
func Equal(a, b []byte) bool {
	da := sha256.Sum256(a)
	db := sha256.Sum256(b)
	sameDigest := subtle.ConstantTimeCompare(da[:], db[:])
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	return sameDigest&sameLen == 1
}

// EqualString is Equal for string inputs.
func EqualString(a, b string) bool {
	return Equal([]byte(a), []byte(b))
}

package credential

import "errors"

// Common credential errors.
var (
	// ErrInvalidCredential is returned when a credential fails signature
	// verification or is structurally malformed.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpiredCredential is returned when a credential's validity window
	// has passed.
	ErrExpiredCredential = errors.New("credential expired")

	// ErrInvalidLogin is returned when email or password do not match a
	// known principal. One error for both cases so responses do not reveal
	// which field was wrong.
	ErrInvalidLogin = errors.New("invalid email or password")

	// ErrNoSigningSecret is returned when the service is constructed
	// without a signing secret.
	ErrNoSigningSecret = errors.New("signing secret is required")
)

// Package credential issues and verifies signed access credentials.
// Credentials are HS256-signed JWTs carrying the principal's identity and
// tier. Verification failures are expected outcomes and surface as sentinel
// errors, never panics.
package credential

// Package session stores server-side session records keyed by opaque
// handles. A Redis-backed store carries the canonical state, with an
// in-process store available as a standalone backend or as a fallback
// behind a configurable fail-open/fail-closed policy. Expiry is enforced
// at read time regardless of backend eviction.
package session

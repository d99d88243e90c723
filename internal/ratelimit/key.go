package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// AnonymousKeyFor keys anonymous traffic by client address and route.
func AnonymousKeyFor(ip, path string) string {
	return "anon:" + ip + ":" + path
}

// PrincipalKeyFor keys authenticated traffic by principal and route.
func PrincipalKeyFor(principalID, path string) string {
	return "prn:" + principalID + ":" + path
}

// AdminKeyFor keys administrative operations by actor. Admin limits are
// global per actor rather than per route.
func AdminKeyFor(actor string) string {
	return "admin:" + actor
}

// AnonymousKey keys anonymous traffic by client address and route.
func AnonymousKey(r *http.Request) string {
	return AnonymousKeyFor(GetClientIP(r), r.URL.Path)
}

// PrincipalKey keys authenticated traffic by principal and route. An empty
// principal falls back to the anonymous key.
func PrincipalKey(principalID string, r *http.Request) string {
	if principalID == "" {
		return AnonymousKey(r)
	}
	return PrincipalKeyFor(principalID, r.URL.Path)
}

// AdminKey keys administrative operations by actor, falling back to the
// client address for anonymous callers.
func AdminKey(actor string, r *http.Request) string {
	if actor == "" {
		actor = GetClientIP(r)
	}
	return AdminKeyFor(actor)
}

// GetClientIP extracts the client IP from the request, preferring proxy
// headers over the socket address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package guard implements the client-facing route guard state machine.
// It mirrors server-side authorization for UX purposes only: protected
// content is hidden while a check is pending and denials redirect to a
// locked page carrying the original destination. It is not a security
// boundary; the data-serving routes enforce access themselves.
package guard

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/clearancehq/tiergate/internal/observability"
)

// State is the guard's position in the check lifecycle.
type State string

// States.
const (
	StateChecking    State = "checking"
	StatePublic      State = "public"
	StateAuthorized  State = "authorized"
	StateDenied      State = "denied"
	StateRedirecting State = "redirecting"
)

// CheckFunc resolves whether the current session may view the route. It
// may block on a session refresh.
type CheckFunc func(ctx context.Context, path string) (bool, error)

// DefaultLockedPath is where denied navigations are sent.
const DefaultLockedPath = "/inner-circle/locked"

// Navigation identifies one route entry. Results from a superseded
// navigation are discarded.
type Navigation struct {
	seq   uint64
	path  string
	query string
}

// Guard runs the route guard state machine. Methods are safe for
// concurrent use, though the intended model is one navigation at a time
// with a possibly in-flight check.
type Guard struct {
	publicPatterns []string
	lockedPath     string
	check          CheckFunc
	logger         observability.Logger

	mu       sync.Mutex
	seq      uint64
	state    State
	redirect string
}

// GuardOption is a functional option for the Guard.
type GuardOption func(*Guard)

// WithLockedPath sets the denial destination.
func WithLockedPath(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.lockedPath = path
		}
	}
}

// WithGuardLogger sets the logger for the guard.
func WithGuardLogger(logger observability.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// New creates a guard. publicPatterns are exact paths, or prefixes when
// ending in "/*". check resolves protected routes.
func New(publicPatterns []string, check CheckFunc, opts ...GuardOption) *Guard {
	g := &Guard{
		publicPatterns: publicPatterns,
		lockedPath:     DefaultLockedPath,
		check:          check,
		logger:         observability.NopLogger(),
		state:          StateChecking,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enter begins a navigation to the given path and query. Public routes
// transition directly to StatePublic; anything else enters StateChecking
// until Complete is called with this navigation. Entering supersedes any
// in-flight check.
func (g *Guard) Enter(path, query string) Navigation {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	nav := Navigation{seq: g.seq, path: path, query: query}
	g.redirect = ""

	if g.isPublic(path) {
		g.state = StatePublic
		return nav
	}

	g.state = StateChecking
	return nav
}

// Complete applies a check result for the navigation. Results from a
// navigation that is no longer current are discarded and the state is
// left untouched.
func (g *Guard) Complete(nav Navigation, authorized bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if nav.seq != g.seq {
		g.logger.Debug("discarding stale route check",
			observability.String("path", nav.path))
		return
	}
	if g.state != StateChecking {
		return
	}

	if authorized {
		g.state = StateAuthorized
		return
	}

	g.state = StateDenied
	g.redirect = g.lockedURL(nav)
	g.state = StateRedirecting
}

// Navigate runs Enter and, for protected routes, the check function to
// completion. A check error denies.
func (g *Guard) Navigate(ctx context.Context, path, query string) State {
	nav := g.Enter(path, query)

	g.mu.Lock()
	checking := g.state == StateChecking
	g.mu.Unlock()
	if !checking {
		return g.State()
	}

	authorized, err := g.check(ctx, path)
	if err != nil {
		g.logger.Warn("route check failed, denying",
			observability.String("path", path),
			observability.Error(err))
		authorized = false
	}
	g.Complete(nav, authorized)
	return g.State()
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Visible reports whether route content may be rendered. False while
// checking: the guard fails closed during resolution.
func (g *Guard) Visible() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == StatePublic || g.state == StateAuthorized
}

// RedirectURL returns the locked-page destination when redirecting,
// empty otherwise.
func (g *Guard) RedirectURL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateRedirecting {
		return ""
	}
	return g.redirect
}

func (g *Guard) lockedURL(nav Navigation) string {
	returnTo := nav.path
	if nav.query != "" {
		returnTo += "?" + nav.query
	}
	return g.lockedPath + "?returnTo=" + url.QueryEscape(returnTo)
}

func (g *Guard) isPublic(path string) bool {
	for _, p := range g.publicPatterns {
		if strings.HasSuffix(p, "/*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

package access

import (
	"context"
	"errors"

	"github.com/clearancehq/tiergate/internal/audit"
	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/ratelimit"
	"github.com/clearancehq/tiergate/internal/session"
	"github.com/clearancehq/tiergate/internal/tier"
)

// Request describes one authorization check.
type Request struct {
	// SessionHandle is the opaque handle from the session cookie, empty
	// for anonymous requests.
	SessionHandle string

	// RequiredTier is the tier the requested resource demands.
	RequiredTier tier.Tier

	// Path is the requested route, used for rate limit keying and audit.
	Path string

	// ClientIP keys anonymous rate limiting.
	ClientIP string
}

// Controller composes session resolution, rate limiting and tier
// comparison into a single Decision per request.
type Controller struct {
	sessions session.Store
	limits   *ratelimit.Registry
	sink     audit.Logger
	logger   observability.Logger
}

// ControllerOption is a functional option for the Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger for the controller.
func WithControllerLogger(logger observability.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithAuditSink sets the audit sink decisions are forwarded to.
func WithAuditSink(sink audit.Logger) ControllerOption {
	return func(c *Controller) {
		c.sink = sink
	}
}

// NewController creates an access controller.
func NewController(sessions session.Store, limits *ratelimit.Registry, opts ...ControllerOption) *Controller {
	c := &Controller{
		sessions: sessions,
		limits:   limits,
		sink:     audit.NopLogger(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authorize runs the full decision chain: resolve the session, apply the
// matching rate limit profile, compare tiers. Every outcome is forwarded
// to the audit sink before it is returned.
func (c *Controller) Authorize(ctx context.Context, req Request) Decision {
	rec, decision, resolved := c.resolveSession(ctx, req)
	if !resolved {
		c.record(ctx, req, rec, decision)
		return decision
	}

	profile, key := c.profileFor(rec, req)
	res, err := c.limits.Allow(ctx, profile, key)
	if err != nil {
		// No limiter configured for any profile. Limiting is off, the
		// tier check still stands.
		c.logger.Error("rate limit check failed", observability.Error(err))
		res = nil
	}
	if res != nil && !res.Allowed {
		decision = DeniedRateLimited(res)
		c.record(ctx, req, rec, decision)
		return decision
	}

	sessionTier := tier.None
	if rec != nil {
		sessionTier = rec.Tier
	}

	if tier.Authorize(req.RequiredTier, sessionTier) {
		decision = Allowed(res)
	} else if req.SessionHandle != "" && rec == nil {
		// A handle was presented but no live session backs it.
		decision = Denied(ReasonSessionExpired)
	} else {
		decision = Denied(ReasonInsufficientTier)
	}

	c.record(ctx, req, rec, decision)
	return decision
}

// resolveSession returns the live session record, or a terminal decision
// when the store cannot be consulted.
func (c *Controller) resolveSession(ctx context.Context, req Request) (*session.Record, Decision, bool) {
	if req.SessionHandle == "" {
		return nil, Decision{}, true
	}

	rec, err := c.sessions.Get(ctx, req.SessionHandle)
	switch {
	case err == nil:
		return rec, Decision{}, true
	case errors.Is(err, session.ErrSessionNotFound):
		return nil, Decision{}, true
	default:
		c.logger.Warn("session store unavailable during authorization",
			observability.String("path", req.Path),
			observability.Error(err))
		return nil, Denied(ReasonStoreUnavailable), false
	}
}

func (c *Controller) profileFor(rec *session.Record, req Request) (string, string) {
	if rec != nil {
		return ratelimit.ProfileAuthenticated, ratelimit.PrincipalKeyFor(rec.PrincipalID, req.Path)
	}
	return ratelimit.ProfileAnonymous, ratelimit.AnonymousKeyFor(req.ClientIP, req.Path)
}

func (c *Controller) record(ctx context.Context, req Request, rec *session.Record, d Decision) {
	var event *audit.Event
	switch {
	case d.Allowed():
		event = audit.NewEvent(audit.EventTypeAuthorization, audit.ActionAccess, audit.OutcomeSuccess)
	case d.Reason() == ReasonRateLimited:
		event = audit.NewEvent(audit.EventTypeSecurity, audit.ActionRateLimitExceeded, audit.OutcomeDenied)
		event.RetryAfterSeconds = d.RetryAfterSeconds()
	case d.Reason() == ReasonStoreUnavailable:
		event = audit.NewEvent(audit.EventTypeSecurity, audit.ActionStoreUnavailable, audit.OutcomeFailure)
	default:
		event = audit.NewEvent(audit.EventTypeAuthorization, audit.ActionDeny, audit.OutcomeDenied)
	}
	event.Reason = string(d.Reason())
	event.Resource = &audit.Resource{
		Type:         "content",
		Path:         req.Path,
		RequiredTier: string(req.RequiredTier),
	}
	subject := &audit.Subject{IPAddress: req.ClientIP}
	if rec != nil {
		subject.ID = rec.PrincipalID
		subject.Tier = string(rec.Tier)
		subject.Role = rec.Role
	}
	event.Subject = subject

	c.sink.LogEvent(ctx, event)
}

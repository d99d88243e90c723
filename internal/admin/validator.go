// Package admin validates elevated administrative access. The decision
// chain is ordered and fail-closed: an elevated session role, then a
// constant-time API key check, then a narrowly scoped development bypass,
// then denial. The order is fixed; no step is skipped.
package admin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/clearancehq/tiergate/internal/audit"
	"github.com/clearancehq/tiergate/internal/config"
	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/secrets"
	"github.com/clearancehq/tiergate/internal/session"
)

// Method is how elevated access was granted.
type Method string

// Grant methods.
const (
	MethodSession Method = "session"
	MethodAPIKey  Method = "api_key"
	MethodDevMode Method = "dev_mode"
)

// DenialReason is the fixed reason attached to every denial.
const DenialReason = "clearance required"

// Result is the outcome of an elevated-access check.
type Result struct {
	// Granted reports whether access is granted.
	Granted bool

	// Method is how access was granted, empty when denied.
	Method Method

	// Reason is the denial reason, empty when granted.
	Reason string
}

// Input carries the evidence for one check.
type Input struct {
	// Session is the live session record, nil when absent or expired.
	// Callers resolve the session first; an expired session must arrive
	// here as nil.
	Session *session.Record

	// BearerSecret is the secret presented in the Authorization header,
	// empty when none was presented.
	BearerSecret string

	// ClientIP is recorded in the audit trail.
	ClientIP string
}

// Validator runs the elevated-access decision chain.
type Validator struct {
	env           config.Environment
	elevatedKey   string
	elevatedRoles map[string]struct{}
	sink          audit.Logger
	logger        observability.Logger
	now           func() time.Time
}

// ValidatorOption is a functional option for the Validator.
type ValidatorOption func(*Validator)

// WithValidatorLogger sets the logger for the validator.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithValidatorAudit sets the audit sink.
func WithValidatorAudit(sink audit.Logger) ValidatorOption {
	return func(v *Validator) {
		v.sink = sink
	}
}

// WithValidatorClock overrides the time source. Tests only.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewValidator creates an elevated-access validator. elevatedKey may be
// the key itself or its SHA-256 hex digest; empty means no key is
// configured. elevatedRoles defaults to elite/founder/admin.
func NewValidator(env config.Environment, elevatedKey string, elevatedRoles []string, opts ...ValidatorOption) *Validator {
	if len(elevatedRoles) == 0 {
		elevatedRoles = []string{"elite", "founder", "admin"}
	}
	roles := make(map[string]struct{}, len(elevatedRoles))
	for _, r := range elevatedRoles {
		roles[r] = struct{}{}
	}

	v := &Validator{
		env:           env,
		elevatedKey:   elevatedKey,
		elevatedRoles: roles,
		sink:          audit.NopLogger(),
		logger:        observability.NopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the chain against the input. Steps run in order; step 3
// is the only bypass and requires both a non-production environment and
// the complete absence of a configured key.
func (v *Validator) Validate(ctx context.Context, in Input) Result {
	// Step 1: elevated session role.
	if in.Session != nil && !in.Session.Expired(v.now()) {
		if _, ok := v.elevatedRoles[in.Session.Role]; ok {
			return v.grant(ctx, in, MethodSession)
		}
	}

	// Step 2: constant-time API key comparison.
	if in.BearerSecret != "" && v.elevatedKey != "" {
		if v.keyMatches(in.BearerSecret) {
			return v.grant(ctx, in, MethodAPIKey)
		}
		return v.deny(ctx, in)
	}

	// Step 3: development bypass. Requires non-production AND no key
	// configured at all; production environments cannot reach a grant
	// here regardless of configuration.
	if !v.env.IsProduction() && v.elevatedKey == "" {
		v.logger.Warn("elevated access granted via dev_mode",
			observability.String("environment", string(v.env)))
		return v.grant(ctx, in, MethodDevMode)
	}

	// Step 4: deny.
	return v.deny(ctx, in)
}

// keyMatches compares the presented secret against the configured key.
// A panic inside the comparison counts as a mismatch.
func (v *Validator) keyMatches(presented string) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("elevated key comparison panicked, denying",
				observability.Any("panic", r))
			matched = false
		}
	}()

	if isSHA256Hex(v.elevatedKey) {
		sum := sha256.Sum256([]byte(presented))
		return secrets.EqualString(hex.EncodeToString(sum[:]), v.elevatedKey)
	}
	return secrets.EqualString(presented, v.elevatedKey)
}

func (v *Validator) grant(ctx context.Context, in Input, method Method) Result {
	event := audit.NewEvent(audit.EventTypeAdministrative, audit.ActionElevatedAccess, audit.OutcomeSuccess)
	event.Method = string(method)
	event.Subject = subjectOf(in)
	v.sink.LogEvent(ctx, event)

	return Result{Granted: true, Method: method}
}

func (v *Validator) deny(ctx context.Context, in Input) Result {
	event := audit.NewEvent(audit.EventTypeAdministrative, audit.ActionElevatedAccess, audit.OutcomeDenied)
	event.Reason = DenialReason
	event.Subject = subjectOf(in)
	v.sink.LogEvent(ctx, event)

	return Result{Reason: DenialReason}
}

func subjectOf(in Input) *audit.Subject {
	s := &audit.Subject{IPAddress: in.ClientIP}
	if in.Session != nil {
		s.ID = in.Session.PrincipalID
		s.Role = in.Session.Role
		s.Tier = string(in.Session.Tier)
	}
	return s
}

// isSHA256Hex reports whether s looks like a SHA-256 hex digest.
func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

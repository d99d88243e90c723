package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeAuthorization  EventType = "authorization"
	EventTypeAdministrative EventType = "administrative"
	EventTypeSecurity       EventType = "security"
)

// Action represents the action being audited.
type Action string

// Common actions.
const (
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionTokenRefresh Action = "token_refresh"

	ActionAccess Action = "access"
	ActionDeny   Action = "deny"

	ActionElevatedAccess    Action = "elevated_access"
	ActionRateLimitExceeded Action = "rate_limit_exceeded"
	ActionStoreUnavailable  Action = "store_unavailable"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event represents an audit event.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Action is the action being audited.
	Action Action `json:"action"`

	// Outcome is the outcome of the action.
	Outcome Outcome `json:"outcome"`

	// Subject is the entity performing the action.
	Subject *Subject `json:"subject,omitempty"`

	// Resource is the resource being accessed.
	Resource *Resource `json:"resource,omitempty"`

	// Reason is the denial reason, when denied.
	Reason string `json:"reason,omitempty"`

	// Method is how access was granted for elevated operations
	// (session, api_key, dev_mode).
	Method string `json:"method,omitempty"`

	// RetryAfterSeconds accompanies rate limit denials.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]any `json:"metadata,omitempty"`

	// TraceID is the trace ID for distributed tracing.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the span ID for distributed tracing.
	SpanID string `json:"span_id,omitempty"`
}

// Subject represents the entity performing an action.
type Subject struct {
	// ID is the principal identifier.
	ID string `json:"id,omitempty"`

	// Email is the principal's email address.
	Email string `json:"email,omitempty"`

	// Tier is the principal's access tier.
	Tier string `json:"tier,omitempty"`

	// Role is the principal's role.
	Role string `json:"role,omitempty"`

	// IPAddress is the client IP address.
	IPAddress string `json:"ip_address,omitempty"`
}

// Resource represents the resource being accessed.
type Resource struct {
	// Type is the type of resource (content, admin).
	Type string `json:"type,omitempty"`

	// Path is the resource path.
	Path string `json:"path,omitempty"`

	// RequiredTier is the tier the resource demands.
	RequiredTier string `json:"required_tier,omitempty"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType EventType, action Action, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Action:    action,
		Outcome:   outcome,
	}
}

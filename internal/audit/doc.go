// Package audit records authorization decisions and authentication events
// as structured JSON, with sensitive values redacted and trace context
// attached when present.
package audit

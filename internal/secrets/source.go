package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Common errors for secret sources.
var (
	// ErrSecretNotFound is returned when a secret is not found.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrSourceUnavailable is returned when the source is temporarily unavailable.
	ErrSourceUnavailable = errors.New("secret source unavailable")
	// ErrSourceNotConfigured is returned when the source is not properly configured.
	ErrSourceNotConfigured = errors.New("secret source not configured")
)

// Source resolves named secrets such as the credential signing secret or
// the elevated API key.
type Source interface {
	// Lookup returns the secret value for the given name.
	Lookup(ctx context.Context, name string) ([]byte, error)
}

// DefaultEnvPrefix is the default prefix for environment variable secrets.
const DefaultEnvPrefix = "TIERGATE_SECRET_"

// EnvSource reads secrets from environment variables. The secret name is
// upper-cased, dashes become underscores, and the prefix is prepended:
// "signing-secret" maps to "TIERGATE_SECRET_SIGNING_SECRET".
type EnvSource struct {
	prefix string
}

// NewEnvSource creates an environment variable secret source. An empty
// prefix selects DefaultEnvPrefix.
func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvSource{prefix: prefix}
}

// Lookup implements Source.
func (s *EnvSource) Lookup(_ context.Context, name string) ([]byte, error) {
	key := s.prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil, fmt.Errorf("env %s: %w", key, ErrSecretNotFound)
	}
	return []byte(v), nil
}

// StaticSource serves secrets from an in-memory map. Intended for tests
// and single-binary deployments where secrets arrive via the config file.
type StaticSource map[string][]byte

// Lookup implements Source.
func (s StaticSource) Lookup(_ context.Context, name string) ([]byte, error) {
	v, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("static %s: %w", name, ErrSecretNotFound)
	}
	return v, nil
}

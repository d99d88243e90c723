package config

import (
	"errors"
	"fmt"

	"github.com/clearancehq/tiergate/internal/tier"
)

// Validation errors.
var (
	// ErrSigningSecretRequired is returned when no signing secret is
	// configured outside development and no Vault source could supply
	// one.
	ErrSigningSecretRequired = errors.New("auth.signing_secret is required outside development")

	// ErrFailOpenInProduction is returned when store.fail_open is set in
	// a production environment.
	ErrFailOpenInProduction = errors.New("store.fail_open is not permitted in production")
)

// Validate checks the configuration for internal consistency.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if !cfg.Environment.Valid() {
		return fmt.Errorf("unknown environment %q", cfg.Environment)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	if cfg.Environment.IsProduction() {
		if cfg.Auth.SigningSecret == "" && !cfg.Vault.Enabled() {
			return ErrSigningSecretRequired
		}
		if cfg.Store.FailOpen {
			return ErrFailOpenInProduction
		}
	}

	for _, p := range cfg.Auth.Principals {
		if p.Email == "" || p.PasswordHash == "" {
			return fmt.Errorf("principal %q: email and password_hash are required", p.ID)
		}
		if _, err := tier.Parse(p.Tier); err != nil {
			return fmt.Errorf("principal %q: %w", p.ID, err)
		}
	}

	if cfg.Content.DefaultTier != "" {
		if _, err := tier.Parse(cfg.Content.DefaultTier); err != nil {
			return fmt.Errorf("content.default_tier: %w", err)
		}
	}
	for i, r := range cfg.Content.Rules {
		if (r.Slug == "") == (r.Prefix == "") {
			return fmt.Errorf("content rule %d: exactly one of slug or prefix is required", i)
		}
		if _, err := tier.Parse(r.Tier); err != nil {
			return fmt.Errorf("content rule %d: %w", i, err)
		}
	}

	for _, p := range cfg.RateLimit.Profiles {
		if p.Name == "" {
			return errors.New("rate_limit profile name is required")
		}
		if p.Limit <= 0 {
			return fmt.Errorf("rate_limit profile %q: limit must be positive", p.Name)
		}
		if p.Window.Duration() <= 0 {
			return fmt.Errorf("rate_limit profile %q: window must be positive", p.Name)
		}
	}

	return nil
}

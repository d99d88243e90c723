// Package config defines the configuration surface: YAML files with
// ${VAR} and ${VAR:-default} environment substitution, validation, and a
// file watcher for runtime profile reloads.
package config

import (
	"time"

	"github.com/clearancehq/tiergate/internal/ratelimit"
	"github.com/clearancehq/tiergate/internal/session"
)

// Environment identifies the deployment environment. Behavior that must
// be unreachable in production is gated on this enum, never on a raw
// string comparison.
type Environment string

// Environments.
const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// IsProduction reports whether the environment is production. Unknown
// values count as production so a typo cannot loosen anything.
func (e Environment) IsProduction() bool {
	switch e {
	case EnvDevelopment, EnvStaging:
		return false
	default:
		return true
	}
}

// Valid reports whether the environment is a known value.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// Config is the root configuration.
type Config struct {
	Environment Environment     `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Auth        AuthConfig      `yaml:"auth"`
	Redis       RedisConfig     `yaml:"redis"`
	Store       StoreConfig     `yaml:"store"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Content     ContentConfig   `yaml:"content"`
	Audit       AuditConfig     `yaml:"audit"`
	Vault       VaultConfig     `yaml:"vault"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures application logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig configures credentials, sessions and elevated access. All
// secrets arrive from the environment, a secrets file, or Vault; never
// from code.
type AuthConfig struct {
	// SigningSecret signs issued credentials.
	SigningSecret string `yaml:"signing_secret"`

	// CredentialTTL is the credential validity window.
	CredentialTTL Duration `yaml:"credential_ttl"`

	// SessionTTL is the server-side session lifetime.
	SessionTTL Duration `yaml:"session_ttl"`

	// ElevatedAPIKey grants administrative access when presented as a
	// bearer secret. May be stored plain or as a SHA-256 hex digest.
	ElevatedAPIKey string `yaml:"elevated_api_key"`

	// ElevatedRoles are session roles granted administrative access.
	ElevatedRoles []string `yaml:"elevated_roles"`

	// Principals is the static login directory.
	Principals []PrincipalConfig `yaml:"principals"`
}

// PrincipalConfig is one static directory entry.
type PrincipalConfig struct {
	ID           string `yaml:"id"`
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	Tier         string `yaml:"tier"`
	PasswordHash string `yaml:"password_hash"`
}

// RedisConfig configures the shared Redis backend. An empty Addr disables
// Redis; session and counter state stay in process.
type RedisConfig struct {
	Addr         string   `yaml:"addr"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	DialTimeout  Duration `yaml:"dial_timeout"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	PoolSize     int      `yaml:"pool_size"`
}

// Enabled reports whether a Redis backend is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// StoreConfig configures session store failure behavior.
type StoreConfig struct {
	// FailOpen serves sessions from the in-process fallback when the
	// backend is unreachable. Only acceptable outside production; the
	// default is fail-closed.
	FailOpen bool `yaml:"fail_open"`
}

// Policy returns the session store policy for this config.
func (c StoreConfig) Policy() session.Policy {
	if c.FailOpen {
		return session.PolicyFailOpen
	}
	return session.PolicyFailClosed
}

// RateLimitConfig configures limiter profiles.
type RateLimitConfig struct {
	Profiles []ProfileConfig `yaml:"profiles"`
}

// ProfileConfig is one limiter profile.
type ProfileConfig struct {
	Name      string   `yaml:"name"`
	Algorithm string   `yaml:"algorithm"`
	Limit     int      `yaml:"limit"`
	Window    Duration `yaml:"window"`
	Burst     int      `yaml:"burst"`
}

// Limiters converts configured profiles into limiter profiles, falling
// back to the stock set when none are configured.
func (c RateLimitConfig) Limiters() []ratelimit.Profile {
	if len(c.Profiles) == 0 {
		return ratelimit.DefaultProfiles()
	}
	out := make([]ratelimit.Profile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		out = append(out, ratelimit.Profile{
			Name:      p.Name,
			Algorithm: ratelimit.Algorithm(p.Algorithm),
			Limit:     p.Limit,
			Window:    p.Window.Duration(),
			Burst:     p.Burst,
		})
	}
	return out
}

// ContentConfig maps content to required tiers. Slugs not covered by any
// rule require the default tier, which itself defaults to private.
type ContentConfig struct {
	DefaultTier string              `yaml:"default_tier"`
	Rules       []ContentRuleConfig `yaml:"rules"`
}

// ContentRuleConfig is one tier rule. Exactly one of Slug or Prefix is
// set.
type ContentRuleConfig struct {
	Slug   string `yaml:"slug"`
	Prefix string `yaml:"prefix"`
	Tier   string `yaml:"tier"`
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"`
}

// VaultConfig configures the optional Vault secret source.
type VaultConfig struct {
	Address   string `yaml:"address"`
	Token     string `yaml:"token"`
	Namespace string `yaml:"namespace"`
	Mount     string `yaml:"mount"`
	Path      string `yaml:"path"`
}

// Enabled reports whether a Vault source is configured.
func (c VaultConfig) Enabled() bool {
	return c.Address != ""
}

// Default returns a Config with defaults applied.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			CredentialTTL: Duration(90 * 24 * time.Hour),
			SessionTTL:    Duration(24 * time.Hour),
			ElevatedRoles: []string{"elite", "founder", "admin"},
		},
		Redis: RedisConfig{
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
			PoolSize:     10,
		},
		Audit: AuditConfig{
			Enabled: true,
			Output:  "stdout",
		},
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment: development
server:
  port: 9090
auth:
  signing_secret: "dev-secret"
  session_ttl: "12h"
rate_limit:
  profiles:
    - name: anonymous
      limit: 30
      window: "1m"
    - name: authenticated
      limit: 120
      window: "1m"
`

// ============================================================================
// Load Tests
// ============================================================================

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "dev-secret", cfg.Auth.SigningSecret)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL.Duration())
	require.Len(t, cfg.RateLimit.Profiles, 2)
	assert.Equal(t, time.Minute, cfg.RateLimit.Profiles[0].Window.Duration())

	// Unset fields keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"elite", "founder", "admin"}, cfg.Auth.ElevatedRoles)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TIERGATE_TEST_SECRET", "from-env")

	yaml := `
environment: development
auth:
  signing_secret: "${TIERGATE_TEST_SECRET}"
  elevated_api_key: "${TIERGATE_TEST_UNSET:-fallback-key}"
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.SigningSecret)
	assert.Equal(t, "fallback-key", cfg.Auth.ElevatedAPIKey)
}

func TestLoad_EscapedDollar(t *testing.T) {
	yaml := `
environment: development
auth:
  signing_secret: "pa$$word"
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, "pa$word", cfg.Auth.SigningSecret)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("environment: [unclosed"))
	assert.Error(t, err)
}

// ============================================================================
// Validate Tests
// ============================================================================

func TestValidate_ProductionRequiresSecret(t *testing.T) {
	cfg := Default()
	cfg.Environment = EnvProduction

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrSigningSecretRequired)

	cfg.Auth.SigningSecret = "s3cret"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_ProductionSecretViaVault(t *testing.T) {
	cfg := Default()
	cfg.Environment = EnvProduction
	cfg.Vault.Address = "https://vault.internal:8200"
	cfg.Vault.Path = "tiergate/auth"

	assert.NoError(t, Validate(cfg))
}

func TestValidate_FailOpenRejectedInProduction(t *testing.T) {
	cfg := Default()
	cfg.Environment = EnvProduction
	cfg.Auth.SigningSecret = "s3cret"
	cfg.Store.FailOpen = true

	assert.ErrorIs(t, Validate(cfg), ErrFailOpenInProduction)

	// Fine outside production.
	cfg.Environment = EnvDevelopment
	assert.NoError(t, Validate(cfg))
}

func TestValidate_UnknownEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Environment = "prod" // not a valid enum value
	assert.Error(t, Validate(cfg))
}

func TestValidate_BadPrincipal(t *testing.T) {
	cfg := Default()
	cfg.Auth.Principals = []PrincipalConfig{{ID: "p1", Email: "a@b.c", PasswordHash: "x", Tier: "vip"}}
	assert.Error(t, Validate(cfg))

	cfg.Auth.Principals[0].Tier = "private"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_BadProfile(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.Profiles = []ProfileConfig{{Name: "anonymous", Limit: 0, Window: Duration(time.Minute)}}
	assert.Error(t, Validate(cfg))
}

func TestValidate_ContentRules(t *testing.T) {
	cfg := Default()
	cfg.Content.Rules = []ContentRuleConfig{{Slug: "about", Prefix: "blog/", Tier: "public"}}
	assert.Error(t, Validate(cfg), "slug and prefix are mutually exclusive")

	cfg.Content.Rules = []ContentRuleConfig{{Prefix: "blog/", Tier: "vip"}}
	assert.Error(t, Validate(cfg), "unknown tier")

	cfg.Content.Rules = []ContentRuleConfig{{Prefix: "blog/", Tier: "public"}}
	cfg.Content.DefaultTier = "inner-circle"
	assert.NoError(t, Validate(cfg))
}

func TestEnvironment_IsProduction(t *testing.T) {
	assert.False(t, EnvDevelopment.IsProduction())
	assert.False(t, EnvStaging.IsProduction())
	assert.True(t, EnvProduction.IsProduction())
	// Unknown environments are treated as production.
	assert.True(t, Environment("qa").IsProduction())
}

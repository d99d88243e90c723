package secrets

import (
	"context"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/clearancehq/tiergate/internal/observability"
)

// VaultSourceConfig holds configuration for the Vault secret source.
type VaultSourceConfig struct {
	// Address is the Vault server address.
	Address string
	// Token is the Vault token for token auth.
	Token string
	// Namespace is the Vault namespace (Enterprise only).
	Namespace string
	// Mount is the KV v2 secrets engine mount point. Default: "secret".
	Mount string
	// Path is the path of the secret holding all named values.
	Path string
	// Timeout is the request timeout. Default: 10s.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries. Default: 2.
	MaxRetries int
	// Logger is the logger instance.
	Logger observability.Logger
}

// VaultSource resolves secrets from a single KV v2 secret. Each named
// secret maps to a field of that secret's data.
type VaultSource struct {
	kv     *vaultapi.KVv2
	path   string
	logger observability.Logger
}

// NewVaultSource creates a Vault-backed secret source.
func NewVaultSource(cfg *VaultSourceConfig) (*VaultSource, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("vault address: %w", ErrSourceNotConfigured)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("vault secret path: %w", ErrSourceNotConfigured)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Timeout = timeout
	apiCfg.MaxRetries = maxRetries

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &VaultSource{
		kv:     client.KVv2(mount),
		path:   cfg.Path,
		logger: logger,
	}, nil
}

// Lookup implements Source.
func (s *VaultSource) Lookup(ctx context.Context, name string) ([]byte, error) {
	secret, err := s.kv.Get(ctx, s.path)
	if err != nil {
		s.logger.Warn("vault secret read failed",
			observability.String("path", s.path),
			observability.Error(err))
		return nil, fmt.Errorf("vault read %s: %w", s.path, ErrSourceUnavailable)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault %s/%s: %w", s.path, name, ErrSecretNotFound)
	}

	raw, ok := secret.Data[name]
	if !ok {
		return nil, fmt.Errorf("vault %s/%s: %w", s.path, name, ErrSecretNotFound)
	}
	str, ok := raw.(string)
	if !ok || str == "" {
		return nil, fmt.Errorf("vault %s/%s: non-string value: %w", s.path, name, ErrSecretNotFound)
	}
	return []byte(str), nil
}

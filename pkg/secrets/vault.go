package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"

	"mindpalace/backend/pkg/cache"
	"mindpalace/backend/pkg/logger"
)

// VaultConfig holds configuration for Vault client
type VaultConfig struct {
	Address    string
	Token      string
	Namespace  string
	Mount      string
	Path       string
	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration
	Enabled    bool
}

// VaultConfigFromEnv reads VAULT_* variables. Vault is disabled unless
// VAULT_ENABLED is set.
func VaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Address:    os.Getenv("VAULT_ADDR"),
		Token:      os.Getenv("VAULT_TOKEN"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
		Mount:      os.Getenv("VAULT_MOUNT"),
		Path:       os.Getenv("VAULT_SECRETS_PATH"),
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		CacheTTL:   5 * time.Minute,
	}
	switch strings.ToLower(os.Getenv("VAULT_ENABLED")) {
	case "true", "1", "yes":
		cfg.Enabled = true
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Path == "" {
		cfg.Path = "mindpalace"
	}
	return cfg
}

// VaultManager reads secrets from a Vault KV v2 mount and falls back to the
// environment for keys Vault does not hold.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	cache  *cache.Cache[string]
	env    EnvManager
	log    *logger.Logger
}

// NewVaultManager creates a new Vault manager instance. A disabled config
// yields a manager that only reads the environment.
func NewVaultManager(config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	m := &VaultManager{
		config: config,
		cache:  cache.New[string](cache.Options{TTL: config.CacheTTL, CleanupInterval: config.CacheTTL}),
		log:    log,
	}
	if !config.Enabled {
		return m, nil
	}

	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}
	m.client = client
	return m, nil
}

// GetSecret retrieves a secret from Vault, with fallback to environment variable
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.Get(key); ok {
		return value, nil
	}

	if m.client == nil {
		return m.fromEnv(ctx, key)
	}

	value, err := m.getFromVault(ctx, key)
	if errors.Is(err, ErrSecretNotFound) {
		m.log.Warn("secret not found in vault, falling back to environment", "key", key)
		return m.fromEnv(ctx, key)
	}
	if err != nil {
		return "", err
	}
	m.cache.Set(key, value)
	return value, nil
}

func (m *VaultManager) fromEnv(ctx context.Context, key string) (string, error) {
	value, err := m.env.GetSecret(ctx, key)
	if err != nil {
		return "", err
	}
	m.cache.Set(key, value)
	return value, nil
}

func (m *VaultManager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.Path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		m.log.Error("failed to read secret from vault", "path", m.config.Path, "error", err.Error())
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}
	value, ok := secret.Data[key].(string)
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// Close stops the cache cleanup loop.
func (m *VaultManager) Close() {
	m.cache.Close()
}

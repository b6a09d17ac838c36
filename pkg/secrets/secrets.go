package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)
}

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// GetWithDefault returns the secret or defaultValue when it cannot be read.
func GetWithDefault(ctx context.Context, m Manager, key, defaultValue string) string {
	if m == nil {
		return defaultValue
	}
	value, err := m.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

// EnvManager reads secrets from environment variables. Keys are upper-cased
// and dots and dashes become underscores.
type EnvManager struct{}

// GetSecret implements Manager.
func (EnvManager) GetSecret(_ context.Context, key string) (string, error) {
	value := os.Getenv(EnvKey(key))
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// EnvKey maps a secret key to its environment variable name.
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

package config

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultConfig holds Vault connection configuration.
type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`       // usually from VAULT_TOKEN
	MountPath  string `mapstructure:"mount_path"`  // secrets mount (default: "secret")
	SecretPath string `mapstructure:"secret_path"` // base path, e.g. "venuelink/production"
	Namespace  string `mapstructure:"namespace"`   // Vault Enterprise
}

// VaultClient wraps the HashiCorp Vault client for secrets management.
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// NewVaultClient creates a Vault client from configuration, using token
// authentication (token from config or VAULT_TOKEN).
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(token)

	log.Info().
		Str("address", cfg.Address).
		Str("mount_path", cfg.MountPath).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")

	return &VaultClient{client: client, config: cfg}, nil
}

// GetSecret retrieves a secret from Vault. path is relative to the
// configured SecretPath. Handles both KV v2 (nested "data") and KV v1.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// GetSecretString retrieves a single string value from Vault.
func (vc *VaultClient) GetSecretString(ctx context.Context, path, key string) (string, error) {
	data, err := vc.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key %q not found or not a string at path: %s", key, path)
	}
	return value, nil
}

// LoadVenueCredentials fills the venue API key pair from Vault when the
// integration is enabled. Values already present in the config are left
// alone so environment overrides keep working.
func LoadVenueCredentials(ctx context.Context, cfg *Config) error {
	if !cfg.Vault.Enabled {
		log.Info().Msg("Vault integration disabled - using configured venue credentials")
		return nil
	}

	vc, err := NewVaultClient(cfg.Vault)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Venue.APIKey == "" {
		apiKey, err := vc.GetSecretString(ctx, "venue", "api_key")
		if err != nil {
			return fmt.Errorf("failed to load venue api key: %w", err)
		}
		cfg.Venue.APIKey = apiKey
	}

	if cfg.Venue.SecretKey == "" {
		secretKey, err := vc.GetSecretString(ctx, "venue", "secret_key")
		if err != nil {
			return fmt.Errorf("failed to load venue secret key: %w", err)
		}
		cfg.Venue.SecretKey = secretKey
	}

	log.Info().Msg("Venue credentials loaded from Vault")
	return nil
}

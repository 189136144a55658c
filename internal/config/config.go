// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Venue      VenueConfig      `mapstructure:"venue"`
	Connection ConnectionConfig `mapstructure:"connection"`
	NATS       NATSConfig       `mapstructure:"nats"`
	NonceStore NonceStoreConfig `mapstructure:"nonce_store"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// VenueConfig identifies the remote venue and the credential used to
// authenticate against it. APIKey/SecretKey may be left empty here and
// filled from Vault or environment variables.
type VenueConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ConnectionConfig tunes the session supervisor.
type ConnectionConfig struct {
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"` // websocket dial
	EventBuffer       int           `mapstructure:"event_buffer"`
	OutboundBuffer    int           `mapstructure:"outbound_buffer"`
	WriteRatePerSec   float64       `mapstructure:"write_rate_per_sec"`
	WriteBurst        int           `mapstructure:"write_burst"`
	SubscriptionsFile string        `mapstructure:"subscriptions_file"`
}

// NATSConfig contains settings for the event bridge.
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// NonceStoreConfig contains settings for the optional durable nonce
// checkpoint. Disabled by default: nonce state is process-lifetime
// only unless the operator opts in.
type NonceStoreConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Addr               string        `mapstructure:"addr"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
}

// MonitoringConfig contains metrics server settings.
type MonitoringConfig struct {
	MetricsAddr   string `mapstructure:"metrics_addr"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("VENUELINK")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "venuelink")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Venue defaults
	v.SetDefault("venue.endpoint", "wss://api.venue.example/ws/2")

	// Connection defaults
	v.SetDefault("connection.base_delay", "500ms")
	v.SetDefault("connection.max_backoff", "30s")
	v.SetDefault("connection.heartbeat_timeout", "30s")
	v.SetDefault("connection.auth_timeout", "10s")
	v.SetDefault("connection.handshake_timeout", "15s")
	v.SetDefault("connection.event_buffer", 256)
	v.SetDefault("connection.outbound_buffer", 64)
	v.SetDefault("connection.write_rate_per_sec", 10.0)
	v.SetDefault("connection.write_burst", 20)
	v.SetDefault("connection.subscriptions_file", "")

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "venuelink")

	// Nonce store defaults
	v.SetDefault("nonce_store.enabled", false)
	v.SetDefault("nonce_store.addr", "localhost:6379")
	v.SetDefault("nonce_store.db", 0)
	v.SetDefault("nonce_store.key_prefix", "venuelink:nonce")
	v.SetDefault("nonce_store.checkpoint_interval", "5s")

	// Vault defaults
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "venuelink/production")

	// Monitoring defaults
	v.SetDefault("monitoring.metrics_addr", ":9100")
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration consistency. Credential presence is
// checked later, after Vault loading has had a chance to fill it in.
func (c *Config) Validate() error {
	if c.Venue.Endpoint == "" {
		return fmt.Errorf("venue.endpoint cannot be empty")
	}
	if c.Connection.BaseDelay <= 0 {
		return fmt.Errorf("connection.base_delay must be positive")
	}
	if c.Connection.MaxBackoff < c.Connection.BaseDelay {
		return fmt.Errorf("connection.max_backoff must be >= connection.base_delay")
	}
	if c.Connection.HeartbeatTimeout <= 0 {
		return fmt.Errorf("connection.heartbeat_timeout must be positive")
	}
	if c.Connection.AuthTimeout <= 0 {
		return fmt.Errorf("connection.auth_timeout must be positive")
	}
	if c.Connection.WriteRatePerSec <= 0 {
		return fmt.Errorf("connection.write_rate_per_sec must be positive")
	}
	if c.NonceStore.Enabled && c.NonceStore.Addr == "" {
		return fmt.Errorf("nonce_store.addr cannot be empty when the nonce store is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url cannot be empty when the bridge is enabled")
	}
	return nil
}

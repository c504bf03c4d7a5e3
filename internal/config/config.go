package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SourceBox-LLC/OpenS3-server/internal/storage"
)

// Config holds all configuration for the OpenS3 server
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// Storage configuration
	Storage storage.Config `mapstructure:"storage"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Audit configuration
	Audit AuditConfig `mapstructure:"audit"`
}

// AuthConfig defines the single shared credential pair checked against every
// request. Injected configuration, never a module-level singleton, so tests
// can swap it per instance.
type AuthConfig struct {
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// AuditConfig defines audit trail configuration
type AuditConfig struct {
	Enable bool `mapstructure:"enable"`
}

// Load loads configuration from flags, an optional config file, and
// OPENS3_* environment variables, in ascending precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("OPENS3")
	v.AutomaticEnv()

	// Credentials come from OPENS3_ACCESS_KEY / OPENS3_SECRET_KEY when not
	// set through flags or the config file.
	_ = v.BindEnv("auth.access_key", "OPENS3_ACCESS_KEY")
	_ = v.BindEnv("auth.secret_key", "OPENS3_SECRET_KEY")
	_ = v.BindEnv("data_dir", "OPENS3_DATA_DIR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8001")
	v.SetDefault("log_level", "info")

	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.root", "") // derived from data_dir when empty

	v.SetDefault("auth.access_key", "admin")
	v.SetDefault("auth.secret_key", "password")

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("audit.enable", true)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":     "listen",
		"data-dir":   "data_dir",
		"log-level":  "log_level",
		"access-key": "auth.access_key",
		"secret-key": "auth.secret_key",
	}

	for flag, key := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or OPENS3_DATA_DIR environment variable")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Storage.Root == "" {
		cfg.Storage.Root = filepath.Join(cfg.DataDir, "storage")
	}
	if !filepath.IsAbs(cfg.Storage.Root) {
		if absRoot, err := filepath.Abs(cfg.Storage.Root); err == nil {
			cfg.Storage.Root = absRoot
		}
	}

	if cfg.Auth.AccessKey == "" || cfg.Auth.SecretKey == "" {
		return fmt.Errorf("auth credentials are required: set access_key and secret_key")
	}

	return nil
}

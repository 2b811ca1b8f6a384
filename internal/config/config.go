package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all server configuration.
type Config struct {
	Addr              string `mapstructure:"addr"`
	Root              string `mapstructure:"root"`
	CORSOrigin        string `mapstructure:"corsorigin"`
	DefaultExperiment string `mapstructure:"defaultexperiment"`
	AdminPassword     string `mapstructure:"adminpassword"`
	SessionTTLHours   int    `mapstructure:"sessionttlhours"`

	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// RateLimitConfig sets per-IP request budgets. A per-minute rate of zero
// disables that limit.
type RateLimitConfig struct {
	CallPerMinute  int `mapstructure:"callperminute"`
	CallBurst      int `mapstructure:"callburst"`
	LoginPerMinute int `mapstructure:"loginperminute"`
	LoginBurst     int `mapstructure:"loginburst"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects the audit log backend.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // sqlite, postgres
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds connection settings for the postgres backend.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// EnvPrefix is the prefix for all environment variables (e.g. LEAP_ADDR).
const EnvPrefix = "LEAP_"

// Load loads configuration from .env file and LEAP_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":9000")
	v.SetDefault("root", "")
	v.SetDefault("corsorigin", "")
	v.SetDefault("sessionttlhours", 12)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("ratelimit.callperminute", 300)
	v.SetDefault("ratelimit.callburst", 60)
	v.SetDefault("ratelimit.loginperminute", 10)
	v.SetDefault("ratelimit.loginburst", 5)

	// 1. Load from .env file (if exists)
	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				// A malformed .env is worth failing on; a missing one is not.
				if _, statErr := os.Stat(".env"); statErr == nil {
					return nil, fmt.Errorf("failed to read .env: %w", err)
				}
			}
		}
	}

	// 2. Load from environment variables.
	// LEAP_STORAGE_POSTGRES_HOST -> storage.postgres.host
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]
		if strings.HasPrefix(key, EnvPrefix) {
			propKey := strings.TrimPrefix(key, EnvPrefix)
			propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
			v.Set(propKey, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Root == "" {
		cfg.Root = resolveRoot()
	}

	return &cfg, nil
}

// resolveRoot picks the project root: cwd if it holds an experiments/
// directory, otherwise just cwd.
func resolveRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// ExperimentsDir returns the directory holding experiment folders.
func (c *Config) ExperimentsDir() string {
	return filepath.Join(c.Root, "experiments")
}

// ConfigDir returns the directory holding server-level config files.
func (c *Config) ConfigDir() string {
	return filepath.Join(c.Root, "config")
}

// CredentialsPath returns the location of the admin credentials file.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.ConfigDir(), "admin_credentials.json")
}

// UIDir returns the directory holding shared UI assets.
func (c *Config) UIDir() string {
	return filepath.Join(c.Root, "ui")
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".clipgraph/configs"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.json"
	// DefaultOwner is used when no owner is supplied by the caller
	DefaultOwner = "local-user"
)

// Load reads configuration from ~/.clipgraph/configs/config.json
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(homeDir, DefaultConfigDir))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file, defaults only
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.default_owner", d.Server.DefaultOwner)

	v.SetDefault("database.type", d.Database.Type)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.log_level", d.Database.LogLevel)

	v.SetDefault("embeddings.enabled", d.Embeddings.Enabled)
	v.SetDefault("embeddings.provider", d.Embeddings.Provider)
	v.SetDefault("embeddings.base_url", d.Embeddings.BaseURL)
	v.SetDefault("embeddings.model", d.Embeddings.Model)
	v.SetDefault("embeddings.api_key_env", d.Embeddings.APIKeyEnv)
	v.SetDefault("embeddings.dimensions", d.Embeddings.Dimensions)
	v.SetDefault("embeddings.timeout_seconds", d.Embeddings.TimeoutSeconds)
	v.SetDefault("embeddings.batch_size", d.Embeddings.BatchSize)
	v.SetDefault("embeddings.concurrency", d.Embeddings.Concurrency)
	v.SetDefault("embeddings.cache_max_age_days", d.Embeddings.CacheMaxAgeDays)

	v.SetDefault("graph.connect_threshold", d.Graph.ConnectThreshold)
	v.SetDefault("graph.recalculate_threshold", d.Graph.RecalculateThreshold)
	v.SetDefault("graph.analyze_threshold", d.Graph.AnalyzeThreshold)
	v.SetDefault("graph.generated_threshold", d.Graph.GeneratedThreshold)
	v.SetDefault("graph.protect_default", d.Graph.ProtectDefault)

	v.SetDefault("locking.mode", d.Locking.Mode)
	v.SetDefault("locking.lease_ttl_seconds", d.Locking.LeaseTTLSeconds)
	v.SetDefault("locking.cleanup_interval_minutes", d.Locking.CleanupIntervalMinutes)

	v.SetDefault("logging.env", d.Logging.Env)
}

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "postgres" {
		return fmt.Errorf("database.type must be 'sqlite' or 'postgres', got '%s'", cfg.Database.Type)
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required when type is 'sqlite'")
	}
	if cfg.Database.Type == "postgres" && cfg.Database.PostgresDSN == "" {
		return fmt.Errorf("database.postgres_dsn is required when type is 'postgres'")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.DefaultOwner == "" {
		cfg.Server.DefaultOwner = DefaultOwner
	}

	if cfg.Embeddings.Enabled {
		if !IsValidEmbeddingProvider(cfg.Embeddings.Provider) {
			return fmt.Errorf("embeddings.provider must be one of %v, got '%s'", ValidEmbeddingProviders(), cfg.Embeddings.Provider)
		}
		if cfg.Embeddings.Model == "" {
			return fmt.Errorf("embeddings.model is required when embeddings are enabled")
		}
		if cfg.Embeddings.TimeoutSeconds < 1 {
			return fmt.Errorf("embeddings.timeout_seconds must be at least 1, got %d", cfg.Embeddings.TimeoutSeconds)
		}
	}

	thresholds := map[string]float64{
		"graph.connect_threshold":     cfg.Graph.ConnectThreshold,
		"graph.recalculate_threshold": cfg.Graph.RecalculateThreshold,
		"graph.analyze_threshold":     cfg.Graph.AnalyzeThreshold,
		"graph.generated_threshold":   cfg.Graph.GeneratedThreshold,
	}
	for name, value := range thresholds {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, value)
		}
	}

	if !IsValidLockingMode(cfg.Locking.Mode) {
		return fmt.Errorf("locking.mode must be one of %v, got '%s'", ValidLockingModes(), cfg.Locking.Mode)
	}
	if cfg.Locking.Mode == LockingModeDatabase && cfg.Locking.LeaseTTLSeconds < 1 {
		return fmt.Errorf("locking.lease_ttl_seconds must be at least 1, got %d", cfg.Locking.LeaseTTLSeconds)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			DefaultOwner: DefaultOwner,
		},
		Database: DatabaseConfig{
			Type:       "sqlite",
			SQLitePath: filepath.Join(homeDir, ".clipgraph/db/clipgraph.db"),
			LogLevel:   "silent",
		},
		Embeddings: EmbeddingConfig{
			Enabled:         true,
			Provider:        EmbeddingProviderOpenAI,
			BaseURL:         "https://api.openai.com/v1",
			Model:           "text-embedding-3-small",
			APIKeyEnv:       "OPENAI_API_KEY",
			Dimensions:      1536,
			TimeoutSeconds:  15,
			BatchSize:       64,
			Concurrency:     4,
			CacheMaxAgeDays: 30,
		},
		Graph: GraphConfig{
			ConnectThreshold:     0.5,
			RecalculateThreshold: 0.5,
			AnalyzeThreshold:     0.5,
			GeneratedThreshold:   0.3,
			ProtectDefault:       true,
		},
		Locking: LockingConfig{
			Mode:                   LockingModeLocal,
			LeaseTTLSeconds:        300,
			CleanupIntervalMinutes: 10,
		},
		Logging: LoggingConfig{
			Env: "development",
		},
	}
}

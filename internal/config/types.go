// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Embeddings EmbeddingConfig `mapstructure:"embeddings"`
	Graph      GraphConfig     `mapstructure:"graph"`
	Locking    LockingConfig   `mapstructure:"locking"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	DefaultOwner string `mapstructure:"default_owner"` // Owner used when a request names none
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Type        string `mapstructure:"type"` // "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	LogLevel    string `mapstructure:"log_level"` // "silent", "error", "warn", "info"
}

// EmbeddingConfig holds configuration for the embedding provider
type EmbeddingConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Provider        string `mapstructure:"provider"`           // "openai", "azure", "local"
	BaseURL         string `mapstructure:"base_url"`           // API base URL
	Model           string `mapstructure:"model"`              // e.g. "text-embedding-3-small"
	APIKeyEnv       string `mapstructure:"api_key_env"`        // Environment variable holding the API key
	Dimensions      int    `mapstructure:"dimensions"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	BatchSize       int    `mapstructure:"batch_size"`
	Concurrency     int    `mapstructure:"concurrency"`        // Parallel single calls when batching fails
	CacheMaxAgeDays int    `mapstructure:"cache_max_age_days"` // 0 keeps cached vectors forever
}

// GraphConfig holds similarity thresholds and graph policy
type GraphConfig struct {
	ConnectThreshold     float64 `mapstructure:"connect_threshold"`     // AddItem edge threshold
	RecalculateThreshold float64 `mapstructure:"recalculate_threshold"` // Default for Recalculate
	AnalyzeThreshold     float64 `mapstructure:"analyze_threshold"`     // Default for Analyze
	GeneratedThreshold   float64 `mapstructure:"generated_threshold"`   // Bulk import edge threshold
	ProtectDefault       bool    `mapstructure:"protect_default"`       // Refuse to delete default graphs
}

// LockingConfig selects how graph writes are serialized
type LockingConfig struct {
	Mode                   string `mapstructure:"mode"` // "local" or "database"
	LeaseTTLSeconds        int    `mapstructure:"lease_ttl_seconds"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Env string `mapstructure:"env"` // "development" or "production"
}

// Embedding providers
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderAzure  = "azure"
	EmbeddingProviderLocal  = "local"
)

// Locking modes
const (
	LockingModeLocal    = "local"
	LockingModeDatabase = "database"
)

// ValidEmbeddingProviders returns all valid embedding provider values
func ValidEmbeddingProviders() []string {
	return []string{
		EmbeddingProviderOpenAI,
		EmbeddingProviderAzure,
		EmbeddingProviderLocal,
	}
}

// ValidLockingModes returns all valid locking modes
func ValidLockingModes() []string {
	return []string{LockingModeLocal, LockingModeDatabase}
}

// isValidType is a generic helper to check if a type is in a list of valid types
func isValidType(aType string, validTypes []string) bool {
	for _, valid := range validTypes {
		if aType == valid {
			return true
		}
	}
	return false
}

// IsValidEmbeddingProvider checks if a provider is valid
func IsValidEmbeddingProvider(provider string) bool {
	return isValidType(provider, ValidEmbeddingProviders())
}

// IsValidLockingMode checks if a locking mode is valid
func IsValidLockingMode(mode string) bool {
	return isValidType(mode, ValidLockingModes())
}

// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.bqchat/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Warehouse: BigQuery project and dataset identifiers
//   - AI: model selection and the agent tool-call budget
//   - Storage: embedded SQLite path for conversation history
//   - Tracing: OTLP trace export (see tracing.go)
//
// Security: credentials are never logged; MarshalJSON masks sensitive fields.
// Validation: range checks in validation.go with sentinel errors for errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultModelName is the warehouse-assistant model used when none is configured.
	DefaultModelName = "gemini-1.5-pro"

	// DefaultMaxToolCalls bounds tool invocations per user turn.
	// The agent fails the turn with ErrLoopLimit once the budget is spent.
	DefaultMaxToolCalls = 5

	// MaxAllowedToolCalls is the absolute ceiling for the loop bound.
	MaxAllowedToolCalls = 20

	// DefaultQueryTimeout bounds a single warehouse round trip.
	DefaultQueryTimeout = 60 * time.Second

	// DefaultModelTimeout bounds a single model round trip.
	DefaultModelTimeout = 120 * time.Second

	// DefaultServeAddr is the default HTTP API listen address.
	DefaultServeAddr = "127.0.0.1:3400"

	// configDirName is the per-user configuration directory under $HOME.
	configDirName = ".bqchat"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Warehouse configuration
	ProjectID string `mapstructure:"project_id" json:"project_id"` // GCP project holding the dataset
	DatasetID string `mapstructure:"dataset_id" json:"dataset_id"` // Default BigQuery dataset

	// AI configuration
	ModelName    string `mapstructure:"model_name" json:"model_name"`
	MaxToolCalls int    `mapstructure:"max_tool_calls" json:"max_tool_calls"`

	// Storage configuration
	StorePath string `mapstructure:"store_path" json:"store_path"` // SQLite file for conversation history

	// Timeouts (seconds in the config file, converted by accessors)
	QueryTimeoutSecs int `mapstructure:"query_timeout_secs" json:"query_timeout_secs"`
	ModelTimeoutSecs int `mapstructure:"model_timeout_secs" json:"model_timeout_secs"`

	// HTTP API configuration (serve mode only)
	ServeAddr string `mapstructure:"serve_addr" json:"serve_addr"`

	// Tracing configuration (see tracing.go for type definition)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, configDirName)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Fail fast on invalid configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("max_tool_calls", DefaultMaxToolCalls)

	v.SetDefault("store_path", filepath.Join(configDir, "conversations.db"))

	v.SetDefault("query_timeout_secs", int(DefaultQueryTimeout/time.Second))
	v.SetDefault("model_timeout_secs", int(DefaultModelTimeout/time.Second))

	v.SetDefault("serve_addr", DefaultServeAddr)

	v.SetDefault("tracing.endpoint", DefaultTracingEndpoint)
	v.SetDefault("tracing.service_name", "bqchat")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
//
// Secrets:
//   - GEMINI_API_KEY is read directly by the Genkit Google AI plugin, not via
//     Viper; Validate() only checks its presence.
//   - TRACING_API_KEY authenticates OTLP export.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("project_id", "PROJECT_ID")
	mustBind("dataset_id", "DATASET_ID")
	mustBind("model_name", "BQCHAT_MODEL_NAME")
	mustBind("store_path", "BQCHAT_STORE_PATH")
	mustBind("serve_addr", "BQCHAT_SERVE_ADDR")

	mustBind("tracing.endpoint", "TRACING_ENDPOINT")
	mustBind("tracing.project", "TRACING_PROJECT_ID")
	mustBind("tracing.api_key", "TRACING_API_KEY")
}

// QueryTimeout returns the warehouse call timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSecs) * time.Second
}

// ModelTimeout returns the model call timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSecs) * time.Second
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Tracing.APIKey = maskSecret(a.Tracing.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

package config

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the model API credential is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingProjectID indicates the warehouse project id is not set.
	ErrMissingProjectID = errors.New("missing warehouse project id")

	// ErrMissingDatasetID indicates the warehouse dataset id is not set.
	ErrMissingDatasetID = errors.New("missing warehouse dataset id")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxToolCalls indicates the tool-call bound is out of range.
	ErrInvalidMaxToolCalls = errors.New("invalid max tool calls")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidStorePath indicates the conversation store path is empty.
	ErrInvalidStorePath = errors.New("invalid store path")
)

// Validate checks the configuration for missing or out-of-range values.
// Called by Load(); exposed for tests and for callers that construct
// Config directly.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ProjectID == "" {
		return fmt.Errorf("%w: set PROJECT_ID or project_id in config", ErrMissingProjectID)
	}
	if c.DatasetID == "" {
		return fmt.Errorf("%w: set DATASET_ID or dataset_id in config", ErrMissingDatasetID)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}

	if c.MaxToolCalls < 1 || c.MaxToolCalls > MaxAllowedToolCalls {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidMaxToolCalls, c.MaxToolCalls, MaxAllowedToolCalls)
	}

	if c.QueryTimeoutSecs <= 0 {
		return fmt.Errorf("%w: query_timeout_secs must be positive", ErrInvalidTimeout)
	}
	if c.ModelTimeoutSecs <= 0 {
		return fmt.Errorf("%w: model_timeout_secs must be positive", ErrInvalidTimeout)
	}

	if c.StorePath == "" {
		return ErrInvalidStorePath
	}

	// The Genkit Google AI plugin reads the key from the environment itself;
	// checking here surfaces the problem at startup instead of first model call.
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}

	return nil
}

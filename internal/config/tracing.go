package config

import (
	"encoding/json"
	"fmt"
)

// DefaultTracingEndpoint is the default OTLP HTTP trace endpoint.
const DefaultTracingEndpoint = "localhost:4318"

// TracingConfig configures OTLP trace export for agent and warehouse calls.
//
// Tracing is optional: with no API key and the default localhost endpoint,
// spans go to a local collector if one is running and are dropped otherwise.
type TracingConfig struct {
	// Endpoint is the OTLP HTTP endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// Project is the tracing project identifier, attached as a resource attribute.
	Project string `mapstructure:"project" json:"project"`

	// APIKey authenticates against a hosted tracing backend.
	// SENSITIVE: masked in MarshalJSON.
	APIKey string `mapstructure:"api_key" json:"api_key"`

	// ServiceName is the service name reported on spans.
	ServiceName string `mapstructure:"service_name" json:"service_name"`

	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string `mapstructure:"environment" json:"environment"`
}

// MarshalJSON masks the API key.
func (t TracingConfig) MarshalJSON() ([]byte, error) {
	type alias TracingConfig
	a := alias(t)
	a.APIKey = maskSecret(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal tracing config: %w", err)
	}
	return data, nil
}

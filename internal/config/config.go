// Package config provides configuration loading for coachd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. This package supports server, storage, LLM, coaching, logging,
// and telemetry settings.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete coachd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	LLM       LLMConfig       `koanf:"llm"`
	Gateways  GatewayConfig   `koanf:"gateways"`
	Coaching  CoachingConfig  `koanf:"coaching"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig holds SQLite storage configuration.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// LLMConfig holds Anthropic API client configuration.
type LLMConfig struct {
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
	MaxRetries  int      `koanf:"max_retries"`
	RateLimit   float64  `koanf:"rate_limit"` // requests per second
}

// GatewayConfig bounds the auxiliary LLM calls (extraction, confirmation,
// reflection). The responder call uses the full LLM timeout.
type GatewayConfig struct {
	ExtractTimeout Duration `koanf:"extract_timeout"`
	ConfirmTimeout Duration `koanf:"confirm_timeout"`
	ReflectTimeout Duration `koanf:"reflect_timeout"`
}

// CoachingConfig holds session shape configuration.
type CoachingConfig struct {
	DefaultMaxTurns int `koanf:"default_max_turns"`
	MinTurns        int `koanf:"min_turns"`
	MaxTurns        int `koanf:"max_turns"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"` // grpc or http/protobuf
	ServiceName     string   `koanf:"service_name"`
	ServiceVersion  string   `koanf:"service_version"`
	Insecure        bool     `koanf:"insecure"`
	TLSSkipVerify   bool     `koanf:"tls_skip_verify"`
	SampleRate      float64  `koanf:"sample_rate"`
	MetricsEnabled  bool     `koanf:"metrics_enabled"`
	MetricsInterval Duration `koanf:"metrics_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8220
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	// Storage defaults
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "~/.config/coachd/coachd.db"
	}

	// LLM defaults
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-20250514"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 2.0
	}

	// Gateway timeouts (auxiliary calls get shorter budgets than the responder)
	if cfg.Gateways.ExtractTimeout == 0 {
		cfg.Gateways.ExtractTimeout = Duration(15 * time.Second)
	}
	if cfg.Gateways.ConfirmTimeout == 0 {
		cfg.Gateways.ConfirmTimeout = Duration(10 * time.Second)
	}
	if cfg.Gateways.ReflectTimeout == 0 {
		cfg.Gateways.ReflectTimeout = Duration(30 * time.Second)
	}

	// Coaching defaults
	if cfg.Coaching.DefaultMaxTurns == 0 {
		cfg.Coaching.DefaultMaxTurns = 12
	}
	if cfg.Coaching.MinTurns == 0 {
		cfg.Coaching.MinTurns = 4
	}
	if cfg.Coaching.MaxTurns == 0 {
		cfg.Coaching.MaxTurns = 20
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry defaults
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "coachd"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = Duration(30 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Coaching turn bounds are inconsistent
//   - Telemetry protocol is unknown (when telemetry is enabled)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Storage.Path == "" {
		return errors.New("storage path must not be empty")
	}

	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("invalid llm max_tokens: %d (must be positive)", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("invalid llm temperature: %g (must be 0-1)", c.LLM.Temperature)
	}
	if c.LLM.RateLimit <= 0 {
		return fmt.Errorf("invalid llm rate_limit: %g (must be positive)", c.LLM.RateLimit)
	}

	if c.Coaching.MinTurns < 1 {
		return fmt.Errorf("invalid coaching min_turns: %d (must be positive)", c.Coaching.MinTurns)
	}
	if c.Coaching.MaxTurns < c.Coaching.MinTurns {
		return fmt.Errorf("invalid coaching turn bounds: max_turns %d < min_turns %d",
			c.Coaching.MaxTurns, c.Coaching.MinTurns)
	}
	if c.Coaching.DefaultMaxTurns < c.Coaching.MinTurns || c.Coaching.DefaultMaxTurns > c.Coaching.MaxTurns {
		return fmt.Errorf("invalid coaching default_max_turns: %d (must be %d-%d)",
			c.Coaching.DefaultMaxTurns, c.Coaching.MinTurns, c.Coaching.MaxTurns)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("telemetry service_name required when telemetry is enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("invalid telemetry protocol: %q (must be grpc or http/protobuf)", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("invalid telemetry sample_rate: %g (must be 0-1)", c.Telemetry.SampleRate)
		}
	}

	return nil
}

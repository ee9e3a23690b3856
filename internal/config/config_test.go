package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8220, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "~/.config/coachd/coachd.db", cfg.Storage.Path)
	assert.Equal(t, 12, cfg.Coaching.DefaultMaxTurns)
	assert.Equal(t, 4, cfg.Coaching.MinTurns)
	assert.Equal(t, 20, cfg.Coaching.MaxTurns)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "coachd", cfg.Telemetry.ServiceName)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRate, 0.001)
}

func TestApplyDefaults_DoesNotOverrideExplicitValues(t *testing.T) {
	cfg := Config{
		Server:   ServerConfig{Port: 9000},
		Coaching: CoachingConfig{DefaultMaxTurns: 8},
		Logging:  LoggingConfig{Level: "debug"},
	}
	applyDefaults(&cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Coaching.DefaultMaxTurns)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		var cfg Config
		applyDefaults(&cfg)
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "empty storage path",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage path",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.LLM.Temperature = 1.5 },
			wantErr: "temperature",
		},
		{
			name:    "max turns below min turns",
			mutate:  func(c *Config) { c.Coaching.MaxTurns = 2 },
			wantErr: "turn bounds",
		},
		{
			name:    "default turns outside bounds",
			mutate:  func(c *Config) { c.Coaching.DefaultMaxTurns = 30 },
			wantErr: "default_max_turns",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name: "unknown telemetry protocol",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Protocol = "udp"
			},
			wantErr: "telemetry protocol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-ant-super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-ant-super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

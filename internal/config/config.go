package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice studio service
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // gRPC health service

	// Public base URL used to build asset URLs handed to players.
	// Optional; if unset, asset URLs are relative (/assets/<id>).
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	// Synthesis service configuration
	SynthesisURL       string  `envconfig:"SYNTHESIS_URL" required:"true"`
	SynthesisAPIKey    string  `envconfig:"SYNTHESIS_API_KEY" default:""`
	SynthesisTimeout   int     `envconfig:"SYNTHESIS_TIMEOUT" default:"60"`     // seconds
	SynthesisRateLimit float64 `envconfig:"SYNTHESIS_RATE_LIMIT" default:"0"`   // requests per second, 0 disables
	SynthesisRateBurst int     `envconfig:"SYNTHESIS_RATE_BURST" default:"1"`   // limiter burst size
	MaxTextLength      int     `envconfig:"MAX_TEXT_LENGTH" default:"5000"`     // characters accepted per session text
	MaxAudioBytes      int     `envconfig:"MAX_AUDIO_BYTES" default:"20971520"` // largest accepted audio payload

	// Session configuration
	SessionIdleTimeout int `envconfig:"SESSION_IDLE_TIMEOUT" default:"1800"` // seconds before an idle session is destroyed

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// HTTP configuration
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot express in tags
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SynthesisURL) == "" {
		return fmt.Errorf("SYNTHESIS_URL is required")
	}
	if c.SynthesisTimeout <= 0 {
		return fmt.Errorf("SYNTHESIS_TIMEOUT must be positive, got %d", c.SynthesisTimeout)
	}
	if c.SynthesisRateLimit < 0 {
		return fmt.Errorf("SYNTHESIS_RATE_LIMIT must not be negative, got %v", c.SynthesisRateLimit)
	}
	if c.SynthesisRateLimit > 0 && c.SynthesisRateBurst < 1 {
		return fmt.Errorf("SYNTHESIS_RATE_BURST must be at least 1 when rate limiting is enabled")
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("MAX_TEXT_LENGTH must be positive, got %d", c.MaxTextLength)
	}
	return nil
}

// SynthesisTimeoutDuration returns the per-request synthesis timeout
func (c *Config) SynthesisTimeoutDuration() time.Duration {
	return time.Duration(c.SynthesisTimeout) * time.Second
}

// SessionIdleTimeoutDuration returns how long an untouched session survives.
// Zero disables idle expiry.
func (c *Config) SessionIdleTimeoutDuration() time.Duration {
	return time.Duration(c.SessionIdleTimeout) * time.Second
}

// CircuitBreakerResetDuration returns the open-state wait before a recovery probe
func (c *Config) CircuitBreakerResetDuration() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

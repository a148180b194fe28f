package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("SYNTHESIS_URL", "http://synth.local/api/tts")
	os.Setenv("SYNTHESIS_API_KEY", "test-key")
	defer os.Unsetenv("SYNTHESIS_URL")
	defer os.Unsetenv("SYNTHESIS_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.SynthesisURL != "http://synth.local/api/tts" {
		t.Errorf("Expected SynthesisURL 'http://synth.local/api/tts', got '%s'", cfg.SynthesisURL)
	}

	if cfg.SynthesisAPIKey != "test-key" {
		t.Errorf("Expected SynthesisAPIKey 'test-key', got '%s'", cfg.SynthesisAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("SYNTHESIS_URL")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when SYNTHESIS_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("SYNTHESIS_URL", "http://synth.local/api/tts")
	defer os.Unsetenv("SYNTHESIS_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.GRPCPort != "9090" {
		t.Errorf("Expected default GRPCPort '9090', got '%s'", cfg.GRPCPort)
	}

	if cfg.SynthesisTimeout != 60 {
		t.Errorf("Expected default SynthesisTimeout 60, got %d", cfg.SynthesisTimeout)
	}

	if cfg.SynthesisRateLimit != 0 {
		t.Errorf("Expected rate limiting disabled by default, got %v", cfg.SynthesisRateLimit)
	}

	if cfg.MaxTextLength != 5000 {
		t.Errorf("Expected default MaxTextLength 5000, got %d", cfg.MaxTextLength)
	}

	if cfg.MaxAudioBytes != 20*1024*1024 {
		t.Errorf("Expected default MaxAudioBytes 20MiB, got %d", cfg.MaxAudioBytes)
	}

	if cfg.SessionIdleTimeout != 1800 {
		t.Errorf("Expected default SessionIdleTimeout 1800, got %d", cfg.SessionIdleTimeout)
	}

	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("Expected default CORSAllowedOrigins [*], got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_InvalidTimeout(t *testing.T) {
	os.Setenv("SYNTHESIS_URL", "http://synth.local/api/tts")
	os.Setenv("SYNTHESIS_TIMEOUT", "0")
	defer os.Unsetenv("SYNTHESIS_URL")
	defer os.Unsetenv("SYNTHESIS_TIMEOUT")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for zero SYNTHESIS_TIMEOUT")
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	os.Setenv("SYNTHESIS_URL", "http://synth.local/api/tts")
	os.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://studio.example.com")
	defer os.Unsetenv("SYNTHESIS_URL")
	defer os.Unsetenv("CORS_ALLOWED_ORIGINS")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("Expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[1] != "https://studio.example.com" {
		t.Errorf("Expected second origin 'https://studio.example.com', got '%s'", cfg.CORSAllowedOrigins[1])
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		SynthesisTimeout:           45,
		SessionIdleTimeout:         600,
		CircuitBreakerResetTimeout: 30,
	}

	if cfg.SynthesisTimeoutDuration() != 45*time.Second {
		t.Errorf("Expected 45s, got %v", cfg.SynthesisTimeoutDuration())
	}
	if cfg.SessionIdleTimeoutDuration() != 10*time.Minute {
		t.Errorf("Expected 10m, got %v", cfg.SessionIdleTimeoutDuration())
	}
	if cfg.CircuitBreakerResetDuration() != 30*time.Second {
		t.Errorf("Expected 30s, got %v", cfg.CircuitBreakerResetDuration())
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Setenv("SYNTHESIS_URL", "http://synth.local/api/tts")
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("SYNTHESIS_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
}

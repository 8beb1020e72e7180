// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. A postgres:// URL selects the Postgres backend;
	// anything else is treated as a SQLite path.
	DatabaseURL string

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// MCPAgentID binds the /mcp transport to one submitting agent.
	// Empty disables the MCP endpoint.
	MCPAgentID string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
	FetchMessagesLimit  int // Default inbox page size when the caller sends none.

	// Rate limiting (per agent, falling back to client IP).
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("AGORA_PORT", 8080),
		ReadTimeout:         envDuration("AGORA_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("AGORA_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:         envStr("DATABASE_URL", "agora.db"),
		JWTPrivateKeyPath:   envStr("AGORA_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("AGORA_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("AGORA_JWT_EXPIRATION", 24*time.Hour),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "agora"),
		MCPAgentID:          envStr("AGORA_MCP_AGENT_ID", ""),
		LogLevel:            envStr("AGORA_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("AGORA_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		FetchMessagesLimit:  envInt("AGORA_FETCH_MESSAGES_LIMIT", 100),
		RateLimitEnabled:    envBool("AGORA_RATE_LIMIT_ENABLED", false),
		RateLimitRPS:        envFloat("AGORA_RATE_LIMIT_RPS", 50),
		RateLimitBurst:      envInt("AGORA_RATE_LIMIT_BURST", 100),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: AGORA_PORT out of range: %d", c.Port)
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: AGORA_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.FetchMessagesLimit <= 0 {
		return fmt.Errorf("config: AGORA_FETCH_MESSAGES_LIMIT must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: rate limit rps and burst must be positive when enabled")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

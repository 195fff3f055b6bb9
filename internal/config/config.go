// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Remote classifier (OpenAI-compatible chat completions endpoint)
	ClassifierAPIURL  string
	ClassifierAPIKey  string // empty = remote path disabled, rule fallback only
	ClassifierModel   string
	ClassifierTimeout time.Duration

	// Simulation
	TickInterval time.Duration // how often the generator fires while running
	HistoryLimit int           // default limit for recent-history queries

	// Security
	RateLimitRPS int

	// Observability
	OTLPEndpoint string // empty = tracing disabled
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultClassifierAPIURL  = "https://api.groq.com/openai/v1/chat/completions"
	DefaultClassifierModel   = "llama-3.1-8b-instant"
	DefaultClassifierTimeout = 8 * time.Second
	DefaultTickInterval      = 10 * time.Second
	DefaultHistoryLimit      = 50
	DefaultRateLimit         = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ClassifierAPIURL:  getEnv("CLASSIFIER_API_URL", DefaultClassifierAPIURL),
		ClassifierAPIKey:  os.Getenv("CLASSIFIER_API_KEY"), // Optional, fallback rules apply without it
		ClassifierModel:   getEnv("CLASSIFIER_MODEL", DefaultClassifierModel),
		ClassifierTimeout: getEnvDuration("CLASSIFIER_TIMEOUT", DefaultClassifierTimeout),
		TickInterval:      getEnvDuration("TICK_INTERVAL", DefaultTickInterval),
		HistoryLimit:      int(getEnvInt64("HISTORY_LIMIT", DefaultHistoryLimit)),
		RateLimitRPS:      int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive, got %s", c.ClassifierTimeout)
	}
	if c.ClassifierAPIKey != "" && c.ClassifierAPIURL == "" {
		return fmt.Errorf("CLASSIFIER_API_URL is required when CLASSIFIER_API_KEY is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

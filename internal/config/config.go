package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env string // "development", "production", etc.

	// Server
	ServerAddr string
	BaseURL    string

	// Database
	DatabaseURL string

	// Redis (optional). When set, the public-endpoint rate limiter stores
	// its counters in Redis so replicas share one budget.
	RedisURL string

	// Owner identity header set by the authenticating ingress,
	// e.g. "X-Owner-ID". The engine itself never authenticates anyone.
	OwnerIDHeader string

	// Expiry sweeper
	SweepInterval  time.Duration
	SweepBatchSize int

	// Per-record lock acquisition bound. A transition that cannot take the
	// row lock within this window fails with a retryable Busy error.
	LockTimeout time.Duration

	// Defaults applied to file bundle shares when the caller omits them.
	// Proof shares pass through as given (null means no limit).
	BundleDefaultTTL    time.Duration
	BundleMaxTTL        time.Duration
	BundleDefaultAccess int

	// CORS
	CORSOrigins string // Comma-separated allowed origins
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Env:           getEnv("ENV", "development"),
		ServerAddr:    getEnv("SERVER_ADDR", ":3000"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:3000"),
		DatabaseURL:   getEnv("DATABASE_URL", "postgres://localhost:5432/healthshare?sslmode=disable"),
		RedisURL:      getEnv("REDIS_URL", ""),
		OwnerIDHeader: getEnv("OWNER_ID_HEADER", "X-Owner-ID"),

		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize: getEnvInt("SWEEP_BATCH_SIZE", 100),
		LockTimeout:    getEnvDuration("LOCK_TIMEOUT", 2*time.Second),

		BundleDefaultTTL:    getEnvDuration("BUNDLE_DEFAULT_TTL", 7*24*time.Hour),
		BundleMaxTTL:        getEnvDuration("BUNDLE_MAX_TTL", 30*24*time.Hour),
		BundleDefaultAccess: getEnvInt("BUNDLE_DEFAULT_ACCESS_LIMIT", 5),

		CORSOrigins: getEnv("CORS_ORIGINS", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/text/language"
)

// Store drivers selectable with STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// StoreDriver selects the category store: "postgres" or "memory".
	StoreDriver string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache). CacheEnabled=false skips it entirely.
	CacheEnabled   bool
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string
	ValkeyDB       int

	// Taxonomy behaviour
	Locale     language.Tag
	DepthStep  int
	MaxDepth   int
	MaxRetries int
	CacheTTL   time.Duration
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if a value cannot be
// parsed or critical values are missing in production mode.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		StoreDriver: envOrDefault("STORE_DRIVER", DriverPostgres),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "taxonomy"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "taxonomy"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),
	}

	var err error
	if cfg.ValkeyDB, err = envInt("VALKEY_DB", 0); err != nil {
		return nil, err
	}
	if cfg.DepthStep, err = envInt("TAXONOMY_DEPTH_STEP", 2); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = envInt("TAXONOMY_MAX_DEPTH", 64); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = envInt("TAXONOMY_MAX_RETRIES", 5); err != nil {
		return nil, err
	}

	cfg.CacheEnabled, err = strconv.ParseBool(envOrDefault("TAXONOMY_CACHE_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("TAXONOMY_CACHE_ENABLED: %w", err)
	}

	cfg.CacheTTL, err = time.ParseDuration(envOrDefault("TAXONOMY_CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("TAXONOMY_CACHE_TTL: %w", err)
	}

	cfg.Locale, err = language.Parse(envOrDefault("TAXONOMY_LOCALE", "und"))
	if err != nil {
		return nil, fmt.Errorf("TAXONOMY_LOCALE: %w", err)
	}

	switch cfg.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.StoreDriver)
	}

	if cfg.DepthStep < 0 {
		return nil, fmt.Errorf("TAXONOMY_DEPTH_STEP must not be negative")
	}
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("TAXONOMY_MAX_DEPTH must be at least 1")
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("TAXONOMY_MAX_RETRIES must be at least 1")
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" && cfg.StoreDriver == DriverPostgres {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt reads an integer environment variable.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

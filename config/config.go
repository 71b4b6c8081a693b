// Package config loads pipeline configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"gradeflow/internal/retry"
)

// Backend names a cache store implementation.
type Backend string

const (
	BackendFS     Backend = "fs"
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// Config holds the pipeline configuration.
type Config struct {
	Gemini GeminiConfig
	Cache  CacheConfig
	Retry  retry.Policy
	Server ServerConfig
}

// GeminiConfig holds the AI service configuration.
type GeminiConfig struct {
	APIKey          string
	Model           string
	ModerationModel string
	Timeout         time.Duration
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend Backend
	// Dir is the root for the fs backend and the .db location for sqlite.
	Dir      string
	RedisURL string
}

// ServerConfig holds the optional status server configuration.
type ServerConfig struct {
	Port string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present but never overrides real environment
// variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Gemini: GeminiConfig{
			APIKey:          os.Getenv("GEMINI_API_KEY"),
			Model:           getString("GEMINI_MODEL", "gemini-3-flash-preview"),
			ModerationModel: getString("GEMINI_MODERATION_MODEL", "gemini-3-pro-preview"),
		},
		Cache: CacheConfig{
			Backend:  Backend(getString("CACHE_BACKEND", string(BackendFS))),
			Dir:      getString("CACHE_DIR", ".gradeflow-cache"),
			RedisURL: os.Getenv("REDIS_URL"),
		},
		Server: ServerConfig{
			Port: getString("PORT", "8080"),
		},
	}

	var err error
	if cfg.Gemini.Timeout, err = getDuration("GEMINI_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}

	cfg.Retry = retry.DefaultPolicy()
	if v, err := getInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts); err != nil {
		return nil, err
	} else {
		cfg.Retry.MaxAttempts = v
	}
	if cfg.Retry.InitialBackoff, err = getDuration("RETRY_INITIAL_BACKOFF", cfg.Retry.InitialBackoff); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxBackoff, err = getDuration("RETRY_MAX_BACKOFF", cfg.Retry.MaxBackoff); err != nil {
		return nil, err
	}
	if v := os.Getenv("RETRY_BACKOFF_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BACKOFF_FACTOR %q: %w", v, err)
		}
		cfg.Retry.BackoffFactor = f
	}

	return cfg, nil
}

// Validate checks the fatal preconditions. It must pass before any work item
// is processed.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	switch c.Cache.Backend {
	case BackendFS, BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q (want fs, memory, sqlite, or redis)", c.Cache.Backend)
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis cache backend")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

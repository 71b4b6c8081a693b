package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-3-flash-preview", cfg.Gemini.Model)
	assert.Equal(t, "gemini-3-pro-preview", cfg.Gemini.ModerationModel)
	assert.Equal(t, 120*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, BackendFS, cfg.Cache.Backend)
	assert.Equal(t, ".gradeflow-cache", cfg.Cache.Dir)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialBackoff)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)

	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("GEMINI_MODEL", "gemini-3-pro-preview")
	t.Setenv("GEMINI_TIMEOUT", "45s")
	t.Setenv("CACHE_BACKEND", "sqlite")
	t.Setenv("CACHE_DIR", "/tmp/cache")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_INITIAL_BACKOFF", "500ms")
	t.Setenv("RETRY_BACKOFF_FACTOR", "1.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-3-pro-preview", cfg.Gemini.Model)
	assert.Equal(t, 45*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, BackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, "/tmp/cache", cfg.Cache.Dir)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 1.5, cfg.Retry.BackoffFactor)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")

	t.Run("Timeout", func(t *testing.T) {
		t.Setenv("GEMINI_TIMEOUT", "not-a-duration")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("MaxAttempts", func(t *testing.T) {
		t.Setenv("RETRY_MAX_ATTEMPTS", "three")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("BackoffFactor", func(t *testing.T) {
		t.Setenv("RETRY_BACKOFF_FACTOR", "x")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("MissingAPIKey", func(t *testing.T) {
		cfg := &Config{Cache: CacheConfig{Backend: BackendFS}}
		cfg.Retry.MaxAttempts = 3
		assert.ErrorContains(t, cfg.Validate(), "GEMINI_API_KEY")
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		cfg := &Config{
			Gemini: GeminiConfig{APIKey: "k"},
			Cache:  CacheConfig{Backend: "etcd"},
		}
		cfg.Retry.MaxAttempts = 3
		assert.ErrorContains(t, cfg.Validate(), "cache backend")
	})

	t.Run("RedisWithoutURL", func(t *testing.T) {
		cfg := &Config{
			Gemini: GeminiConfig{APIKey: "k"},
			Cache:  CacheConfig{Backend: BackendRedis},
		}
		cfg.Retry.MaxAttempts = 3
		assert.ErrorContains(t, cfg.Validate(), "REDIS_URL")
	})

	t.Run("ZeroAttempts", func(t *testing.T) {
		cfg := &Config{
			Gemini: GeminiConfig{APIKey: "k"},
			Cache:  CacheConfig{Backend: BackendMemory},
		}
		assert.ErrorContains(t, cfg.Validate(), "RETRY_MAX_ATTEMPTS")
	})
}

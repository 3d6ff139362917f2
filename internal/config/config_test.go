package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("OutboundJobTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{OutboundJobTimeoutSeconds: 60}
		assert.Equal(t, 60*time.Second, cfg.OutboundJobTimeout())
	})

	t.Run("WebhookURL trims trailing slash", func(t *testing.T) {
		cfg := &Config{PublicBaseURL: "https://bridge.example.com/"}
		assert.Equal(t, "https://bridge.example.com/api/webhooks/groupme/m-1", cfg.WebhookURL("groupme", "m-1"))
	})

	t.Run("Validate rejects non-positive pool settings", func(t *testing.T) {
		cfg := &Config{OutboundWorkers: 0, OutboundQueueSize: 10}
		assert.Error(t, cfg.Validate())

		cfg = &Config{OutboundWorkers: 2, OutboundQueueSize: 0}
		assert.Error(t, cfg.Validate())
	})

	t.Run("Validate tolerates missing bridge settings", func(t *testing.T) {
		cfg := &Config{OutboundWorkers: 2, OutboundQueueSize: 10}
		assert.NoError(t, cfg.Validate())
	})
}

func TestRetryConfigOptions(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:        4,
		InitialDelayMs:    250,
		MaxDelayMs:        2000,
		BackoffMultiplier: 3,
		JitterEnabled:     false,
	}

	opts := rc.Options()

	assert.Equal(t, 4, opts.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, opts.InitialDelay)
	assert.Equal(t, 2*time.Second, opts.MaxDelay)
	assert.Equal(t, 3.0, opts.BackoffMultiplier)
	assert.False(t, opts.JitterEnabled)
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "OUTBOUND_WORKERS", "LOG_LEVEL",
		"RETRY_MAX_RETRIES", "RETRY_JITTER_ENABLED", "RETRY_INITIAL_DELAY_MS",
	}
	originalEnv := map[string]string{}
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		for _, k := range []string{"PORT", "OUTBOUND_WORKERS", "LOG_LEVEL", "RETRY_MAX_RETRIES", "RETRY_JITTER_ENABLED", "RETRY_INITIAL_DELAY_MS"} {
			os.Unsetenv(k)
		}

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 4, cfg.OutboundWorkers)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 3, cfg.Retry.MaxRetries)
		assert.Equal(t, 500, cfg.Retry.InitialDelayMs)
		assert.Equal(t, 10000, cfg.Retry.MaxDelayMs)
		assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
		assert.True(t, cfg.Retry.JitterEnabled)
	})

	t.Run("loads custom retry values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("RETRY_MAX_RETRIES", "5")
		os.Setenv("RETRY_JITTER_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 5, cfg.Retry.MaxRetries)
		assert.False(t, cfg.Retry.JitterEnabled)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadBot(t *testing.T) {
	original := os.Getenv("PORT")
	defer func() {
		if original == "" {
			os.Unsetenv("PORT")
		} else {
			os.Setenv("PORT", original)
		}
	}()

	os.Unsetenv("PORT")

	cfg, err := LoadBot()
	require.NoError(t, err)
	assert.Equal(t, ":3978", cfg.Addr())
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 300, cfg.ActivityRateLimitPerMin)
}

package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "cryptoprice", config.AppName)
	assert.Equal(t, ProfileInteractive, config.Profile)
	assert.Equal(t, "https://api.coingecko.com/api/v3", config.API.BaseURL)
	assert.Equal(t, 30, config.API.RequestsPerMinute)
	assert.Equal(t, 20, config.Retry.MaxAttempts)
	assert.Equal(t, 15*time.Second, config.RateLimitCooldown())
	assert.Equal(t, 2*time.Second, config.TransportDelay())
	assert.Equal(t, 2*time.Second, config.ItemDelay())
	assert.Equal(t, 30*time.Second, config.HTTPTimeout())
	assert.Equal(t, 365, config.Range.MaxDays)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "stderr", config.Logging.Output)
	assert.NoError(t, config.Validate())
}

func TestApplyProfile(t *testing.T) {
	t.Run("cli profile fails fast", func(t *testing.T) {
		config := DefaultConfig()
		require.NoError(t, config.ApplyProfile(ProfileCLI))

		assert.Equal(t, ProfileCLI, config.Profile)
		assert.Equal(t, 3, config.Retry.MaxAttempts)
		assert.Equal(t, 5*time.Second, config.RateLimitCooldown())
		assert.Equal(t, 90, config.Range.MaxDays)
	})

	t.Run("interactive profile restores defaults", func(t *testing.T) {
		config := DefaultConfig()
		require.NoError(t, config.ApplyProfile(ProfileCLI))
		require.NoError(t, config.ApplyProfile(ProfileInteractive))

		assert.Equal(t, 20, config.Retry.MaxAttempts)
		assert.Equal(t, 365, config.Range.MaxDays)
	})

	t.Run("unknown profile fails", func(t *testing.T) {
		config := DefaultConfig()
		err := config.ApplyProfile("gui")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown profile")
	})
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		message string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *AppConfig) { c.API.BaseURL = "" },
			message: "api.base_url is required",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *AppConfig) { c.Retry.MaxAttempts = 0 },
			message: "retry.max_attempts must be at least 1",
		},
		{
			name:    "bad cooldown",
			mutate:  func(c *AppConfig) { c.Retry.RateLimitCooldown = "soon" },
			message: "retry.rate_limit_cooldown is not a valid duration",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *AppConfig) { c.API.Timeout = "0s" },
			message: "api.timeout must be positive",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *AppConfig) { c.Retry.BackoffStrategy = "random" },
			message: "retry.backoff_strategy must be one of",
		},
		{
			name:    "negative max days",
			mutate:  func(c *AppConfig) { c.Range.MaxDays = -1 },
			message: "range.max_days cannot be negative",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *AppConfig) { c.Logging.Level = "trace" },
			message: "logging.level must be one of",
		},
		{
			name: "file output without path",
			mutate: func(c *AppConfig) {
				c.Logging.Output = "file"
				c.Logging.FilePath = ""
			},
			message: "logging.file_path is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	t.Run("all problems are reported together", func(t *testing.T) {
		config := DefaultConfig()
		config.Retry.MaxAttempts = 0
		config.Logging.Format = "xml"

		err := config.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry.max_attempts")
		assert.Contains(t, err.Error(), "logging.format")
	})
}

func TestLoadConfig(t *testing.T) {
	logger := slog.Default()

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cm := NewConfigManager(filepath.Join(t.TempDir(), "missing.json"), logger)
		config, err := cm.LoadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 20, config.Retry.MaxAttempts)
		assert.Same(t, config, cm.GetConfig())
	})

	t.Run("file values override profile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cryptoprice.json")
		data := `{"profile": "cli", "retry": {"max_attempts": 7}, "range": {"max_days": 30}}`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		config, err := NewConfigManager(path, logger).LoadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, ProfileCLI, config.Profile)
		assert.Equal(t, 7, config.Retry.MaxAttempts)
		assert.Equal(t, 5*time.Second, config.RateLimitCooldown())
		assert.Equal(t, 30, config.Range.MaxDays)
		assert.Equal(t, path, config.ConfigPath)
	})

	t.Run("invalid json fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

		_, err := NewConfigManager(path, logger).LoadConfig(context.Background())
		assert.Error(t, err)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cryptoprice.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"retry": {"max_attempts": 7}}`), 0644))

		t.Setenv("CRYPTOPRICE_MAX_ATTEMPTS", "4")
		t.Setenv("CRYPTOPRICE_API_KEY", "secret")
		t.Setenv("CRYPTOPRICE_COINS", "bitcoin, ethereum,,")
		t.Setenv("CRYPTOPRICE_LOG_LEVEL", "debug")

		config, err := NewConfigManager(path, logger).LoadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 4, config.Retry.MaxAttempts)
		assert.Equal(t, "secret", config.API.APIKey)
		assert.Equal(t, []string{"bitcoin", "ethereum"}, config.Batch.Coins)
		assert.Equal(t, "debug", config.Logging.Level)
	})

	t.Run("non-numeric environment value fails", func(t *testing.T) {
		t.Setenv("CRYPTOPRICE_MAX_DAYS", "many")

		_, err := NewConfigManager("", logger).LoadConfig(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CRYPTOPRICE_MAX_DAYS")
	})

	t.Run("env file supplies api key", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(envPath, []byte("CRYPTOPRICE_API_KEY=from-dotenv\n"), 0644))
		t.Setenv("CRYPTOPRICE_API_KEY", "")
		os.Unsetenv("CRYPTOPRICE_API_KEY")
		t.Cleanup(func() { os.Unsetenv("CRYPTOPRICE_API_KEY") })

		config, err := NewConfigManager("", logger, envPath).LoadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", config.API.APIKey)
	})

	t.Run("validation failure is returned", func(t *testing.T) {
		t.Setenv("CRYPTOPRICE_LOG_FORMAT", "xml")

		_, err := NewConfigManager("", logger).LoadConfig(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
	})
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cryptoprice.json")
	cm := NewConfigManager(path, slog.Default())

	t.Run("nothing loaded", func(t *testing.T) {
		assert.Error(t, cm.SaveConfig(context.Background()))
	})

	t.Run("api key is not persisted", func(t *testing.T) {
		t.Setenv("CRYPTOPRICE_API_KEY", "secret")
		_, err := cm.LoadConfig(context.Background())
		require.NoError(t, err)
		require.NoError(t, cm.SaveConfig(context.Background()))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var saved AppConfig
		require.NoError(t, json.Unmarshal(data, &saved))
		assert.Empty(t, saved.API.APIKey)
		assert.Equal(t, 20, saved.Retry.MaxAttempts)
	})
}

func TestConfigString(t *testing.T) {
	config := DefaultConfig()
	config.API.APIKey = "secret"

	s := config.String()
	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "secret", config.API.APIKey)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Second, cfg.Collection.InitialSettle)
	assert.Equal(t, time.Second, cfg.Collection.RenderSettle)
	assert.Equal(t, 5*time.Second, cfg.Collection.AnchorTimeout)
	assert.Equal(t, 10*time.Second, cfg.Collection.StallBaseDelay)
	assert.Equal(t, 3, cfg.Collection.MaxStallRetries)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.BaseWait)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.SettleDelay)
	assert.Equal(t, 10, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, "./data/follower.db", cfg.Store.Path)
	assert.Equal(t, 5, cfg.Logging.MaxBackups)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FOLLOWSWEEP_HEADLESS", "false")
	t.Setenv("FOLLOWSWEEP_DB_PATH", "/tmp/fs/follower.db")
	t.Setenv("FOLLOWSWEEP_RATE_LIMIT_MAX_ATTEMPTS", "4")
	t.Setenv("FOLLOWSWEEP_RATE_LIMIT_BASE_WAIT", "30s")
	t.Setenv("FOLLOWSWEEP_NOTIFICATIONS_ENABLED", "false")
	t.Setenv("FOLLOWSWEEP_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/tmp/fs/follower.db", cfg.Store.Path)
	assert.Equal(t, 4, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.BaseWait)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("FOLLOWSWEEP_RATE_LIMIT_MAX_ATTEMPTS", "lots")
	t.Setenv("FOLLOWSWEEP_RATE_LIMIT_BASE_WAIT", "soon")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 10, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.BaseWait)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
browser:
  headless: false
  base_url: https://x.test
collection:
  stall_base_delay: 2s
  max_stall_retries: 5
rate_limit:
  base_wait: 90s
  max_attempts: 3
store:
  path: /srv/followers.db
logging:
  level: warn
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(configPath))

		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, "https://x.test", cfg.Browser.BaseURL)
		assert.Equal(t, 2*time.Second, cfg.Collection.StallBaseDelay)
		assert.Equal(t, 5, cfg.Collection.MaxStallRetries)
		assert.Equal(t, 90*time.Second, cfg.RateLimit.BaseWait)
		assert.Equal(t, 3, cfg.RateLimit.MaxAttempts)
		assert.Equal(t, "/srv/followers.db", cfg.Store.Path)
		assert.Equal(t, "warn", cfg.Logging.Level)
		// untouched sections keep defaults
		assert.Equal(t, 10*time.Second, cfg.RateLimit.SettleDelay)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("browser:\n  bin: [broken\n"), 0644))

		err := DefaultConfig().LoadFromFile(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("non-existent file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile("/non/existent/path/config.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no base url", func(c *Config) { c.Browser.BaseURL = "" }, "base URL"},
		{"zero stall retries", func(c *Config) { c.Collection.MaxStallRetries = 0 }, "stall retries"},
		{"negative pace", func(c *Config) { c.Collection.PaceJitter = -time.Second }, "cannot be negative"},
		{"zero attempts", func(c *Config) { c.RateLimit.MaxAttempts = 0 }, "max attempts"},
		{"no store", func(c *Config) { c.Store.Path = "" }, "store path"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad notifier", func(c *Config) { c.Notifications.NotificationType = "pager" }, "notification type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = ""
	cfg.Settings.Path = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store path")
	assert.Contains(t, err.Error(), "settings path")
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Addr = "0.0.0.0:9000"
	cfg.Collection.PaceBase = 7 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "0.0.0.0:9000", loaded.Server.Addr)
	assert.Equal(t, 7*time.Second, loaded.Collection.PaceBase)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"headless":      false,
		"db":            "/tmp/x.db",
		"addr":          ":9999",
		"max-attempts":  2,
		"notifications": false,
		"log-level":     "error",
		"unknown":       "ignored",
	})

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.RateLimit.MaxAttempts)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  addr: file:1\nlogging:\n  level: warn\n"), 0644))
	t.Setenv("FOLLOWSWEEP_ADDR", "env:2")

	cfg, err := Load(configPath, map[string]interface{}{"log-level": "debug"})
	require.NoError(t, err)

	assert.Equal(t, "env:2", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("logging:\n  level: chatty\n"), 0644))

	_, err := Load(configPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

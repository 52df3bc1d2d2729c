package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Server.LockTTL)
	assert.Equal(t, "data/examples.db", cfg.Database.Path)
	assert.Equal(t, time.Second, cfg.Client.SaveDelay)
	assert.False(t, cfg.Client.ReleaseOnClose)
	assert.True(t, cfg.Executor.Enabled)
	assert.Equal(t, "python:3.12-alpine", cfg.Executor.Docker().Image)
	assert.False(t, cfg.Auth.GitHubEnabled())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "author.yaml")
	content := `
server:
  port: 9090
  lock_ttl: 5m
client:
  base_url: https://examples.internal
  save_delay: 250ms
  release_on_close: true
executor:
  enabled: false
  pool_size: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.LockTTL)
	assert.Equal(t, "https://examples.internal", cfg.Client.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.SaveDelay)
	assert.True(t, cfg.Client.ReleaseOnClose)
	assert.False(t, cfg.Executor.Enabled, "a disabled executor skips its own checks")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "author.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("AUTHOR_SERVER_PORT", "7070")
	t.Setenv("AUTHOR_AUTH_JWT_SECRET", "from-the-environment")
	t.Setenv("AUTHOR_CLIENT_EMAIL", "dev@example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-the-environment", cfg.Auth.JWTSecret)
	assert.Equal(t, "dev@example.com", cfg.Client.Email)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"lock ttl", func(c *Config) { c.Server.LockTTL = 0 }, "server.lock_ttl"},
		{"burst", func(c *Config) { c.Server.ExecuteBurst = 0 }, "server.execute_burst"},
		{"db path", func(c *Config) { c.Database.Path = " " }, "database.path"},
		{"executor timeout", func(c *Config) { c.Executor.Timeout = 0 }, "executor.timeout"},
		{"save delay", func(c *Config) { c.Client.SaveDelay = 0 }, "client.save_delay"},
		{"base url", func(c *Config) { c.Client.BaseURL = "localhost:8080" }, "client.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

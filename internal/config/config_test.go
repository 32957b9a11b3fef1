package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "koppla.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvBaseURL, EnvToken, EnvProject} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
backend: rest
base_url: https://acl.example.com/api/
project: p1
require_token: true
sync:
  throttle: 250ms
  retry:
    max_attempts: 3
editor:
  grid_size: 10
`)
	clearEnv(t)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Sync.Throttle)
	assert.Equal(t, 3, cfg.Sync.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Retry.Initial)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 10.0, cfg.Editor.GridSize)
	assert.True(t, cfg.RequireToken)
	assert.Equal(t, "https://acl.example.com/api/p1", cfg.ProjectURL())
}

func TestLoad_Palette(t *testing.T) {
	path := writeConfig(t, `
backend: local
palette:
  blue: "#2563eb"
  dark-blue: "#1e3a8a"
`)
	clearEnv(t)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"blue": "#2563eb", "dark-blue": "#1e3a8a"}, cfg.Palette)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "base_url: http://file\ntoken: from-file\n")
	t.Setenv(EnvBaseURL, "http://env")
	t.Setenv(EnvToken, "from-env")
	t.Setenv(EnvProject, "p9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env", cfg.BaseURL)
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, "http://env/p9", cfg.ProjectURL())
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	clearEnv(t)
	t.Setenv(EnvBaseURL, "http://env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Sync.Throttle)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "backend: local\nthrotle: 1s\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throtle")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"rest without url", func(c *Config) {}, "base_url"},
		{"local ok", func(c *Config) { c.Backend = BackendLocal }, ""},
		{"unknown backend", func(c *Config) { c.Backend = "ftp" }, "unknown backend"},
		{"zero throttle", func(c *Config) { c.BaseURL = "http://x"; c.Sync.Throttle = 0 }, "throttle"},
		{"retry max below initial", func(c *Config) { c.BaseURL = "http://x"; c.Sync.Retry.Max = time.Millisecond }, "sync.retry"},
		{"no attempts", func(c *Config) { c.BaseURL = "http://x"; c.Sync.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"zero grid", func(c *Config) { c.BaseURL = "http://x"; c.Editor.GridSize = 0 }, "grid_size"},
		{"palette without color", func(c *Config) { c.BaseURL = "http://x"; c.Palette = map[string]string{"blue": ""} }, "palette"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
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

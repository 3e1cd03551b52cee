package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.NotEmpty(t, cfg.Cache.Path)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
api:
  base_url: https://filemyrti.example.com/api
  token: abc123
  timeout: 10s
cache:
  path: /tmp/rtichat.json
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://filemyrti.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "abc123", cfg.API.Token)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "/tmp/rtichat.json", cfg.Cache.Path)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: https://file.example.com/api\n"), 0o600))

	t.Setenv("RTICHAT_API_BASE_URL", "https://env.example.com/api")
	t.Setenv("RTICHAT_API_TIMEOUT", "5s")
	t.Setenv("RTICHAT_TELEMETRY_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.API.BaseURL = "not a url"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.API.Timeout = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.LogLevel = "loud"
	assert.Error(t, bad.Validate())
}

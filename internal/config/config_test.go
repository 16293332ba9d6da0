// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8082", cfg.HTTPAddr)
	assert.Equal(t, uint32(5), cfg.Breaker.MinCalls)
	assert.Equal(t, 0.5, cfg.Breaker.FailureRate)
	assert.Equal(t, 25*time.Second, time.Duration(cfg.Breaker.OpenWait))
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Breaker.CallTimeout))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
http_addr: ":9090"
inventory_url: "http://inventory:8081"
breaker:
  min_calls: 10
  failure_rate: 0.6
  open_wait: 30s
  half_open_max_calls: 3
  window_interval: 2m
  call_timeout: 8s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "http://inventory:8081", cfg.InventoryURL)
	assert.Equal(t, uint32(10), cfg.Breaker.MinCalls)
	assert.Equal(t, 0.6, cfg.Breaker.FailureRate)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Breaker.OpenWait))
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.Breaker.WindowInterval))
	assert.Equal(t, 8*time.Second, time.Duration(cfg.Breaker.CallTimeout))
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`http_addr: ":9090"`), 0o600))
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("DATABASE_URL", "postgres://example/db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "postgres://example/db", cfg.DatabaseURL)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breaker:\n  open_wait: nonsense\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

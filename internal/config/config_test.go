package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, 2, cfg.Pool.Capacity)
	assert.Equal(t, "python:3.9-slim", cfg.Pool.Image)
	assert.Equal(t, 100*time.Millisecond, cfg.Pool.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Pool.AcquireTimeout)
	assert.Equal(t, "100m", cfg.Pool.MemLimit)
	assert.Equal(t, int64(100000), cfg.Pool.CPUPeriod)
	assert.Equal(t, int64(50000), cfg.Pool.CPUQuota)
	assert.Equal(t, "kapsel-persistent", cfg.Sandbox.PersistentName)
	assert.Equal(t, "bridge", cfg.Sandbox.NetworkMode)
	assert.Equal(t, []string{"8.8.8.8", "8.8.4.4"}, cfg.Sandbox.DNS)
	assert.Equal(t, "512m", cfg.Sandbox.Limits.MemLimit)
	assert.Equal(t, 10, cfg.Sandbox.StartRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Sandbox.StartInterval)
	assert.Equal(t, 10*time.Second, cfg.Sandbox.StopGracePeriod)
	assert.Equal(t, 30*time.Second, cfg.Worker.BashTimeout)
}

func TestLoadYAML(t *testing.T) {
	yamlContent := `
db_path: "/tmp/kapsel.db"
pool:
  capacity: 4
  image: "python:3.12-slim"
  acquire_timeout: 10s
sandbox:
  persistent_name: "my-persistent"
  network_mode: "none"
worker:
  bash_timeout: 5s
`
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "kapsel.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlContent), 0644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/kapsel.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.Pool.Capacity)
	assert.Equal(t, "python:3.12-slim", cfg.Pool.Image)
	assert.Equal(t, 10*time.Second, cfg.Pool.AcquireTimeout)
	assert.Equal(t, "my-persistent", cfg.Sandbox.PersistentName)
	assert.Equal(t, "none", cfg.Sandbox.NetworkMode)
	assert.Equal(t, 5*time.Second, cfg.Worker.BashTimeout)

	// Untouched fields keep their defaults.
	assert.Equal(t, "512m", cfg.Sandbox.Limits.MemLimit)
}

func TestLoadYAMLMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/kapsel.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pool.Capacity)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KAPSEL_POOL_CAPACITY", "8")
	t.Setenv("KAPSEL_BASE_IMAGE", "python:3.11")
	t.Setenv("KAPSEL_NETWORK_MODE", "none")
	t.Setenv("KAPSEL_DNS", "1.1.1.1,9.9.9.9")
	t.Setenv("KAPSEL_BASH_TIMEOUT", "45s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pool.Capacity)
	assert.Equal(t, "python:3.11", cfg.Sandbox.BaseImage)
	assert.Equal(t, "none", cfg.Sandbox.NetworkMode)
	assert.Equal(t, []string{"1.1.1.1", "9.9.9.9"}, cfg.Sandbox.DNS)
	assert.Equal(t, 45*time.Second, cfg.Worker.BashTimeout)
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("KAPSEL_POOL_CAPACITY", "not-a-number")
	t.Setenv("KAPSEL_BASH_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pool.Capacity)
	assert.Equal(t, 30*time.Second, cfg.Worker.BashTimeout)
}

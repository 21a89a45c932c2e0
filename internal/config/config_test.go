package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []int{0, 1000, 3000}, cfg.Scheduler.RetryDelaysMs)
	assert.Equal(t, time.Minute, cfg.Scheduler.TimeoutScanInterval())
	assert.Equal(t, time.Minute, cfg.Scheduler.DailyTaskCheckInterval())
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 10, cfg.Practice.DefaultSessionSize)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: "9090"
  mode: debug
scheduler:
  timeout_scan_seconds: 15
  retry_delays_ms: [0, 10]
practice:
  max_session_size: 50
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.TimeoutScanInterval())
	assert.Equal(t, []int{0, 10}, cfg.Scheduler.RetryDelaysMs)
	assert.Equal(t, 50, cfg.Practice.MaxSessionSize)
}

func TestReleaseModeRequiresStrongSecret(t *testing.T) {
	dir := t.TempDir()
	content := []byte("server:\n  mode: release\njwt:\n  secret: short\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/edge"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, "localhost:3569", cfg.Server.ListenAddr)
	assert.Equal(t, "localhost:3570", cfg.Server.AdminListenAddr)
	assert.Equal(t, edge.DefaultBufSize, cfg.Edge.BufferSize)
	assert.Equal(t, 7, cfg.Watchdog.PingIntervalSec)
	assert.Equal(t, 1, cfg.Watchdog.PongTimeoutSec)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("server:\n  listen_addr: \"0.0.0.0:4000\"\nedge:\n  buffer_size: 256\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg := Load(path)
	assert.Equal(t, "0.0.0.0:4000", cfg.Server.ListenAddr)
	assert.Equal(t, 256, cfg.Edge.BufferSize)
	assert.Equal(t, "localhost:3570", cfg.Server.AdminListenAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: \"0.0.0.0:4000\"\n"), 0o644))

	t.Setenv("FLOWD_LISTEN", "0.0.0.0:9999")
	cfg := Load(path)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.ListenAddr)
}

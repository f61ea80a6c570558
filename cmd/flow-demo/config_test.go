package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "inmem", cfg.Store.Backend)
	require.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	require.Equal(t, "storyteller", cfg.Workflow.Name)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "inmem", cfg.Store.Backend)
}

func TestLoadConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: redis
  redis:
    addr: redis.internal:6379
    key_prefix: "demo:"
    ttl: 1h
stream:
  enabled: true
  max_len: 500
workflow:
  name: narrator
  session_id: sess-42
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Store.Backend)
	require.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	require.Equal(t, "demo:", cfg.Store.Redis.KeyPrefix)
	require.Equal(t, time.Hour, cfg.Store.Redis.TTL)
	require.True(t, cfg.Stream.Enabled)
	require.Equal(t, 500, cfg.Stream.MaxLen)
	require.Equal(t, "narrator", cfg.Workflow.Name)
	require.Equal(t, "sess-42", cfg.Workflow.SessionID)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: dynamo\n"), 0o600))
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, `unknown store backend "dynamo"`)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FARMSYNC_CONFIG_PATH", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 15*time.Second, cfg.Remote.TimeoutDuration())
	require.Equal(t, []string{"local"}, cfg.Auth.Owners())
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farmsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  mode: http
local:
  backend: flat
  flat_dir: /tmp/farm
remote:
  dsn: postgres://localhost/farm
  timeout: 3s
outbox:
  max_attempts: 0
auth:
  enabled: true
  tokens:
    abc123: u1
`), 0o644))
	t.Setenv("FARMSYNC_CONFIG_PATH", path)
	t.Setenv("FARMSYNC_SERVER_PORT", "9090")
	t.Setenv("FARMSYNC_DEFAULT_OWNER", "u0")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http", cfg.Transport.Mode)
	require.Equal(t, "flat", cfg.Local.Backend)
	require.Equal(t, "/tmp/farm", cfg.Local.FlatDir)
	require.Equal(t, "postgres://localhost/farm", cfg.Remote.DSN)
	require.Equal(t, 3*time.Second, cfg.Remote.TimeoutDuration())
	require.Zero(t, cfg.Outbox.MaxAttempts)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, []string{"u0", "u1"}, cfg.Auth.Owners())
}

func TestLoad_TOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farmsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[local]
backend = "sqlite"
path = "/var/lib/farmsync/farm.db"

[connectivity]
status_file = "/run/farmsync/status"
start_online = false
`), 0o644))
	t.Setenv("FARMSYNC_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Local.Backend)
	require.Equal(t, "/var/lib/farmsync/farm.db", cfg.Local.Path)
	require.Equal(t, "/run/farmsync/status", cfg.Connectivity.StatusFile)
	require.False(t, cfg.Connectivity.StartOnline)
	require.Equal(t, "memory://", cfg.Remote.DSN, "unset keys keep defaults")
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("FARMSYNC_CONFIG_PATH", "")
	cases := map[string]string{
		"FARMSYNC_SERVER_PORT":         "eighty",
		"FARMSYNC_TRANSPORT":           "carrier-pigeon",
		"FARMSYNC_LOCAL_BACKEND":       "indexeddb",
		"FARMSYNC_REMOTE_TIMEOUT":      "soon",
		"FARMSYNC_OUTBOX_MAX_ATTEMPTS": "-1",
		"FARMSYNC_START_ONLINE":        "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

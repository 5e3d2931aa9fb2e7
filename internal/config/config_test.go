package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "index"
log_level = "debug"

[postgres]
host = "db.internal"
password = "filepass"

[indexer]
archive_enabled = true
archive_retention_days = 30
archive_interval = "2h"

[server]
rate_limit = 10
rate_window = "500ms"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("POOLBET_POSTGRES_PASSWORD", "envpass")
	t.Setenv("POOLBET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("POOLBET_INDEXER_ARCHIVE_INTERVAL", "45m")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "index", cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "db.internal", cfg.Postgres.Host)

	// Environment wins over the file.
	require.Equal(t, "envpass", cfg.Postgres.Password)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, 45*time.Minute, cfg.Indexer.ArchiveInterval.Duration)

	// File wins over defaults where no env is set.
	require.True(t, cfg.Indexer.ArchiveEnabled)
	require.Equal(t, 30, cfg.Indexer.ArchiveRetentionDays)
	require.Equal(t, 10, cfg.Server.RateLimit)
	require.Equal(t, 500*time.Millisecond, cfg.Server.RateWindow.Duration)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, 8000, cfg.Server.Port)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "ludicrous"
	cfg.Engine.Treasury = "not-an-address"
	cfg.Postgres.PoolMinConns = 50 // exceeds max of 10
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
	require.Contains(t, err.Error(), "treasury")
	require.Contains(t, err.Error(), "pool_min_conns")
	require.Contains(t, err.Error(), "redis: addr")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "key"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.S3.SecretKey)
	require.Equal(t, "***", red.Server.APIKey)
	require.Empty(t, red.Postgres.DSN)

	// Original untouched.
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestAPIKeyFileRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "correct horse")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "api_key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	sc := ServerConfig{APIKeyFile: path, APIKeyPassword: "correct horse"}
	key, err := sc.ResolveAPIKey()
	require.NoError(t, err)
	require.Equal(t, "super-secret-api-key", key)

	// Inline key wins over the file.
	sc.APIKey = "inline"
	key, err = sc.ResolveAPIKey()
	require.NoError(t, err)
	require.Equal(t, "inline", key)

	// Wrong password fails.
	sc = ServerConfig{APIKeyFile: path, APIKeyPassword: "wrong"}
	_, err = sc.ResolveAPIKey()
	require.Error(t, err)
}

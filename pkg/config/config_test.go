package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/store"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, store.BackendMemory, cfg.Store.Type)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, time.Hour, cfg.Token.DefaultTTL)
	assert.Equal(t, observability.InfoLevel, cfg.LogLevel())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  health_port: "9191"
store:
  type: postgres
  postgres_url: postgres://localhost/gatehouse?sslmode=disable
token:
  default_ttl: 30m
observability:
  log_level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9191", cfg.Server.HealthPort)
	assert.Equal(t, store.BackendPostgres, cfg.Store.Type)
	assert.Equal(t, 30*time.Minute, cfg.Token.DefaultTTL)
	assert.Equal(t, observability.DebugLevel, cfg.LogLevel())

	// File values fill in, defaults remain for the rest.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observability:\n  log_level: debug\n"), 0o600))

	t.Setenv("GATEHOUSE_LOG_LEVEL", "error")
	t.Setenv("GATEHOUSE_TOKEN_DEFAULT_TTL", "15m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, observability.ErrorLevel, cfg.LogLevel())
	assert.Equal(t, 15*time.Minute, cfg.Token.DefaultTTL)
}

func TestValidate(t *testing.T) {
	t.Run("postgres requires url", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Type = store.BackendPostgres
		cfg.Store.PostgresURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Type = "cassandra"
		assert.Error(t, cfg.Validate())
	})

	t.Run("ttl must be positive", func(t *testing.T) {
		cfg := Default()
		cfg.Token.DefaultTTL = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

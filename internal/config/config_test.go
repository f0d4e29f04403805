package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "event-sync", cfg.Service.Name)
	assert.Equal(t, dualwrite.ModeSingleWrite, cfg.SyncMode())
	assert.Equal(t, DriverSurrealDB, cfg.Primary.Driver)
	assert.Equal(t, 100, cfg.Sync.Backfill.BatchSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)

	s := cfg.ResilienceSettings()
	assert.Equal(t, 5*time.Second, s.Timeout)
	assert.Equal(t, 3, s.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, s.BaseDelay)
	assert.InDelta(t, 0.5, s.FailureRatio, 1e-9)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
service:
  name: sync-test
  environment: staging
sync:
  mode: dual_write
  secondary_write_timeout_ms: 250
  max_retry_attempts: 5
  backfill:
    batch_size: 500
    max_failure_ratio: 0.2
primary:
  driver: opensearch
  opensearch:
    url: http://search:9200
    timeout: 2s
secondary:
  url: postgres://u:p@db:5432/sync
  max_conns: 20
  connect_timeout: 1s
health:
  max_failed_entities: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sync-test", cfg.Service.Name)
	assert.Equal(t, dualwrite.ModeDualWrite, cfg.SyncMode())
	assert.Equal(t, DriverOpenSearch, cfg.Primary.Driver)
	assert.Equal(t, "http://search:9200", cfg.Primary.OpenSearch.URL)
	assert.Equal(t, 2*time.Second, cfg.Primary.OpenSearch.Timeout)
	// незаданные ключи секции берутся из значений по умолчанию
	assert.Equal(t, "eventsync_", cfg.Primary.OpenSearch.IndexPrefix)
	assert.Equal(t, 500, cfg.Sync.Backfill.BatchSize)
	assert.InDelta(t, 0.2, cfg.Sync.Backfill.MaxFailureRatio, 1e-9)
	assert.Equal(t, 10, cfg.Health.MaxFailedEntities)

	s := cfg.ResilienceSettings()
	assert.Equal(t, 250*time.Millisecond, s.Timeout)
	assert.Equal(t, 5, s.MaxAttempts)

	pool := cfg.PoolConfig()
	assert.Equal(t, int32(20), pool.MaxConns)
	assert.Equal(t, time.Second, pool.ConnectTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
sync:
  mode: single_write
`)
	t.Setenv("EVENTSYNC_SYNC_MODE", "dual_write")
	t.Setenv("EVENTSYNC_SECONDARY_URL", "postgres://env@db/sync")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dualwrite.ModeDualWrite, cfg.SyncMode())
	assert.Equal(t, "postgres://env@db/sync", cfg.Secondary.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown mode",
			body: "sync:\n  mode: triple_write\n",
		},
		{
			name: "unknown driver",
			body: "primary:\n  driver: redis\n",
		},
		{
			name: "opensearch without url",
			body: "primary:\n  driver: opensearch\n  opensearch:\n    url: \"\"\n",
		},
		{
			name: "surrealdb without namespace",
			body: "primary:\n  surrealdb:\n    namespace: \"\"\n",
		},
		{
			name: "failure ratio above one",
			body: "sync:\n  backfill:\n    max_failure_ratio: 1.5\n",
		},
		{
			name: "max delay below base delay",
			body: "sync:\n  base_delay_ms: 500\n  max_delay_ms: 100\n",
		},
		{
			name: "bad log level",
			body: "logger:\n  level: verbose\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

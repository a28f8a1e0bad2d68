package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notifsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Zero(t, cfg.API.RateLimit)
	assert.Equal(t, 20, cfg.API.RateBurst)
	assert.Equal(t, 60*time.Second, cfg.Engine.RefreshInterval)
	assert.Equal(t, 15*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, 20, cfg.Engine.FeedPageSize)
	assert.Equal(t, 100, cfg.Engine.MaxFeedPageSize)
	assert.Equal(t, 100, cfg.Events.Buffer)
	assert.Equal(t, 50, cfg.Events.SubscriberBuffer)
	assert.Equal(t, 15*time.Second, cfg.Metrics.CollectInterval)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
	assert.Equal(t, 5*time.Second, cfg.Health.Timeout)
	assert.Equal(t, 3, cfg.Health.Retries)
	assert.Equal(t, []string{"storage", "engine"}, cfg.Health.Critical)
}

func TestDefault_MatchesLoad(t *testing.T) {
	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, loaded, Default())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  json: true
store:
  driver: bolt
  path: /var/lib/notifsync
engine:
  refresh_interval: 30s
  feed_page_size: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/notifsync", cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Engine.RefreshInterval)
	assert.Equal(t, 10, cfg.Engine.FeedPageSize)
	assert.Equal(t, 100, cfg.Engine.MaxFeedPageSize, "unset keys keep defaults")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  addr: \":9000\"\n")
	t.Setenv("NOTIFSYNC_API_ADDR", ":9100")
	t.Setenv("NOTIFSYNC_ENGINE_REFRESH_INTERVAL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.API.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Engine.RefreshInterval)
}

func TestLoad_CriticalComponents(t *testing.T) {
	cfg, err := Load(writeConfig(t, "health:\n  critical: [storage]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"storage"}, cfg.Health.Critical)

	t.Setenv("NOTIFSYNC_HEALTH_CRITICAL", "storage,subscription")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"storage", "subscription"}, cfg.Health.Critical)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "store:\n  driver: postgres\n", "store.driver"},
		{"zero interval", "engine:\n  refresh_interval: 0s\n", "engine.refresh_interval"},
		{"max below default", "engine:\n  feed_page_size: 50\n  max_feed_page_size: 10\n", "max_feed_page_size"},
		{"negative buffer", "events:\n  buffer: -1\n", "events buffers"},
		{"burst without rate", "api:\n  rate_limit: 5\n  rate_burst: 0\n", "api.rate_burst"},
		{"zero retries", "health:\n  retries: 0\n", "health"},
		{"empty critical name", "health:\n  critical: [storage, \"\"]\n", "health.critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "log: [unterminated\n"))
	assert.Error(t, err)
}

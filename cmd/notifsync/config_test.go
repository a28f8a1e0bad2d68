package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/notifsync/pkg/config"
)

func runRoot(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestConfigCommand_DefaultsRoundTrip(t *testing.T) {
	t.Setenv("NOTIFSYNC_API_ADDR", ":9999")
	out := runRoot(t, "config", "--defaults")
	assert.Contains(t, out, "refresh_interval: 1m0s")
	assert.NotContains(t, out, "9999", "environment is ignored")

	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0600))
	os.Unsetenv("NOTIFSYNC_API_ADDR")

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), loaded)
}

func TestConfigCommand_EffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: bolt\n  path: ./data\n"), 0600))
	t.Setenv("NOTIFSYNC_HEALTH_CRITICAL", "storage")

	out := runRoot(t, "config", "--defaults=false", "--config", path)
	assert.Contains(t, out, "driver: bolt")
	assert.Contains(t, out, "path: ./data")
	assert.Contains(t, out, "- storage")
	assert.NotContains(t, out, "- engine")
}

func TestConfigCommand_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0600))

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"config", "--defaults=false", "--config", path})
	defer rootCmd.SetArgs(nil)
	assert.ErrorContains(t, rootCmd.Execute(), "store.driver")
}

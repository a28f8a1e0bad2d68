package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/notifsync/pkg/config"
	"github.com/cuemby/notifsync/pkg/metrics"
)

func TestConfigureHealth_ReadinessFollowsConfig(t *testing.T) {
	defer metrics.UnregisterComponent(metrics.ComponentStorage)
	defer metrics.UnregisterComponent(metrics.ComponentEngine)
	defer configureHealth(config.Default())

	cfg := config.Default()
	cfg.Health.Critical = []string{metrics.ComponentStorage}
	configureHealth(cfg)

	metrics.RegisterComponent(metrics.ComponentStorage, true, "")
	metrics.UnregisterComponent(metrics.ComponentEngine)
	readiness := metrics.GetReadiness()
	require.Equal(t, "ready", readiness.Status, "engine is not part of the readiness set")
	assert.Equal(t, Version, readiness.Version)

	configureHealth(config.Default())
	assert.Equal(t, "not_ready", metrics.GetReadiness().Status, "default set waits for the engine")
}

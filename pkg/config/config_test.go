package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, 20, cfg.DefaultLimits.PerMinute)
	assert.Equal(t, 300, cfg.DefaultLimits.PerHour)
	assert.Equal(t, 2000, cfg.DefaultLimits.PerDay)
	assert.Equal(t, 5, cfg.DefaultLimits.Concurrent)
	assert.Equal(t, 100, cfg.QueueMaxSize)
	assert.Equal(t, 300*time.Second, cfg.DecisionTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LIMIT_PER_MINUTE", "3")
	t.Setenv("QUEUE_MAX_SIZE", "0")
	t.Setenv("PERMISSION_TIMEOUT", "30s")
	t.Setenv("DATABASE_URL", "postgres://localhost/agentgate")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 3, cfg.DefaultLimits.PerMinute)
	assert.Zero(t, cfg.QueueMaxSize)
	assert.Equal(t, 30*time.Second, cfg.DecisionTimeout)
	assert.Equal(t, "postgres://localhost/agentgate", cfg.DatabaseURL)
}

func TestLoadRejectsMalformedInt(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestMalformedDurationFallsBack(t *testing.T) {
	t.Setenv("PERMISSION_TIMEOUT", "bogus")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.DecisionTimeout)
}

package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()

	cfg := fromViper()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, int64(10), cfg.Database.MaxConns)
	assert.False(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Storage.Enabled)

	f := cfg.Forecast
	assert.Equal(t, 52, f.SeasonalPeriod)
	assert.Equal(t, 0.05, f.SignificanceThreshold)
	assert.Equal(t, 180, f.HorizonDays)
	assert.Equal(t, 120, f.ReplenishmentDays)
	assert.Equal(t, 0.6, f.StatisticalWeight)
	assert.Equal(t, 15, f.EventBaselineDays)
	assert.True(t, f.ClampNegative)
	assert.False(t, f.ApplyEventUplift)
	assert.True(t, f.RetryReducedOrder)

	assert.Equal(t, 4, cfg.Pipeline.WorkerCount)
	assert.Equal(t, 500, cfg.Pipeline.BatchSize)
	assert.Equal(t, 2, cfg.Pipeline.RetryAttempts)
}

func TestEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()
	viper.AutomaticEnv()

	t.Setenv("FORECAST_HORIZON_DAYS", "90")
	t.Setenv("FORECAST_STATISTICAL_WEIGHT", "0.4")
	t.Setenv("FORECAST_APPLY_EVENT_UPLIFT", "true")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("PIPELINE_WORKER_COUNT", "8")

	cfg := fromViper()
	assert.Equal(t, 90, cfg.Forecast.HorizonDays)
	assert.Equal(t, 0.4, cfg.Forecast.StatisticalWeight)
	assert.True(t, cfg.Forecast.ApplyEventUplift)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 8, cfg.Pipeline.WorkerCount)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	ensureDir(dir)
	assert.DirExists(t, dir)

	// Empty paths are ignored.
	ensureDir("")
}

func TestLoadIsShared(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("APP_UPLOAD_DIR", filepath.Join(t.TempDir(), "uploads"))
	t.Setenv("APP_DATA_DIR", filepath.Join(t.TempDir(), "data"))

	first := Load()
	require.NotNil(t, first)
	assert.Same(t, first, Load())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Collector.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Collector.FlushInterval)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.ProcessingInterval)
	assert.Equal(t, time.Second, cfg.Pipeline.LatencyThreshold)
	assert.Equal(t, 5.0, cfg.Pipeline.ErrorRateThreshold)
	assert.Equal(t, 1000, cfg.Pipeline.QueueSizeThreshold)
	assert.Equal(t, []string{"minute", "hour", "day", "week", "month"}, cfg.Pipeline.Windows)
	assert.Equal(t, time.UTC, cfg.Pipeline.Location())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("COLLECTOR_BATCH_SIZE", "7")
	t.Setenv("PIPELINE_PROCESSING_INTERVAL", "250ms")
	t.Setenv("PIPELINE_WINDOWS", "hour, day")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "telemetry")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Collector.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.ProcessingInterval)
	assert.Equal(t, []string{"hour", "day"}, cfg.Pipeline.Windows)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "telemetry", cfg.Database.Database)
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "collector:\n  batch_size: 20\n  flush_interval: 3s\npipeline:\n  timezone: Europe/Berlin\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("COLLECTOR_BATCH_SIZE", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Collector.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.Collector.FlushInterval)
	assert.Equal(t, "Europe/Berlin", cfg.Pipeline.Location().String())
}

func TestLoad_RejectsUnknownWindow(t *testing.T) {
	t.Setenv("PIPELINE_WINDOWS", "minute,fortnight")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}

func TestLoad_RejectsUnknownTimezone(t *testing.T) {
	t.Setenv("PIPELINE_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mars/Olympus")
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "system_monitor.interval", envTransformFunc("SYSTEM_MONITOR_INTERVAL"))
	assert.Equal(t, "database.password", envTransformFunc("DB_PASSWORD"))
	assert.Equal(t, "sink.breaker_timeout", envTransformFunc("SINK_BREAKER_TIMEOUT"))
	assert.Equal(t, "", envTransformFunc("HOME"))
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=d sslmode=disable", c.DatabaseDSN())
}

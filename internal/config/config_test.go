package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagridint/slv-extractor/internal/models"
)

var now = time.Date(2016, 5, 3, 14, 37, 12, 0, time.UTC)

func setBaseEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("SLV_USERNAME", "extractor")
	t.Setenv("SLV_PASSWORD", "secret")
	t.Setenv("SLV_TIMEZONE", "UTC")
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("SLV_CONFIG_FILE", "")
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv("SLV_DATA_DIR", dir)
	return dir
}

func TestLoad_ScheduledDefaults(t *testing.T) {
	dir := setBaseEnv(t)

	cfg, err := Load(nil, now)

	require.NoError(t, err)
	assert.Equal(t, models.RunModeScheduled, cfg.Mode)
	assert.Equal(t, time.Date(2016, 5, 3, 14, 0, 0, 0, time.UTC), cfg.Range.To)
	assert.Equal(t, time.Date(2016, 5, 2, 14, 0, 0, 0, time.UTC), cfg.Range.From)
	assert.Equal(t, 5*time.Minute, cfg.SLV.RequestTimeout)
	assert.Equal(t, 0, cfg.SLV.RetryCount)
	assert.Equal(t, DefaultBaseURL, cfg.SLV.BaseURL)
	assert.Equal(t, models.CategoryStreetlight, cfg.SLV.Category)
	assert.DirExists(t, dir)
}

func TestLoad_FromAndTo(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load([]string{"-f", "2016/05/01 00:00:00", "--todate", "2016/05/03 02:00:00"}, now)

	require.NoError(t, err)
	assert.Equal(t, models.RunModeAdHoc, cfg.Mode)
	assert.Equal(t, time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC), cfg.Range.From)
	assert.Equal(t, time.Date(2016, 5, 3, 2, 0, 0, 0, time.UTC), cfg.Range.To)
}

func TestLoad_ToOnlyStartsAtEpoch(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load([]string{"-t", "2016/05/03 02:00:00"}, now)

	require.NoError(t, err)
	assert.Equal(t, models.RunModeAdHoc, cfg.Mode)
	assert.Equal(t, time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Range.From)
}

func TestLoad_FromOnlyEndsAtCurrentHour(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load([]string{"-f", "2016/05/03 00:00:00"}, now)

	require.NoError(t, err)
	assert.Equal(t, models.RunModeAdHoc, cfg.Mode)
	assert.Equal(t, time.Date(2016, 5, 3, 14, 0, 0, 0, time.UTC), cfg.Range.To)
}

func TestLoad_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad from date", []string{"-f", "2016-05-01"}},
		{"bad to date", []string{"-t", "yesterday"}},
		{"from after to", []string{"-f", "2016/05/03 00:00:00", "-t", "2016/05/01 00:00:00"}},
		{"unknown flag", []string{"-x"}},
		{"stray argument", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)

			_, err := Load(tt.args, now)

			assert.ErrorIs(t, err, ErrUsage)
		})
	}
}

func TestLoad_Help(t *testing.T) {
	setBaseEnv(t)

	_, err := Load([]string{"-h"}, now)

	assert.True(t, errors.Is(err, ErrHelp))
}

func TestLoad_UncreatableDirectory(t *testing.T) {
	setBaseEnv(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := Load([]string{"-d", filepath.Join(blocker, "sub")}, now)

	assert.ErrorIs(t, err, ErrUsage)
}

func TestLoad_MissingCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SLV_PASSWORD", "")

	_, err := Load(nil, now)

	assert.ErrorIs(t, err, ErrUsage)
}

func TestLoad_UnsupportedBackend(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORAGE_BACKEND", "bigquery")

	_, err := Load(nil, now)

	assert.ErrorIs(t, err, ErrUsage)
}

func TestLoad_ConfigFileOverlay(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "slv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
slv:
  request_timeout: 90s
  window_size: 12h
storage:
  backend: sqlite
  sqlite_path: /tmp/slv.db
redis:
  enabled: true
  addr: redis:6379
  lock_key: slv:extractor:lock
mqtt:
  enabled: true
  broker: tcp://mqtt:1883
  qos: 0
influxdb:
  enabled: true
  url: http://influx:8086
  bucket: streetlights
log:
  level: debug
`), 0644))

	cfg, err := Load([]string{"-c", path}, now)

	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.SLV.RequestTimeout)
	assert.Equal(t, 12*time.Hour, cfg.SLV.WindowSize)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/slv.db", cfg.Storage.SQLitePath)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "slv:extractor:lock", cfg.Redis.LockKey)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://mqtt:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, "streetlights", cfg.InfluxDB.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 文件未覆盖的保持环境变量的值
	assert.Equal(t, "extractor", cfg.SLV.Username)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	setBaseEnv(t)

	_, err := Load([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}, now)

	assert.ErrorIs(t, err, ErrUsage)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SLV_REQUEST_TIMEOUT", "0s")
	t.Setenv("SLV_RETRY_COUNT", "2")
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load(nil, now)

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.SLV.RequestTimeout)
	assert.Equal(t, 2, cfg.SLV.RetryCount)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SLV_TIMEZONE", "Mars/Olympus")

	_, err := Load(nil, now)

	assert.ErrorIs(t, err, ErrUsage)
	assert.ErrorContains(t, err, "Mars/Olympus")
}

func TestLoad_Metrics(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("SLV_METRICS", "")

		cfg, err := Load(nil, now)

		require.NoError(t, err)
		assert.Equal(t, models.TrackedMetrics, cfg.Metrics)
	})

	t.Run("subset from env", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("SLV_METRICS", "Temperature, Energy")

		cfg, err := Load(nil, now)

		require.NoError(t, err)
		assert.Equal(t, []models.Metric{models.MetricTemperature, models.MetricEnergy}, cfg.Metrics)
	})

	for _, value := range []string{"Foo", "RSSI"} {
		t.Run("rejects "+value, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("SLV_METRICS", value)

			_, err := Load(nil, now)

			assert.ErrorIs(t, err, ErrUsage)
		})
	}
}

func TestLoad_MetricsFromConfigFile(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SLV_METRICS", "")
	path := filepath.Join(t.TempDir(), "slv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
slv:
  metrics: [MainVoltage, Current]
`), 0644))

	cfg, err := Load([]string{"-c", path}, now)

	require.NoError(t, err)
	assert.Equal(t, []models.Metric{models.MetricMainVoltage, models.MetricCurrent}, cfg.Metrics)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-health/internal/checker"
	"github.com/oshokin/alarm-health/internal/classifier"
)

// TestValidate checks required fields and the defaults applied to the rest.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)

	// Missing alarms file.
	require.ErrorIs(t, Validate(new(Config)), errAlarmsFileRequired)

	// Defaults.
	cfg := &Config{AlarmsFile: "alarms.json"}
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultLookback, cfg.Lookback)
	require.Equal(t, DefaultConcurrency, cfg.Concurrency)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.Equal(t, DefaultLogFormat, cfg.LogFormat)
	require.Equal(t, checker.DefaultLimits(), cfg.Limits)
	require.Equal(t, classifier.DefaultWindows(), cfg.Windows)
	require.Equal(t, Sink{Type: SinkJSON, Path: DefaultRecordsFilename}, cfg.Sink)
	require.Zero(t, cfg.Advisor.Timeout)

	// Bad values.
	require.ErrorIs(t, Validate(&Config{AlarmsFile: "a", Concurrency: -1}), errInvalidConcurrency)
	require.ErrorIs(t, Validate(&Config{AlarmsFile: "a", Lookback: -time.Hour}), errInvalidLookback)
	require.ErrorIs(t, Validate(&Config{AlarmsFile: "a", Sink: Sink{Type: "s3"}}), errUnknownSink)
	require.Error(t, Validate(&Config{AlarmsFile: "a", Advisor: Advisor{Endpoint: "not a url"}}))

	// Okay with advisor.
	cfg = &Config{
		AlarmsFile: "alarms.json",
		Advisor:    Advisor{Endpoint: "https://advisor.local/v1/advise"},
	}
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultAdvisorTimeout, cfg.Advisor.Timeout)
}

// TestValidate_KeepsExplicitValues leaves configured values untouched.
func TestValidate_KeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		AlarmsFile:  "alarms.json",
		Lookback:    48 * time.Hour,
		Concurrency: 16,
		Limits:      checker.Limits{MaxThreshold: 90, MaxDatapoints: 3},
		Windows:     classifier.Windows{Short: 5 * time.Minute},
		Sink:        Sink{Type: SinkSQLite, Path: "records.db"},
	}
	require.NoError(t, Validate(cfg))
	require.Equal(t, 48*time.Hour, cfg.Lookback)
	require.Equal(t, 16, cfg.Concurrency)
	require.Equal(t, checker.Limits{MaxThreshold: 90, MaxDatapoints: 3}, cfg.Limits)
	require.Equal(t, 5*time.Minute, cfg.Windows.Short)
	require.Equal(t, classifier.DefaultWindows().LongLived, cfg.Windows.LongLived)
	require.Equal(t, Sink{Type: SinkSQLite, Path: "records.db"}, cfg.Sink)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := Default()
	cfg.AlarmsFile = "alarms.json"
	cfg.HistoryFile = "history.jsonl"
	cfg.MetricsFile = "alarm_health.prom"
	cfg.Sink = Sink{Type: SinkSQLite, Path: "records.db"}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)

	// File exists with restricted permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)
}

// TestLoad_YAML reads a hand-written file with duration strings.
func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alarm-health.yaml")
	contents := `
alarms_file: alarms.json
history_file: history.json
lookback: 72h
concurrency: 8
limits:
  max_threshold: 50
windows:
  short: 3m
advisor:
  endpoint: http://localhost:8000/advise
  timeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 72*time.Hour, cfg.Lookback)
	require.Equal(t, 8, cfg.Concurrency)
	require.InDelta(t, 50.0, cfg.Limits.MaxThreshold, 0)
	require.Equal(t, checker.DefaultMaxDatapoints, cfg.Limits.MaxDatapoints)
	require.Equal(t, 3*time.Minute, cfg.Windows.Short)
	require.Equal(t, 10*time.Second, cfg.Advisor.Timeout)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

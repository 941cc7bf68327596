package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-health/internal/classifier"
	"github.com/oshokin/alarm-health/internal/config"
	"github.com/oshokin/alarm-health/internal/repository/record"
)

const describeAlarmsFixture = `{
  "MetricAlarms": [
    {
      "AlarmArn": "arn:aws:cloudwatch:eu-west-1:123456789012:alarm:api-5xx",
      "AlarmName": "api-5xx",
      "AlarmDescription": "API 5xx rate above 1%",
      "Threshold": 1,
      "DatapointsToAlarm": 2,
      "ActionsEnabled": true,
      "AlarmActions": ["arn:aws:sns:eu-west-1:123456789012:page"],
      "OKActions": [],
      "InsufficientDataActions": [],
      "StateValue": "OK"
    },
    {
      "AlarmArn": "arn:aws:cloudwatch:eu-west-1:123456789012:alarm:disk",
      "AlarmName": "disk",
      "Threshold": 95,
      "ActionsEnabled": false,
      "StateValue": "ALARM"
    }
  ],
  "CompositeAlarms": []
}`

// historyLine renders one line of the jsonl history export.
func historyLine(t *testing.T, arn string, from, to string, fromStart, toStart time.Time) string {
	t.Helper()

	data := fmt.Sprintf(`{"oldState":{"stateValue":%q,"stateReasonData":{"startDate":%q}},`+
		`"newState":{"stateValue":%q,"stateReasonData":{"startDate":%q}}}`,
		from, fromStart.Format("2006-01-02T15:04:05.000-0700"),
		to, toStart.Format("2006-01-02T15:04:05.000-0700"))

	line, err := json.Marshal(map[string]string{
		"AlarmArn":        arn,
		"Timestamp":       toStart.Add(time.Second).Format(time.RFC3339),
		"HistoryItemType": "StateUpdate",
		"HistoryData":     data,
	})
	require.NoError(t, err)

	return string(line)
}

// TestRun_EndToEnd runs the command against files and reads the JSON sink back.
// It replaces the global logger, so it does not run in parallel.
func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	arn := "arn:aws:cloudwatch:eu-west-1:123456789012:alarm:api-5xx"
	alarmStart := time.Now().Add(-3 * time.Hour).Truncate(time.Second)

	history := strings.Join([]string{
		historyLine(t, arn, "OK", "ALARM", alarmStart.Add(-72*time.Hour), alarmStart),
		historyLine(t, arn, "ALARM", "OK", alarmStart, alarmStart.Add(90*time.Second)),
	}, "\n")

	alarmsFile := filepath.Join(dir, "alarms.json")
	historyFile := filepath.Join(dir, "history.jsonl")
	recordsFile := filepath.Join(dir, "records.json")
	metricsFile := filepath.Join(dir, "alarm_health.prom")
	configFile := filepath.Join(dir, "alarm-health.yaml")

	require.NoError(t, os.WriteFile(alarmsFile, []byte(describeAlarmsFixture), config.DefaultFilePermissions))
	require.NoError(t, os.WriteFile(historyFile, []byte(history), config.DefaultFilePermissions))

	cfg := config.Default()
	cfg.AlarmsFile = alarmsFile
	cfg.LogLevel = "error"
	require.NoError(t, config.Save(configFile, cfg))

	err := Run(ctx, &Options{
		ConfigPath:  configFile,
		HistoryFile: historyFile,
		SinkPath:    recordsFile,
		MetricsFile: metricsFile,
	})
	require.NoError(t, err)

	repo := record.NewFileRepository(recordsFile)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	api, err := repo.Get(ctx, arn)
	require.NoError(t, err)
	require.Equal(t, &classifier.Counters{ShortAlarmCount: 1}, api.Counters)
	require.False(t, api.IssueFlags.NoDescription)
	require.NotEmpty(t, api.RunID)

	disk, err := repo.Get(ctx, "arn:aws:cloudwatch:eu-west-1:123456789012:alarm:disk")
	require.NoError(t, err)
	require.True(t, disk.IssueFlags.NoDescription)
	require.True(t, disk.IssueFlags.HighThreshold)
	require.True(t, disk.IssueFlags.HighDataPoints)
	require.True(t, disk.IssueFlags.NoActions)
	require.Equal(t, &classifier.Counters{}, disk.Counters)
	require.Equal(t, api.RunID, disk.RunID)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), "alarm_health_alarms_total 2")
}

// TestLoadConfig_Overrides applies command line values over the file.
func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()

	// No file: defaults plus the required alarms file.
	cfg, err := loadConfig(&Options{AlarmsFile: "alarms.json", Concurrency: 9, SinkType: config.SinkSQLite})
	require.NoError(t, err)
	require.Equal(t, "alarms.json", cfg.AlarmsFile)
	require.Equal(t, 9, cfg.Concurrency)
	require.Equal(t, config.SinkSQLite, cfg.Sink.Type)
	require.Equal(t, config.DefaultLookback, cfg.Lookback)

	// Missing alarms file fails validation.
	_, err = loadConfig(new(Options))
	require.Error(t, err)

	// Unreadable config file.
	_, err = loadConfig(&Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

// TestConfigureLogger rejects unknown levels and formats.
func TestConfigureLogger(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, configureLogger(&config.Config{LogLevel: "verbose", LogFormat: "json"}), errUnknownLogLevel)
	require.ErrorIs(t, configureLogger(&config.Config{LogLevel: "info", LogFormat: "xml"}), errUnknownLogFormat)
}

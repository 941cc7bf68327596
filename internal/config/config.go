package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-health/internal/checker"
	"github.com/oshokin/alarm-health/internal/classifier"
)

// Config holds the settings of one analysis run.
type Config struct {
	// AlarmsFile is the describe-alarms JSON export to evaluate.
	AlarmsFile string `yaml:"alarms_file"`
	// HistoryFile is the alarm history export (describe-alarm-history JSON or jsonl).
	HistoryFile string `yaml:"history_file"`
	// Lookback bounds the history window ending at run time.
	Lookback time.Duration `yaml:"lookback"`
	// Concurrency is the number of alarms classified in parallel.
	Concurrency int `yaml:"concurrency"`
	// LogLevel is the zap level name.
	LogLevel string `yaml:"log_level"`
	// LogFormat is console or json.
	LogFormat string `yaml:"log_format"`
	// Limits are the static check thresholds.
	Limits checker.Limits `yaml:"limits"`
	// Windows are the classification time windows.
	Windows classifier.Windows `yaml:"windows"`
	// Sink selects where records are written.
	Sink Sink `yaml:"sink"`
	// Advisor configures the optional description advisor.
	Advisor Advisor `yaml:"advisor"`
	// MetricsFile is the Prometheus textfile written after the run. Empty disables it.
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// Sink describes the record store.
type Sink struct {
	// Type is SinkJSON or SinkSQLite.
	Type string `yaml:"type"`
	// Path is the file the store writes to.
	Path string `yaml:"path"`
}

// Advisor configures the description advisor endpoint.
type Advisor struct {
	// Endpoint is the advisor URL. Empty disables advisory.
	Endpoint string `yaml:"endpoint,omitempty"`
	// Timeout bounds each advisor request.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for run settings.
	DefaultConfigFilename = "alarm-health.yaml"

	// DefaultRecordsFilename is the default JSON sink file.
	DefaultRecordsFilename = "alarm-health-records.json"

	// DefaultLookback is the default history window.
	DefaultLookback = 14 * 24 * time.Hour

	// DefaultConcurrency is the default number of parallel classifications.
	DefaultConcurrency = 4

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log encoding.
	DefaultLogFormat = "console"

	// DefaultAdvisorTimeout bounds an advisor request when no timeout is set.
	DefaultAdvisorTimeout = 30 * time.Second

	// DefaultFilePermissions is the default permission for files the tool writes.
	DefaultFilePermissions = 0o600

	// SinkJSON stores records in a JSON file.
	SinkJSON = "json"
	// SinkSQLite stores records in a SQLite database.
	SinkSQLite = "sqlite"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errAlarmsFileRequired is returned when no alarm export is configured.
	errAlarmsFileRequired = errors.New("alarms file must be provided")
	// errInvalidConcurrency is returned for a negative concurrency.
	errInvalidConcurrency = errors.New("concurrency must not be negative")
	// errInvalidLookback is returned for a negative lookback.
	errInvalidLookback = errors.New("lookback must not be negative")
	// errUnknownSink is returned for a sink type other than json or sqlite.
	errUnknownSink = errors.New("unknown sink type")
)

// Default returns a configuration with every default applied except AlarmsFile.
func Default() *Config {
	return &Config{
		Lookback:    DefaultLookback,
		Concurrency: DefaultConcurrency,
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		Limits:      checker.DefaultLimits(),
		Windows:     classifier.DefaultWindows(),
		Sink: Sink{
			Type: SinkJSON,
			Path: DefaultRecordsFilename,
		},
	}
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read decodes the configuration at path without validating it.
// Callers that apply overrides validate afterwards.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults for the rest.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.AlarmsFile == "" {
		return errAlarmsFileRequired
	}

	if cfg.Lookback < 0 {
		return errInvalidLookback
	}

	if cfg.Lookback == 0 {
		cfg.Lookback = DefaultLookback
	}

	if cfg.Concurrency < 0 {
		return errInvalidConcurrency
	}

	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}

	// Non-positive limits and windows fall back to defaults.
	defaults := checker.DefaultLimits()
	if cfg.Limits.MaxThreshold <= 0 {
		cfg.Limits.MaxThreshold = defaults.MaxThreshold
	}

	if cfg.Limits.MaxDatapoints <= 0 {
		cfg.Limits.MaxDatapoints = defaults.MaxDatapoints
	}

	cfg.Windows = classifier.New(cfg.Windows).Windows()

	switch cfg.Sink.Type {
	case "":
		cfg.Sink.Type = SinkJSON
	case SinkJSON, SinkSQLite:
	default:
		return fmt.Errorf("%w: %q", errUnknownSink, cfg.Sink.Type)
	}

	if cfg.Sink.Path == "" {
		cfg.Sink.Path = DefaultRecordsFilename
	}

	if cfg.Advisor.Endpoint == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(cfg.Advisor.Endpoint); err != nil {
		return fmt.Errorf("invalid advisor endpoint: %w", err)
	}

	if cfg.Advisor.Timeout <= 0 {
		cfg.Advisor.Timeout = DefaultAdvisorTimeout
	}

	return nil
}

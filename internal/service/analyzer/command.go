package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-health/internal/advisor"
	"github.com/oshokin/alarm-health/internal/checker"
	"github.com/oshokin/alarm-health/internal/classifier"
	"github.com/oshokin/alarm-health/internal/config"
	"github.com/oshokin/alarm-health/internal/logger"
	"github.com/oshokin/alarm-health/internal/metrics"
	"github.com/oshokin/alarm-health/internal/repository/record"
	"github.com/oshokin/alarm-health/internal/source"
)

// Options controls one analysis run. Non-empty values override the config file.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// AlarmsFile overrides the describe-alarms export.
	AlarmsFile string
	// HistoryFile overrides the alarm history export.
	HistoryFile string
	// Lookback overrides the history window.
	Lookback time.Duration
	// Concurrency overrides the number of parallel classifications.
	Concurrency int
	// SinkType overrides the record store type.
	SinkType string
	// SinkPath overrides the record store path.
	SinkPath string
	// AdvisorEndpoint overrides the advisor URL.
	AdvisorEndpoint string
	// MetricsFile overrides the metrics textfile path.
	MetricsFile string
}

// Run loads the configuration, wires the collaborators and runs one analysis.
func Run(ctx context.Context, opts *Options) error {
	// Load settings and apply command line overrides.
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Configure logging before any logger is derived from the global one.
	if err = configureLogger(cfg); err != nil {
		return err
	}

	defer logger.Sync()

	// Set context with logger name and run id for tracking.
	runID := uuid.NewString()
	ctx = logger.WithFields(logger.WithName(ctx, "alarm-health"), "run_id", runID)

	// Open the record store.
	repo, err := record.Open(cfg.Sink)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}

	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Close record store failed", "error", closeErr)
		}
	}()

	recorder := metrics.New()

	analyzerOpts := []Option{
		WithChecker(checker.New(cfg.Limits)),
		WithClassifier(classifier.New(cfg.Windows)),
		WithMetrics(recorder),
		WithConcurrency(cfg.Concurrency),
		WithLookback(cfg.Lookback),
		WithRunID(runID),
	}

	if cfg.HistoryFile != "" {
		analyzerOpts = append(analyzerOpts, WithHistory(source.NewFileHistorySource(cfg.HistoryFile)))
	}

	if cfg.Advisor.Endpoint != "" {
		descriptionAdvisor, advisorErr := advisor.NewHTTPAdvisor(cfg.Advisor.Endpoint,
			advisor.WithTimeout(cfg.Advisor.Timeout))
		if advisorErr != nil {
			return fmt.Errorf("create advisor: %w", advisorErr)
		}

		analyzerOpts = append(analyzerOpts, WithAdvisor(descriptionAdvisor))
	}

	a, err := New(source.NewFileAlarmSource(cfg.AlarmsFile), repo, analyzerOpts...)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}

	logger.InfoKV(ctx, "Starting analysis",
		"alarms_file", cfg.AlarmsFile,
		"history_file", cfg.HistoryFile,
		"lookback", cfg.Lookback.String(),
		"sink", cfg.Sink.Type,
		"sink_path", cfg.Sink.Path,
	)

	_, runErr := a.Analyze(ctx)

	// Write metrics even for a failed run.
	if cfg.MetricsFile != "" {
		if err = recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.WarnKV(ctx, "Write metrics failed", "path", cfg.MetricsFile, "error", err)
		}
	}

	return runErr
}

// loadConfig reads the config file, or starts from defaults when no file is
// given, then applies overrides and validates.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg := config.Default()

	if opts.ConfigPath != "" {
		loaded, err := config.Read(opts.ConfigPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	applyOverrides(cfg, opts)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyOverrides copies non-empty command line values into cfg.
func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.AlarmsFile != "" {
		cfg.AlarmsFile = opts.AlarmsFile
	}

	if opts.HistoryFile != "" {
		cfg.HistoryFile = opts.HistoryFile
	}

	if opts.Lookback > 0 {
		cfg.Lookback = opts.Lookback
	}

	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}

	if opts.SinkType != "" {
		cfg.Sink.Type = opts.SinkType
	}

	if opts.SinkPath != "" {
		cfg.Sink.Path = opts.SinkPath
	}

	if opts.AdvisorEndpoint != "" {
		cfg.Advisor.Endpoint = opts.AdvisorEndpoint
	}

	if opts.MetricsFile != "" {
		cfg.MetricsFile = opts.MetricsFile
	}
}

// configureLogger replaces the global logger with the configured level and format.
func configureLogger(cfg *config.Config) error {
	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, cfg.LogLevel)
	}

	format, ok := logger.ParseFormat(cfg.LogFormat)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogFormat, cfg.LogFormat)
	}

	logger.Configure(level, format)

	return nil
}

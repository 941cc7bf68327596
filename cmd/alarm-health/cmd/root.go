package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-health/internal/service/analyzer"
	"github.com/oshokin/alarm-health/internal/version"
)

var (
	// options collects the command line overrides.
	options = new(analyzer.Options)

	// rootCmd represents the base command for running one analysis.
	rootCmd = &cobra.Command{
		Use:   "alarm-health [alarms-file]",
		Short: "Evaluate the health of monitoring alarms.",
		Long: `Runs static configuration checks over exported alarm definitions and
classifies each alarm's state history into long-lived, short, recurring and
long-term issue periods.

Alarms are read from describe-alarms JSON output. History is read from
describe-alarm-history JSON output or a line-delimited export.
One merged record per alarm is written to a JSON file or a SQLite database.
Command line flags override values from the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Alarms file argument overrides the flag and config.
			if len(args) > 0 {
				options.AlarmsFile = args[0]
			}

			return analyzer.Run(ctx, options)
		},
		SilenceUsage: true,
	}
)

// Execute runs the alarm-health CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&options.ConfigPath, "config", "c", "", "path to configuration file")
	flags.StringVarP(&options.AlarmsFile, "alarms", "a", "", "path to describe-alarms JSON")
	flags.StringVarP(&options.HistoryFile, "history", "H", "", "path to alarm history JSON or jsonl")
	flags.DurationVarP(&options.Lookback, "lookback", "l", 0, "history window ending now (default 336h)")
	flags.IntVarP(&options.Concurrency, "concurrency", "j", 0, "alarms classified in parallel (default 4)")
	flags.StringVar(&options.SinkType, "sink", "", "record store type: json or sqlite")
	flags.StringVarP(&options.SinkPath, "output", "o", "", "record store path")
	flags.StringVar(&options.AdvisorEndpoint, "advisor", "", "description advisor URL")
	flags.StringVar(&options.MetricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")
}

// Package metrics records run statistics with Prometheus collectors.
// Runs are one-shot, so the registry is written to a node-exporter textfile
// at the end instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/alarm-health/internal/classifier"
	"github.com/oshokin/alarm-health/internal/report"
)

const (
	metricPrefix = "alarm_health_"

	// ResultSuccess labels a completed operation.
	ResultSuccess = "success"
	// ResultError labels a failed operation.
	ResultError = "error"
)

// Recorder holds the collectors of one run on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	alarmsTotal     prometheus.Counter
	issueFlags      *prometheus.GaugeVec
	classifyResults *prometheus.CounterVec
	counters        *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	advisories      *prometheus.CounterVec
	persists        *prometheus.CounterVec
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		alarmsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "alarms_total",
			Help: "Total unique alarms evaluated",
		}),
		issueFlags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "issue_flag_alarms",
			Help: "Alarms failing each static configuration check",
		}, []string{"flag"}),
		classifyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "history_classifications_total",
			Help: "History classifications by result",
		}, []string{"result"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "classified_periods_total",
			Help: "Classified alarm periods by category",
		}, []string{"category"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "history_anomalies_total",
			Help: "History anomalies by kind",
		}, []string{"kind"}),
		advisories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "advisory_requests_total",
			Help: "Description advisory requests by result",
		}, []string{"result"}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "record_writes_total",
			Help: "Record writes to the sink by result",
		}, []string{"result"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "run_duration_seconds",
			Help: "Duration of the last run in seconds",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}

	r.registry.MustRegister(
		r.alarmsTotal,
		r.issueFlags,
		r.classifyResults,
		r.counters,
		r.anomalies,
		r.advisories,
		r.persists,
		r.runDuration,
		r.lastRun,
	)

	return r
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveAlarms records the number of unique alarms in the run.
func (r *Recorder) ObserveAlarms(n int) {
	r.alarmsTotal.Add(float64(n))
}

// ObserveFlags records how many records carry each issue flag.
func (r *Recorder) ObserveFlags(records []*report.Record) {
	var noDescription, highThreshold, highDataPoints, noActions int

	for _, record := range records {
		flags := record.IssueFlags
		noDescription += btoi(flags.NoDescription)
		highThreshold += btoi(flags.HighThreshold)
		highDataPoints += btoi(flags.HighDataPoints)
		noActions += btoi(flags.NoActions)
	}

	r.issueFlags.WithLabelValues("no_description").Set(float64(noDescription))
	r.issueFlags.WithLabelValues("high_threshold").Set(float64(highThreshold))
	r.issueFlags.WithLabelValues("high_data_points").Set(float64(highDataPoints))
	r.issueFlags.WithLabelValues("no_actions").Set(float64(noActions))
}

// ObserveClassification records one alarm's classification outcome.
func (r *Recorder) ObserveClassification(result *classifier.Result) {
	r.classifyResults.WithLabelValues(ResultSuccess).Inc()

	r.counters.WithLabelValues("long_lived").Add(float64(result.Counters.LongLivedAlarmCount))
	r.counters.WithLabelValues("long_term_issue").Add(float64(result.Counters.LongTermIssueCount))
	r.counters.WithLabelValues("recurring_12h").Add(float64(result.Counters.RecurringIn12HoursCount))
	r.counters.WithLabelValues("short").Add(float64(result.Counters.ShortAlarmCount))

	for _, anomaly := range result.Anomalies {
		r.anomalies.WithLabelValues(string(anomaly.Kind)).Inc()
	}
}

// ObserveFetchFailure records an alarm whose history could not be fetched.
func (r *Recorder) ObserveFetchFailure() {
	r.classifyResults.WithLabelValues(ResultError).Inc()
}

// ObserveAdvisory records the result of one advisory request.
func (r *Recorder) ObserveAdvisory(err error) {
	r.advisories.WithLabelValues(result(err)).Inc()
}

// ObservePersist records the result of one record write.
func (r *Recorder) ObservePersist(err error) {
	r.persists.WithLabelValues(result(err)).Inc()
}

// ObserveRun records the run duration and finish time.
func (r *Recorder) ObserveRun(duration time.Duration, finished time.Time) {
	r.runDuration.Set(duration.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}

func result(err error) string {
	if err != nil {
		return ResultError
	}

	return ResultSuccess
}

func btoi(b bool) int {
	if b {
		return 1
	}

	return 0
}

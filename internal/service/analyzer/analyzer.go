package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/alarm-health/internal/advisor"
	"github.com/oshokin/alarm-health/internal/checker"
	"github.com/oshokin/alarm-health/internal/classifier"
	"github.com/oshokin/alarm-health/internal/config"
	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
	"github.com/oshokin/alarm-health/internal/logger"
	"github.com/oshokin/alarm-health/internal/metrics"
	"github.com/oshokin/alarm-health/internal/report"
	"github.com/oshokin/alarm-health/internal/repository/record"
	"github.com/oshokin/alarm-health/internal/source"
)

// Summary describes the outcome of one analysis.
type Summary struct {
	// RunID identifies the run on every written record.
	RunID string
	// Alarms is the number of unique alarms evaluated.
	Alarms int
	// Buckets are the static check failures.
	Buckets *checker.Buckets
	// Records are the merged records, sorted by ARN.
	Records []*report.Record
	// ShortPeriods lists the short alarm periods per ARN.
	ShortPeriods map[string][]classifier.Period
	// Anomalies is the number of history anomalies across all alarms.
	Anomalies int
	// FetchFailures is the number of alarms whose history could not be fetched.
	FetchFailures int
	// AdvisoryFailures is the number of failed advisory requests.
	AdvisoryFailures int
	// Persisted is the number of records written to the sink.
	Persisted int
}

// Analyzer runs the pipeline over explicitly passed collaborators.
type Analyzer struct {
	// alarms lists the alarm definitions.
	alarms source.AlarmSource
	// history fetches alarm history. Nil disables classification.
	history source.HistorySource
	// persister stores the merged records.
	persister record.Persister
	// advisor annotates alarms without a description. Nil disables advisory.
	advisor advisor.DescriptionAdvisor

	checker    *checker.Checker
	classifier *classifier.Classifier
	metrics    *metrics.Recorder

	// concurrency bounds parallel per-alarm work.
	concurrency int
	// lookback is the history window length.
	lookback time.Duration
	// runID is stamped on every record.
	runID string
	// now returns the current time.
	now func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithHistory enables history classification.
func WithHistory(history source.HistorySource) Option {
	return func(a *Analyzer) {
		a.history = history
	}
}

// WithAdvisor enables description advisory.
func WithAdvisor(descriptionAdvisor advisor.DescriptionAdvisor) Option {
	return func(a *Analyzer) {
		a.advisor = descriptionAdvisor
	}
}

// WithChecker replaces the static checker.
func WithChecker(c *checker.Checker) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.checker = c
		}
	}
}

// WithClassifier replaces the history classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.classifier = c
		}
	}
}

// WithMetrics sets the recorder observations are written to.
func WithMetrics(r *metrics.Recorder) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.metrics = r
		}
	}
}

// WithConcurrency bounds the number of alarms processed in parallel.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLookback sets the history window length.
func WithLookback(lookback time.Duration) Option {
	return func(a *Analyzer) {
		if lookback > 0 {
			a.lookback = lookback
		}
	}
}

// WithRunID sets the run identifier.
func WithRunID(runID string) Option {
	return func(a *Analyzer) {
		a.runID = runID
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

var (
	// errAlarmSourceRequired is returned when no alarm source is passed.
	errAlarmSourceRequired = errors.New("alarm source must be provided")
	// errPersisterRequired is returned when no persister is passed.
	errPersisterRequired = errors.New("persister must be provided")
	// errUnknownLogLevel is returned for a log level zap does not know.
	errUnknownLogLevel = errors.New("unknown log level")
	// errUnknownLogFormat is returned for a log format other than console or json.
	errUnknownLogFormat = errors.New("unknown log format")
)

// New creates an Analyzer reading from alarms and writing to persister.
func New(alarms source.AlarmSource, persister record.Persister, opts ...Option) (*Analyzer, error) {
	if alarms == nil {
		return nil, errAlarmSourceRequired
	}

	if persister == nil {
		return nil, errPersisterRequired
	}

	a := &Analyzer{
		alarms:      alarms,
		persister:   persister,
		checker:     checker.New(checker.DefaultLimits()),
		classifier:  classifier.New(classifier.DefaultWindows()),
		metrics:     metrics.New(),
		concurrency: config.DefaultConcurrency,
		lookback:    config.DefaultLookback,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Analyze runs one pass: list, check, classify, advise, persist.
// History and advisory failures are logged and never fatal. Persist failures
// are joined and returned after every record has been attempted.
func (a *Analyzer) Analyze(ctx context.Context) (*Summary, error) {
	started := a.now()

	// List alarm definitions.
	alarms, err := a.alarms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}

	// Seed one record per unique ARN.
	agg := report.NewAggregator(report.WithRunID(a.runID), report.WithClock(a.now))
	unique := agg.Seed(alarms)

	a.metrics.ObserveAlarms(len(unique))

	// Run the static checks.
	buckets := a.checker.CheckAll(unique)
	agg.ApplyBuckets(buckets)

	logger.InfoKV(ctx, "Static checks finished",
		"alarms", len(unique),
		"missing_descriptions", len(buckets.WithoutDescription),
		"high_threshold", len(buckets.HighThreshold),
		"high_data_points", len(buckets.HighDataPoints),
		"without_actions", len(buckets.WithoutActions),
	)

	// Classify history and request advice in parallel.
	outcomes := &tally{shortPeriods: make(map[string][]classifier.Period)}
	window := source.LastWindow(started, a.lookback)

	if err = a.enrich(ctx, agg, unique, window, outcomes); err != nil {
		return nil, err
	}

	records := agg.Records()
	a.metrics.ObserveFlags(records)

	// Persist every record.
	persisted, err := a.persist(ctx, records)

	finished := a.now()
	a.metrics.ObserveRun(finished.Sub(started), finished)

	summary := &Summary{
		RunID:            a.runID,
		Alarms:           len(unique),
		Buckets:          buckets,
		Records:          records,
		ShortPeriods:     outcomes.shortPeriods,
		Anomalies:        outcomes.anomalies,
		FetchFailures:    outcomes.fetchFailures,
		AdvisoryFailures: outcomes.advisoryFailures,
		Persisted:        persisted,
	}

	logger.InfoKV(ctx, "Analysis finished",
		"alarms", summary.Alarms,
		"persisted", summary.Persisted,
		"anomalies", summary.Anomalies,
		"fetch_failures", summary.FetchFailures,
		"advisory_failures", summary.AdvisoryFailures,
		"duration", finished.Sub(started).String(),
	)

	return summary, err
}

// tally collects per-alarm outcomes from concurrent workers.
type tally struct {
	mu sync.Mutex

	shortPeriods     map[string][]classifier.Period
	anomalies        int
	fetchFailures    int
	advisoryFailures int
}

func (t *tally) addResult(result *classifier.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.anomalies += len(result.Anomalies)

	if len(result.ShortPeriods) > 0 {
		t.shortPeriods[result.AlarmARN] = result.ShortPeriods
	}
}

func (t *tally) addFetchFailure() {
	t.mu.Lock()
	t.fetchFailures++
	t.mu.Unlock()
}

func (t *tally) addAdvisoryFailure() {
	t.mu.Lock()
	t.advisoryFailures++
	t.mu.Unlock()
}

// enrich processes alarms with bounded concurrency. Only context errors and
// aggregator errors stop the run.
func (a *Analyzer) enrich(
	ctx context.Context,
	agg *report.Aggregator,
	alarms []*domain.Alarm,
	window source.Window,
	t *tally,
) error {
	if a.history == nil && a.advisor == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, alarm := range alarms {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			return a.enrichAlarm(gctx, agg, alarm, window, t)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("process alarms: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("process alarms: %w", err)
	}

	return nil
}

// enrichAlarm classifies and advises one alarm.
func (a *Analyzer) enrichAlarm(
	ctx context.Context,
	agg *report.Aggregator,
	alarm *domain.Alarm,
	window source.Window,
	t *tally,
) error {
	if a.history != nil {
		if err := a.classify(ctx, agg, alarm, window, t); err != nil {
			return err
		}
	}

	if a.advisor != nil && !checker.HasDescription(alarm) {
		if err := a.advise(ctx, agg, alarm, t); err != nil {
			return err
		}
	}

	return nil
}

// classify fetches and classifies one alarm's history. A fetch failure
// leaves the counters unset.
func (a *Analyzer) classify(
	ctx context.Context,
	agg *report.Aggregator,
	alarm *domain.Alarm,
	window source.Window,
	t *tally,
) error {
	events, err := a.history.Fetch(ctx, alarm, window)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		a.metrics.ObserveFetchFailure()
		t.addFetchFailure()

		logger.ErrorKV(ctx, "Fetch alarm history failed", "alarm_arn", alarm.ARN, "error", err)

		return nil
	}

	result := a.classifier.Classify(ctx, alarm.ARN, events)

	a.metrics.ObserveClassification(result)
	t.addResult(result)

	for _, period := range result.ShortPeriods {
		logger.DebugKV(ctx, "Short alarm period",
			"alarm_arn", alarm.ARN,
			"start", period.Start,
			"end", period.End,
			"duration", period.Duration().String(),
		)
	}

	counters := result.Counters

	return agg.Merge(alarm.ARN, report.Update{Counters: &counters})
}

// advise requests description advice. A failure leaves the advisory unset.
func (a *Analyzer) advise(ctx context.Context, agg *report.Aggregator, alarm *domain.Alarm, t *tally) error {
	advice, err := a.advisor.Advise(ctx, alarm)
	a.metrics.ObserveAdvisory(err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		t.addAdvisoryFailure()

		logger.WarnKV(ctx, "Description advisory failed", "alarm_arn", alarm.ARN, "error", err)

		return nil
	}

	return agg.Merge(alarm.ARN, report.Update{Advisory: advice})
}

// persist writes every record and joins the failures.
func (a *Analyzer) persist(ctx context.Context, records []*report.Record) (int, error) {
	var (
		persisted int
		errs      []error
	)

	for _, r := range records {
		err := a.persister.Put(ctx, r)
		a.metrics.ObservePersist(err)

		if err != nil {
			logger.ErrorKV(ctx, "Persist record failed", "alarm_arn", r.ID, "error", err)
			errs = append(errs, fmt.Errorf("persist %s: %w", r.ID, err))

			continue
		}

		persisted++
	}

	if len(errs) > 0 {
		return persisted, fmt.Errorf("persist records: %w", errors.Join(errs...))
	}

	return persisted, nil
}

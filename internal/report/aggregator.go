// Package report merges static check flags, history counters and advisory
// annotations into one record per alarm ARN.
//
// Updates are merged field by field: only the fields present in an Update
// are written, everything else already in the record is kept.
package report

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/alarm-health/internal/checker"
	"github.com/oshokin/alarm-health/internal/classifier"
	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
)

// ErrUnknownAlarm is returned when merging into an ARN that was never seeded.
var ErrUnknownAlarm = errors.New("unknown alarm")

// Update is a partial record. Nil fields leave the stored value untouched.
type Update struct {
	// Name replaces the alarm name.
	Name *string
	// Description replaces the description.
	Description *string
	// ActionsEnabled replaces the actions-enabled flag.
	ActionsEnabled *bool
	// NoDescription replaces the no-description flag.
	NoDescription *bool
	// HighThreshold replaces the high-threshold flag.
	HighThreshold *bool
	// HighDataPoints replaces the high-datapoints flag.
	HighDataPoints *bool
	// NoActions replaces the no-actions flag.
	NoActions *bool
	// Counters replaces the classification counters.
	Counters *classifier.Counters
	// Advisory replaces the advisory annotation.
	Advisory *Advisory
}

// FlagsUpdate builds an update carrying all four issue flags of a check result.
func FlagsUpdate(flags checker.Flags) Update {
	return Update{
		NoDescription:  boolPtr(!flags.HasDescription),
		HighThreshold:  boolPtr(flags.ThresholdTooHigh),
		HighDataPoints: boolPtr(flags.DataPointsTooHigh),
		NoActions:      boolPtr(!flags.HasActions),
	}
}

// Aggregator holds the records of one run. It is safe for concurrent use.
type Aggregator struct {
	// runID is stamped on every record the aggregator touches.
	runID string
	// now returns the time stamped on updated records.
	now func() time.Time
	// records maps alarm ARN to its record.
	records map[string]*Record
	// mu protects records.
	mu sync.RWMutex
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRunID stamps records with the given run identifier.
func WithRunID(runID string) Option {
	return func(a *Aggregator) {
		a.runID = runID
	}
}

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:     time.Now,
		records: make(map[string]*Record),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Seed creates or refreshes records from alarm snapshots and returns the unique alarms.
// Duplicate ARNs are dropped, the first occurrence wins. Existing flags, counters
// and advisories of a refreshed record are kept.
func (a *Aggregator) Seed(alarms []*domain.Alarm) []*domain.Alarm {
	unique := domain.Unique(alarms)

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	for _, snapshot := range unique {
		seeded := NewRecord(snapshot)
		seeded.RunID = a.runID
		seeded.UpdatedAt = now

		if existing, ok := a.records[snapshot.ARN]; ok {
			seeded.IssueFlags = existing.IssueFlags
			seeded.Counters = existing.Counters
			seeded.Advisory = existing.Advisory
		}

		a.records[snapshot.ARN] = seeded
	}

	return unique
}

// ApplyBuckets sets the issue flags of every seeded record from bucket membership.
func (a *Aggregator) ApplyBuckets(buckets *checker.Buckets) {
	if buckets == nil {
		return
	}

	var (
		noDescription  = arnSet(buckets.WithoutDescription)
		highThreshold  = arnSet(buckets.HighThreshold)
		highDataPoints = arnSet(buckets.HighDataPoints)
		noActions      = arnSet(buckets.WithoutActions)
	)

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	for arn, record := range a.records {
		record.IssueFlags = IssueFlags{
			NoDescription:  noDescription[arn],
			HighThreshold:  highThreshold[arn],
			HighDataPoints: highDataPoints[arn],
			NoActions:      noActions[arn],
		}
		a.touch(record, now)
	}
}

// Merge applies the non-nil fields of update to the record of arn.
func (a *Aggregator) Merge(arn string, update Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	record, ok := a.records[arn]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlarm, arn)
	}

	apply(record, &update)
	a.touch(record, a.now())

	return nil
}

// Record returns a copy of the record of arn.
func (a *Aggregator) Record(arn string) (*Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	record, ok := a.records[arn]
	if !ok {
		return nil, false
	}

	return record.Clone(), true
}

// Records returns copies of all records ordered by ARN.
func (a *Aggregator) Records() []*Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*Record, 0, len(a.records))
	for _, record := range a.records {
		result = append(result, record.Clone())
	}

	slices.SortFunc(result, func(x, y *Record) int {
		return strings.Compare(x.ID, y.ID)
	})

	return result
}

// Len returns the number of records.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.records)
}

// touch stamps a changed record. Callers must hold the write lock.
func (a *Aggregator) touch(record *Record, now time.Time) {
	record.UpdatedAt = now

	if a.runID != "" {
		record.RunID = a.runID
	}
}

// apply writes the non-nil fields of update into record.
func apply(record *Record, update *Update) {
	if update.Name != nil {
		record.Name = *update.Name
	}

	if update.Description != nil {
		record.Description = *update.Description
	}

	if update.ActionsEnabled != nil {
		record.ActionsEnabled = *update.ActionsEnabled
	}

	if update.NoDescription != nil {
		record.IssueFlags.NoDescription = *update.NoDescription
	}

	if update.HighThreshold != nil {
		record.IssueFlags.HighThreshold = *update.HighThreshold
	}

	if update.HighDataPoints != nil {
		record.IssueFlags.HighDataPoints = *update.HighDataPoints
	}

	if update.NoActions != nil {
		record.IssueFlags.NoActions = *update.NoActions
	}

	if update.Counters != nil {
		counters := *update.Counters
		record.Counters = &counters
	}

	if update.Advisory != nil {
		advisory := *update.Advisory
		record.Advisory = &advisory
	}
}

// arnSet returns the set of ARNs in alarms.
func arnSet(alarms []*domain.Alarm) map[string]bool {
	set := make(map[string]bool, len(alarms))
	for _, a := range alarms {
		if a != nil {
			set[a.ARN] = true
		}
	}

	return set
}

func boolPtr(v bool) *bool {
	return &v
}

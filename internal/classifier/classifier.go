// Package classifier turns an alarm's state-change history into duration and
// frequency counters.
//
// Events are put in chronological order first, then each OK -> ALARM trigger
// and ALARM -> OK resolve is measured using the start dates embedded in its
// state payloads rather than the record timestamp, which can lag. Events
// that cannot be decoded are skipped and reported as anomalies; they never
// abort the rest of the log.
package classifier

import (
	"context"
	"fmt"
	"slices"
	"time"

	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
	"github.com/oshokin/alarm-health/internal/logger"
)

// Windows holds the durations separating the counter categories.
type Windows struct {
	// LongTermIssue is the largest OK gap before a re-trigger that counts as a long-term issue.
	LongTermIssue time.Duration `yaml:"long_term_issue"`
	// Recurring is the largest OK gap before a re-trigger that counts as recurring.
	Recurring time.Duration `yaml:"recurring"`
	// LongLived is the smallest ALARM duration that counts as long-lived.
	LongLived time.Duration `yaml:"long_lived"`
	// Short is the largest ALARM duration that counts as a short alarm.
	Short time.Duration `yaml:"short"`
}

// DefaultWindows returns the windows used when none are configured.
func DefaultWindows() Windows {
	return Windows{
		LongTermIssue: 24 * time.Hour,
		Recurring:     12 * time.Hour,
		LongLived:     48 * time.Hour,
		Short:         2 * time.Minute,
	}
}

// Counters are the per-alarm classification results.
type Counters struct {
	// LongLivedAlarmCount counts ALARM periods lasting at least the long-lived window.
	LongLivedAlarmCount int `json:"long_lived_alarm_count"`
	// LongTermIssueCount counts re-triggers within the long-term issue window.
	LongTermIssueCount int `json:"long_term_issue_count"`
	// RecurringIn12HoursCount counts re-triggers within the recurring window.
	RecurringIn12HoursCount int `json:"recurring_in_12_hours_count"`
	// ShortAlarmCount counts ALARM periods no longer than the short window.
	ShortAlarmCount int `json:"short_alarm_count"`
}

// AnomalyKind names the category of a data problem found while classifying.
type AnomalyKind string

const (
	// AnomalyParseError marks an event that was skipped because it could not be decoded.
	AnomalyParseError AnomalyKind = "parse_error"
	// AnomalyIntegrity marks adjacent transitions whose states do not line up.
	AnomalyIntegrity AnomalyKind = "integrity_warning"
)

// Anomaly is a data problem found in an alarm's history.
type Anomaly struct {
	// Kind is the anomaly category.
	Kind AnomalyKind
	// AlarmARN identifies the alarm.
	AlarmARN string
	// Timestamp is the record time of the event where the anomaly was found.
	Timestamp time.Time
	// Err describes the problem. For AnomalyParseError it is a *ParseError.
	Err error
}

// Period is one ALARM interval, from trigger start to resolve start.
type Period struct {
	// Start is when the condition entered ALARM.
	Start time.Time
	// End is when the condition returned to OK.
	End time.Time
}

// Duration returns the length of the period.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Result holds everything derived from one alarm's history.
type Result struct {
	// AlarmARN identifies the alarm.
	AlarmARN string
	// Counters are the classification counters.
	Counters Counters
	// ShortPeriods lists every ALARM period counted as short.
	ShortPeriods []Period
	// Anomalies lists skipped events and integrity warnings in chronological order.
	Anomalies []Anomaly
	// Processed is the number of triggers and resolves that were measured.
	Processed int
	// Skipped is the number of valid state updates that were neither trigger nor resolve.
	Skipped int
}

// Classifier measures alarm history against a fixed set of windows.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	windows Windows
}

// New creates a Classifier. Non-positive windows are replaced by the defaults.
func New(windows Windows) *Classifier {
	defaults := DefaultWindows()

	if windows.LongTermIssue <= 0 {
		windows.LongTermIssue = defaults.LongTermIssue
	}

	if windows.Recurring <= 0 {
		windows.Recurring = defaults.Recurring
	}

	if windows.LongLived <= 0 {
		windows.LongLived = defaults.LongLived
	}

	if windows.Short <= 0 {
		windows.Short = defaults.Short
	}

	return &Classifier{windows: windows}
}

// Windows returns the windows the classifier applies.
func (c *Classifier) Windows() Windows {
	return c.windows
}

// decodedEvent is a state update whose payload decoded successfully.
type decodedEvent struct {
	event *domain.HistoryEvent
	data  *domain.HistoryData
}

// Classify walks the history of one alarm and returns its counters.
// Events may be passed in any order; items other than StateUpdate are ignored.
func (c *Classifier) Classify(ctx context.Context, alarmARN string, events []*domain.HistoryEvent) *Result {
	ctx = logger.WithFields(logger.WithName(ctx, "classifier"), "alarm_arn", alarmARN)

	result := &Result{AlarmARN: alarmARN}

	var previous *decodedEvent

	for _, event := range chronological(events) {
		data, err := domain.DecodeHistoryData(event.Data)
		if err != nil {
			c.skip(ctx, result, event, err)
			continue
		}

		current := &decodedEvent{event: event, data: data}

		if previous != nil && previous.data.New.Value != data.Old.Value {
			c.warnMismatch(ctx, result, previous, current)
		}

		switch {
		case data.IsTransition(domain.StateOK, domain.StateAlarm):
			err = c.measureTrigger(result, data)
		case data.IsTransition(domain.StateAlarm, domain.StateOK):
			err = c.measureResolve(result, data)
		default:
			result.Skipped++

			logger.DebugKV(ctx, "Non-actionable state update",
				"timestamp", event.Timestamp,
				"old_state", data.Old.Value,
				"new_state", data.New.Value,
			)
		}

		if err != nil {
			c.skip(ctx, result, event, err)
			continue
		}

		previous = current
	}

	logger.DebugKV(ctx, "Alarm history classified",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"anomalies", len(result.Anomalies),
		"counters", result.Counters,
	)

	return result
}

// measureTrigger counts a re-trigger by the length of the OK period preceding it.
func (c *Classifier) measureTrigger(result *Result, data *domain.HistoryData) error {
	okStart, err := data.StartDate(domain.SelectOldState)
	if err != nil {
		return err
	}

	triggerStart, err := data.StartDate(domain.SelectNewState)
	if err != nil {
		return err
	}

	gap := triggerStart.Sub(okStart)

	if gap <= c.windows.LongTermIssue {
		result.Counters.LongTermIssueCount++
	}

	if gap <= c.windows.Recurring {
		result.Counters.RecurringIn12HoursCount++
	}

	result.Processed++

	return nil
}

// measureResolve counts an ALARM period by its duration.
// The long-lived test wins over the short test.
func (c *Classifier) measureResolve(result *Result, data *domain.HistoryData) error {
	triggerStart, err := data.StartDate(domain.SelectOldState)
	if err != nil {
		return err
	}

	resolveStart, err := data.StartDate(domain.SelectNewState)
	if err != nil {
		return err
	}

	period := Period{Start: triggerStart, End: resolveStart}

	switch duration := period.Duration(); {
	case duration >= c.windows.LongLived:
		result.Counters.LongLivedAlarmCount++
	case duration <= c.windows.Short:
		result.Counters.ShortAlarmCount++
		result.ShortPeriods = append(result.ShortPeriods, period)
	}

	result.Processed++

	return nil
}

// skip records an event that could not be classified.
func (*Classifier) skip(ctx context.Context, result *Result, event *domain.HistoryEvent, err error) {
	parseErr := &ParseError{
		AlarmARN:  result.AlarmARN,
		Timestamp: event.Timestamp,
		Err:       err,
	}

	result.Anomalies = append(result.Anomalies, Anomaly{
		Kind:      AnomalyParseError,
		AlarmARN:  result.AlarmARN,
		Timestamp: event.Timestamp,
		Err:       parseErr,
	})

	logger.WarnKV(ctx, "Skipping malformed history event", "timestamp", event.Timestamp, "error", err)
}

// warnMismatch records adjacent transitions whose states do not line up.
// This is expected when the window starts in the middle of a cycle.
func (*Classifier) warnMismatch(ctx context.Context, result *Result, previous, current *decodedEvent) {
	err := fmt.Errorf("%w: event at %s entered %s, next event at %s left %s",
		ErrStateMismatch,
		previous.event.Timestamp.Format(time.RFC3339), previous.data.New.Value,
		current.event.Timestamp.Format(time.RFC3339), current.data.Old.Value,
	)

	result.Anomalies = append(result.Anomalies, Anomaly{
		Kind:      AnomalyIntegrity,
		AlarmARN:  result.AlarmARN,
		Timestamp: current.event.Timestamp,
		Err:       err,
	})

	logger.WarnKV(ctx, "State sequence mismatch", "error", err)
}

// chronological returns the state updates of events sorted by record time, oldest first.
// Events with equal timestamps keep their input order.
func chronological(events []*domain.HistoryEvent) []*domain.HistoryEvent {
	updates := make([]*domain.HistoryEvent, 0, len(events))

	for _, event := range events {
		if event != nil && event.ItemType == domain.ItemStateUpdate {
			updates = append(updates, event)
		}
	}

	slices.SortStableFunc(updates, func(a, b *domain.HistoryEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return updates
}

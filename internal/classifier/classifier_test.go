package classifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
)

const testARN = "arn:aws:cloudwatch:eu-west-1:123456789012:alarm:api-latency"

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// stateJSON renders one state payload; a zero start omits stateReasonData.startDate.
func stateJSON(value domain.StateValue, start time.Time) string {
	if start.IsZero() {
		return fmt.Sprintf(`{"stateValue":%q,"stateReason":"test","stateReasonData":{"version":"1.0"}}`, value)
	}

	return fmt.Sprintf(`{"stateValue":%q,"stateReason":"test","stateReasonData":{"version":"1.0","startDate":%q}}`,
		value, start.Format("2006-01-02T15:04:05.000-0700"))
}

// transition builds a StateUpdate event recorded shortly after the new state started.
func transition(from domain.StateValue, fromStart time.Time, to domain.StateValue, toStart time.Time) *domain.HistoryEvent {
	recorded := toStart
	if recorded.IsZero() {
		recorded = fromStart
	}

	return &domain.HistoryEvent{
		AlarmARN:  testARN,
		AlarmName: "api-latency",
		Timestamp: recorded.Add(30 * time.Second),
		ItemType:  domain.ItemStateUpdate,
		Summary:   fmt.Sprintf("Alarm updated from %s to %s", from, to),
		Data:      fmt.Sprintf(`{"version":"1.0","oldState":%s,"newState":%s}`, stateJSON(from, fromStart), stateJSON(to, toStart)),
	}
}

func trigger(okStart, alarmStart time.Time) *domain.HistoryEvent {
	return transition(domain.StateOK, okStart, domain.StateAlarm, alarmStart)
}

func resolve(alarmStart, okStart time.Time) *domain.HistoryEvent {
	return transition(domain.StateAlarm, alarmStart, domain.StateOK, okStart)
}

func classify(events ...*domain.HistoryEvent) *Result {
	return New(DefaultWindows()).Classify(context.Background(), testARN, events)
}

// TestClassify_TriggerGap checks the long-term and recurring windows, including their boundaries.
func TestClassify_TriggerGap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		gap  time.Duration
		want Counters
	}{
		{"ten hours", 10 * time.Hour, Counters{LongTermIssueCount: 1, RecurringIn12HoursCount: 1}},
		{"exactly twelve hours", 12 * time.Hour, Counters{LongTermIssueCount: 1, RecurringIn12HoursCount: 1}},
		{"thirteen hours", 13 * time.Hour, Counters{LongTermIssueCount: 1}},
		{"exactly one day", 24 * time.Hour, Counters{LongTermIssueCount: 1}},
		{"over one day", 24*time.Hour + time.Second, Counters{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := classify(trigger(base, base.Add(tc.gap)))

			require.Equal(t, tc.want, result.Counters)
			require.Equal(t, 1, result.Processed)
			require.Empty(t, result.Anomalies)
		})
	}
}

// TestClassify_ResolveDuration checks the long-lived and short windows and their ordering.
func TestClassify_ResolveDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		took  time.Duration
		want  Counters
		short int
	}{
		{"forty nine hours", 49 * time.Hour, Counters{LongLivedAlarmCount: 1}, 0},
		{"exactly forty eight hours", 48 * time.Hour, Counters{LongLivedAlarmCount: 1}, 0},
		{"ninety seconds", 90 * time.Second, Counters{ShortAlarmCount: 1}, 1},
		{"exactly two minutes", 2 * time.Minute, Counters{ShortAlarmCount: 1}, 1},
		{"five minutes", 5 * time.Minute, Counters{}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := classify(resolve(base, base.Add(tc.took)))

			require.Equal(t, tc.want, result.Counters)
			require.Len(t, result.ShortPeriods, tc.short)
		})
	}
}

// TestClassify_OverlappingWindowsPreferLongLived makes the short window cover the long-lived one.
func TestClassify_OverlappingWindowsPreferLongLived(t *testing.T) {
	t.Parallel()

	c := New(Windows{LongLived: time.Minute, Short: time.Hour})
	result := c.Classify(context.Background(), testARN, []*domain.HistoryEvent{
		resolve(base, base.Add(30*time.Minute)),
	})

	require.Equal(t, Counters{LongLivedAlarmCount: 1}, result.Counters)
}

// cycles builds n trigger/resolve pairs ten hours apart, each alarm lasting ninety seconds.
// The first trigger follows an OK period of thirty hours.
func cycles(n int) []*domain.HistoryEvent {
	events := make([]*domain.HistoryEvent, 0, 2*n)
	okStart := base.Add(-30 * time.Hour)

	for k := range n {
		alarmStart := base.Add(time.Duration(k) * 10 * time.Hour)
		resolved := alarmStart.Add(90 * time.Second)

		events = append(events, trigger(okStart, alarmStart), resolve(alarmStart, resolved))
		okStart = resolved
	}

	return events
}

// TestClassify_OrdersNewestFirstInput feeds the log newest-first, as the monitoring service returns it.
func TestClassify_OrdersNewestFirstInput(t *testing.T) {
	t.Parallel()

	events := cycles(5)
	slices.Reverse(events)

	result := classify(events...)

	require.Equal(t, Counters{
		LongTermIssueCount:      4,
		RecurringIn12HoursCount: 4,
		ShortAlarmCount:         5,
	}, result.Counters)
	require.Equal(t, 10, result.Processed)
	require.Empty(t, result.Anomalies)
	require.Len(t, result.ShortPeriods, 5)

	for i := 1; i < len(result.ShortPeriods); i++ {
		require.True(t, result.ShortPeriods[i-1].Start.Before(result.ShortPeriods[i].Start))
	}
}

// TestClassify_MalformedEventIsSkipped breaks one event of a ten event log and keeps the other nine.
func TestClassify_MalformedEventIsSkipped(t *testing.T) {
	t.Parallel()

	events := cycles(5)

	// Third trigger loses its own start date.
	broken := events[4]
	events[4] = transition(domain.StateOK, base.Add(10*time.Hour+90*time.Second), domain.StateAlarm, time.Time{})
	events[4].Timestamp = broken.Timestamp

	result := classify(events...)

	require.Equal(t, Counters{
		LongTermIssueCount:      3,
		RecurringIn12HoursCount: 3,
		ShortAlarmCount:         5,
	}, result.Counters)
	require.Equal(t, 9, result.Processed)

	kinds := make([]AnomalyKind, 0, len(result.Anomalies))
	for _, anomaly := range result.Anomalies {
		kinds = append(kinds, anomaly.Kind)
	}

	// The skipped trigger also breaks the OK -> ALARM alternation around it.
	require.Equal(t, []AnomalyKind{AnomalyParseError, AnomalyIntegrity}, kinds)

	var parseErr *ParseError
	require.ErrorAs(t, result.Anomalies[0].Err, &parseErr)
	require.ErrorIs(t, parseErr, ErrMalformedEvent)
	require.ErrorIs(t, parseErr, domain.ErrMissingStartDate)
	require.Equal(t, testARN, parseErr.AlarmARN)
	require.True(t, broken.Timestamp.Equal(parseErr.Timestamp))

	require.ErrorIs(t, result.Anomalies[1].Err, ErrStateMismatch)
}

// TestClassify_UndecodablePayload skips events whose JSON cannot be parsed.
func TestClassify_UndecodablePayload(t *testing.T) {
	t.Parallel()

	garbage := &domain.HistoryEvent{
		AlarmARN:  testARN,
		Timestamp: base.Add(time.Hour),
		ItemType:  domain.ItemStateUpdate,
		Data:      "{truncated",
	}

	result := classify(garbage, resolve(base.Add(2*time.Hour), base.Add(2*time.Hour+time.Minute)))

	require.Equal(t, Counters{ShortAlarmCount: 1}, result.Counters)
	require.Len(t, result.Anomalies, 1)
	require.ErrorIs(t, result.Anomalies[0].Err, domain.ErrMalformedHistoryData)
}

// TestClassify_IgnoresOtherItemsAndTransitions checks non-state items and non-actionable updates.
func TestClassify_IgnoresOtherItemsAndTransitions(t *testing.T) {
	t.Parallel()

	config := &domain.HistoryEvent{
		AlarmARN:  testARN,
		Timestamp: base,
		ItemType:  domain.ItemConfigurationUpdate,
		Data:      `{"type":"Update"}`,
	}
	action := &domain.HistoryEvent{
		AlarmARN:  testARN,
		Timestamp: base.Add(time.Minute),
		ItemType:  domain.ItemAction,
		Data:      `not even json`,
	}
	insufficient := transition(domain.StateInsufficientData, base, domain.StateOK, base.Add(time.Hour))

	result := classify(config, nil, action, insufficient)

	assert.Equal(t, Counters{}, result.Counters)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Anomalies)
}

// TestClassify_DoubleTriggerWarnsIntegrity reports two triggers in a row without failing.
func TestClassify_DoubleTriggerWarnsIntegrity(t *testing.T) {
	t.Parallel()

	result := classify(
		trigger(base, base.Add(time.Hour)),
		trigger(base.Add(2*time.Hour), base.Add(3*time.Hour)),
	)

	require.Equal(t, 2, result.Processed)
	require.Equal(t, Counters{LongTermIssueCount: 2, RecurringIn12HoursCount: 2}, result.Counters)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, AnomalyIntegrity, result.Anomalies[0].Kind)
	require.True(t, errors.Is(result.Anomalies[0].Err, ErrStateMismatch))
}

// TestClassify_EmptyHistory returns zero counters for an alarm that never changed state.
func TestClassify_EmptyHistory(t *testing.T) {
	t.Parallel()

	result := classify()

	require.Equal(t, testARN, result.AlarmARN)
	require.Equal(t, Counters{}, result.Counters)
	require.Empty(t, result.Anomalies)
}

// TestNew_AppliesDefaults replaces non-positive windows with the defaults.
func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultWindows(), New(Windows{}).Windows())

	custom := Windows{LongTermIssue: time.Hour, Recurring: time.Minute, LongLived: 3 * time.Hour, Short: time.Second}
	require.Equal(t, custom, New(custom).Windows())
}

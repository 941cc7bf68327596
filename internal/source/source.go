// Package source defines the collaborators that supply alarm definitions and
// history, and file-backed implementations reading the JSON emitted by the
// monitoring service CLI (describe-alarms, describe-alarm-history) or the
// line-delimited history export.
package source

import (
	"context"
	"time"

	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
)

// DefaultLookback is the history window used when none is configured.
const DefaultLookback = 14 * 24 * time.Hour

// AlarmSource supplies the current set of alarm definitions.
// The result may contain duplicates; callers uniquify by ARN.
type AlarmSource interface {
	List(ctx context.Context) ([]*domain.Alarm, error)
}

// HistorySource supplies an alarm's history over a window, in any order.
type HistorySource interface {
	Fetch(ctx context.Context, alarm *domain.Alarm, window Window) ([]*domain.HistoryEvent, error)
}

// Window is a closed time range [Start, End].
type Window struct {
	// Start is the earliest record time included.
	Start time.Time
	// End is the latest record time included.
	End time.Time
}

// LastWindow returns the window of the given length ending at now.
func LastWindow(now time.Time, lookback time.Duration) Window {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	return Window{
		Start: now.Add(-lookback),
		End:   now,
	}
}

// Contains reports whether t lies within the window. A zero bound is unbounded.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}

	if !w.End.IsZero() && t.After(w.End) {
		return false
	}

	return true
}

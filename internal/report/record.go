package report

import (
	"slices"
	"time"

	"github.com/oshokin/alarm-health/internal/classifier"
	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
)

// IssueFlags are the static configuration problems of an alarm.
type IssueFlags struct {
	// NoDescription is set when the alarm has no usable description.
	NoDescription bool `json:"no_description"`
	// HighThreshold is set when the threshold is unset or too high.
	HighThreshold bool `json:"high_threshold"`
	// HighDataPoints is set when datapoints-to-alarm is unset or too high.
	HighDataPoints bool `json:"high_data_points"`
	// NoActions is set when the alarm triggers no action.
	NoActions bool `json:"no_actions"`
}

// Advisory is the annotation produced by a description advisor.
type Advisory struct {
	// Assessment is the advisor's opinion of the current description.
	Assessment string `json:"assessment"`
	// SuggestedDescription is a proposed replacement description.
	SuggestedDescription string `json:"suggested_description"`
}

// Record is the merged health report of one alarm.
type Record struct {
	// ID is the alarm ARN.
	ID string `json:"id"`
	// Name is the alarm name.
	Name string `json:"name"`
	// Description is the alarm description, empty when unset.
	Description string `json:"description"`
	// ActionsEnabled mirrors the alarm's actions-enabled flag.
	ActionsEnabled bool `json:"actions_enabled"`
	// StateValue is the alarm state at snapshot time.
	StateValue domain.StateValue `json:"state_value,omitempty"`
	// AlarmActions run when the alarm enters ALARM.
	AlarmActions []string `json:"alarm_actions"`
	// OKActions run when the alarm enters OK.
	OKActions []string `json:"ok_actions"`
	// InsufficientDataActions run when the alarm enters INSUFFICIENT_DATA.
	InsufficientDataActions []string `json:"insufficient_data_actions"`
	// IssueFlags are the static check results.
	IssueFlags IssueFlags `json:"issue_flags"`
	// Counters are the history classification results, nil until classified.
	Counters *classifier.Counters `json:"counters,omitempty"`
	// Advisory is the description advice, nil when none was obtained.
	Advisory *Advisory `json:"advisory,omitempty"`
	// RunID identifies the run that last wrote the record.
	RunID string `json:"run_id,omitempty"`
	// UpdatedAt is when the record was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.AlarmActions = slices.Clone(r.AlarmActions)
	cloned.OKActions = slices.Clone(r.OKActions)
	cloned.InsufficientDataActions = slices.Clone(r.InsufficientDataActions)

	if r.Counters != nil {
		counters := *r.Counters
		cloned.Counters = &counters
	}

	if r.Advisory != nil {
		advisory := *r.Advisory
		cloned.Advisory = &advisory
	}

	return &cloned
}

// NewRecord seeds a record from an alarm snapshot.
func NewRecord(a *domain.Alarm) *Record {
	return &Record{
		ID:                      a.ARN,
		Name:                    a.Name,
		Description:             a.DescriptionText(),
		ActionsEnabled:          a.ActionsEnabled,
		StateValue:              a.StateValue,
		AlarmActions:            nonNil(a.AlarmActions),
		OKActions:               nonNil(a.OKActions),
		InsufficientDataActions: nonNil(a.InsufficientDataActions),
	}
}

// nonNil returns a copy of values that encodes as an empty JSON array rather than null.
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}

	return slices.Clone(values)
}

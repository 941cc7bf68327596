package alarm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemType is the kind of an alarm history entry.
type ItemType string

const (
	// ItemStateUpdate is a state transition of the alarm.
	ItemStateUpdate ItemType = "StateUpdate"
	// ItemConfigurationUpdate is a change of the alarm definition.
	ItemConfigurationUpdate ItemType = "ConfigurationUpdate"
	// ItemAction is the execution of an alarm action.
	ItemAction ItemType = "Action"
)

// StartDateLayout is the layout CloudWatch uses for stateReasonData.startDate.
// Fractional seconds of any precision are accepted when parsing.
const StartDateLayout = "2006-01-02T15:04:05-0700"

// StateSelector picks one of the two state payloads of a transition.
type StateSelector int

const (
	// SelectOldState selects the state the alarm left.
	SelectOldState StateSelector = iota + 1
	// SelectNewState selects the state the alarm entered.
	SelectNewState
)

// String implements fmt.Stringer.
func (s StateSelector) String() string {
	switch s {
	case SelectOldState:
		return "oldState"
	case SelectNewState:
		return "newState"
	default:
		return fmt.Sprintf("StateSelector(%d)", int(s))
	}
}

var (
	// ErrUnsupportedStateSelector is returned for a selector other than old or new state.
	// It signals a programming defect, not a data problem.
	ErrUnsupportedStateSelector = errors.New("unsupported state selector")
	// ErrMalformedHistoryData is returned when the history payload cannot be decoded.
	ErrMalformedHistoryData = errors.New("malformed history data")
	// ErrMissingStateValue is returned when a state payload has no state value.
	ErrMissingStateValue = errors.New("missing state value")
	// ErrMissingStartDate is returned when a state payload has no start date.
	ErrMissingStartDate = errors.New("missing start date")
)

// HistoryEvent is one entry of an alarm's history log.
type HistoryEvent struct {
	// AlarmARN identifies the alarm the entry belongs to.
	AlarmARN string
	// AlarmName is the name of the alarm at the time of the entry.
	AlarmName string
	// Timestamp is when the entry was recorded. It may lag the actual state change.
	Timestamp time.Time
	// ItemType tells what kind of change the entry describes.
	ItemType ItemType
	// Summary is the human-readable summary, e.g. "Alarm updated from OK to ALARM".
	Summary string
	// Data is the raw JSON payload of the entry.
	Data string
}

// StatePayload is one side of a state transition.
type StatePayload struct {
	// Value is the state value.
	Value StateValue
	// Reason is the human-readable reason for entering the state.
	Reason string
	// StartDate is the authoritative instant the condition for this state started.
	// It is the zero time when the payload carries no start date.
	StartDate time.Time
}

// HasStartDate reports whether the payload carried a start date.
func (p *StatePayload) HasStartDate() bool {
	return !p.StartDate.IsZero()
}

// HistoryData is the decoded payload of a StateUpdate entry.
type HistoryData struct {
	// Old is the state the alarm left.
	Old StatePayload
	// New is the state the alarm entered.
	New StatePayload
}

// State returns the payload picked by the selector.
func (d *HistoryData) State(selector StateSelector) (*StatePayload, error) {
	switch selector {
	case SelectOldState:
		return &d.Old, nil
	case SelectNewState:
		return &d.New, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStateSelector, selector)
	}
}

// StartDate returns the start date of the selected state, failing when it is absent.
func (d *HistoryData) StartDate(selector StateSelector) (time.Time, error) {
	state, err := d.State(selector)
	if err != nil {
		return time.Time{}, err
	}

	if !state.HasStartDate() {
		return time.Time{}, fmt.Errorf("%w in %s", ErrMissingStartDate, selector)
	}

	return state.StartDate, nil
}

// IsTransition reports whether the data describes a from -> to transition.
func (d *HistoryData) IsTransition(from, to StateValue) bool {
	return d.Old.Value == from && d.New.Value == to
}

type (
	// rawHistoryData mirrors the JSON layout of HistoryData.
	rawHistoryData struct {
		OldState *rawState `json:"oldState"`
		NewState *rawState `json:"newState"`
	}

	// rawState mirrors one state payload.
	rawState struct {
		StateValue      string         `json:"stateValue"`
		StateReason     string         `json:"stateReason"`
		StateReasonData *rawReasonData `json:"stateReasonData"`
	}

	// rawReasonData carries the fields of stateReasonData used by the classifier.
	rawReasonData struct {
		StartDate string `json:"startDate"`
	}
)

// DecodeHistoryData parses the payload of a StateUpdate entry.
// A missing start date is not an error here; callers that need it use StartDate.
func DecodeHistoryData(data string) (*HistoryData, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedHistoryData)
	}

	var raw rawHistoryData
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHistoryData, err)
	}

	oldState, err := raw.OldState.toPayload(SelectOldState)
	if err != nil {
		return nil, err
	}

	newState, err := raw.NewState.toPayload(SelectNewState)
	if err != nil {
		return nil, err
	}

	return &HistoryData{
		Old: *oldState,
		New: *newState,
	}, nil
}

// toPayload validates a raw state and converts it to a StatePayload.
func (r *rawState) toPayload(selector StateSelector) (*StatePayload, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s is absent", ErrMalformedHistoryData, selector)
	}

	if r.StateValue == "" {
		return nil, fmt.Errorf("%w in %s", ErrMissingStateValue, selector)
	}

	payload := &StatePayload{
		Value:  StateValue(r.StateValue),
		Reason: r.StateReason,
	}

	if r.StateReasonData == nil || r.StateReasonData.StartDate == "" {
		return payload, nil
	}

	startDate, err := ParseStartDate(r.StateReasonData.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s start date: %w", ErrMalformedHistoryData, selector, err)
	}

	payload.StartDate = startDate

	return payload, nil
}

// ParseStartDate parses a start date in the CloudWatch layout, falling back to RFC 3339.
func ParseStartDate(value string) (time.Time, error) {
	t, err := time.Parse(StartDateLayout, value)
	if err == nil {
		return t, nil
	}

	if t, rfcErr := time.Parse(time.RFC3339Nano, value); rfcErr == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("parse %q: %w", value, err)
}

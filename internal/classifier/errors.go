package classifier

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedEvent is wrapped by ParseError for events that cannot be interpreted.
	ErrMalformedEvent = errors.New("malformed history event")
	// ErrStateMismatch marks adjacent transitions whose states do not line up.
	ErrStateMismatch = errors.New("state sequence mismatch")
)

// ParseError reports a single history event that could not be classified.
// It never aborts the classification of the remaining events.
type ParseError struct {
	// AlarmARN identifies the alarm the event belongs to.
	AlarmARN string
	// Timestamp is the record time of the offending event.
	Timestamp time.Time
	// Err is the underlying decoding or validation failure.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: alarm %s, event at %s: %v",
		ErrMalformedEvent, e.AlarmARN, e.Timestamp.Format(time.RFC3339), e.Err)
}

// Unwrap exposes both ErrMalformedEvent and the underlying cause to errors.Is.
func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedEvent, e.Err}
}

// Package checker evaluates static configuration risks of alarm definitions.
//
// Checks are pure functions over an alarm snapshot. A missing threshold or
// datapoints-to-alarm value counts as too high.
package checker

import (
	"strings"

	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
)

const (
	// DefaultMaxThreshold is the highest threshold not considered risky.
	DefaultMaxThreshold = 30.0
	// DefaultMaxDatapoints is the highest datapoints-to-alarm count not considered risky.
	DefaultMaxDatapoints = 15
)

// Limits holds the upper bounds used by the threshold and datapoints checks.
type Limits struct {
	// MaxThreshold is the inclusive upper bound for the alarm threshold.
	MaxThreshold float64 `yaml:"max_threshold"`
	// MaxDatapoints is the inclusive upper bound for datapoints-to-alarm.
	MaxDatapoints int `yaml:"max_datapoints"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxThreshold:  DefaultMaxThreshold,
		MaxDatapoints: DefaultMaxDatapoints,
	}
}

// Flags is the outcome of the four checks for one alarm.
type Flags struct {
	// HasDescription is false when the description is unset or blank.
	HasDescription bool
	// HasActions is true when at least one alarm action is configured.
	HasActions bool
	// ThresholdTooHigh is true when the threshold is unset or above the limit.
	ThresholdTooHigh bool
	// DataPointsTooHigh is true when datapoints-to-alarm is unset or above the limit.
	DataPointsTooHigh bool
}

// Buckets groups alarms by the check they failed. An alarm can be in several buckets.
type Buckets struct {
	// WithoutDescription holds alarms with no usable description.
	WithoutDescription []*domain.Alarm
	// HighThreshold holds alarms whose threshold is unset or too high.
	HighThreshold []*domain.Alarm
	// HighDataPoints holds alarms whose datapoints-to-alarm is unset or too high.
	HighDataPoints []*domain.Alarm
	// WithoutActions holds alarms with no alarm actions.
	WithoutActions []*domain.Alarm
}

// Checker runs the static checks with a fixed set of limits.
type Checker struct {
	limits Limits
}

// New creates a Checker. Non-positive limits are replaced by the defaults.
func New(limits Limits) *Checker {
	defaults := DefaultLimits()

	if limits.MaxThreshold <= 0 {
		limits.MaxThreshold = defaults.MaxThreshold
	}

	if limits.MaxDatapoints <= 0 {
		limits.MaxDatapoints = defaults.MaxDatapoints
	}

	return &Checker{limits: limits}
}

// Limits returns the limits the checker applies.
func (c *Checker) Limits() Limits {
	return c.limits
}

// HasDescription reports whether the alarm has a non-blank description.
func HasDescription(a *domain.Alarm) bool {
	return strings.TrimSpace(a.DescriptionText()) != ""
}

// HasActions reports whether the alarm triggers any action when it fires.
func HasActions(a *domain.Alarm) bool {
	return len(a.AlarmActions) > 0
}

// ThresholdTooHigh reports whether the threshold is unset or above the limit.
func (c *Checker) ThresholdTooHigh(a *domain.Alarm) bool {
	return a.Threshold == nil || *a.Threshold > c.limits.MaxThreshold
}

// DataPointsTooHigh reports whether datapoints-to-alarm is unset or above the limit.
func (c *Checker) DataPointsTooHigh(a *domain.Alarm) bool {
	return a.DatapointsToAlarm == nil || *a.DatapointsToAlarm > c.limits.MaxDatapoints
}

// Check evaluates all four checks for one alarm.
func (c *Checker) Check(a *domain.Alarm) Flags {
	return Flags{
		HasDescription:    HasDescription(a),
		HasActions:        HasActions(a),
		ThresholdTooHigh:  c.ThresholdTooHigh(a),
		DataPointsTooHigh: c.DataPointsTooHigh(a),
	}
}

// CheckAll evaluates every alarm and sorts the failures into buckets.
// Input order is preserved within each bucket.
func (c *Checker) CheckAll(alarms []*domain.Alarm) *Buckets {
	buckets := new(Buckets)

	for _, a := range alarms {
		if a == nil {
			continue
		}

		flags := c.Check(a)

		if !flags.HasDescription {
			buckets.WithoutDescription = append(buckets.WithoutDescription, a)
		}

		if flags.ThresholdTooHigh {
			buckets.HighThreshold = append(buckets.HighThreshold, a)
		}

		if flags.DataPointsTooHigh {
			buckets.HighDataPoints = append(buckets.HighDataPoints, a)
		}

		if !flags.HasActions {
			buckets.WithoutActions = append(buckets.WithoutActions, a)
		}
	}

	return buckets
}

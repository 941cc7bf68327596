package alarm

// Kind distinguishes metric alarms from composite alarms.
type Kind string

const (
	// KindMetric is an alarm evaluating a single metric or math expression.
	KindMetric Kind = "MetricAlarm"
	// KindComposite is an alarm combining the states of other alarms.
	KindComposite Kind = "CompositeAlarm"
)

// StateValue is the state an alarm is in.
type StateValue string

const (
	// StateOK means the monitored condition is within bounds.
	StateOK StateValue = "OK"
	// StateAlarm means the monitored condition breached its threshold.
	StateAlarm StateValue = "ALARM"
	// StateInsufficientData means there was not enough data to evaluate.
	StateInsufficientData StateValue = "INSUFFICIENT_DATA"
)

// Alarm is a snapshot of an alarm definition taken once per run.
type Alarm struct {
	// ARN uniquely identifies the alarm.
	ARN string
	// Name is the alarm name, unique within an account and region.
	Name string
	// Kind tells whether this is a metric or a composite alarm.
	Kind Kind
	// Description is the optional free-text alarm description.
	Description *string
	// Threshold is the optional value the metric is compared against.
	Threshold *float64
	// DatapointsToAlarm is the optional number of breaching datapoints required to alarm.
	DatapointsToAlarm *int
	// ActionsEnabled indicates whether actions run on state changes.
	ActionsEnabled bool
	// AlarmActions run when the alarm enters the ALARM state.
	AlarmActions []string
	// OKActions run when the alarm enters the OK state.
	OKActions []string
	// InsufficientDataActions run when the alarm enters the INSUFFICIENT_DATA state.
	InsufficientDataActions []string
	// StateValue is the state the alarm was in when the snapshot was taken.
	StateValue StateValue
}

// DescriptionText returns the description or an empty string when it is not set.
func (a *Alarm) DescriptionText() string {
	if a == nil || a.Description == nil {
		return ""
	}

	return *a.Description
}

// Unique returns alarms with duplicate ARNs removed, keeping the first occurrence.
// Alarms without an ARN are dropped.
func Unique(alarms []*Alarm) []*Alarm {
	seen := make(map[string]struct{}, len(alarms))
	result := make([]*Alarm, 0, len(alarms))

	for _, a := range alarms {
		if a == nil || a.ARN == "" {
			continue
		}

		if _, ok := seen[a.ARN]; ok {
			continue
		}

		seen[a.ARN] = struct{}{}

		result = append(result, a)
	}

	return result
}

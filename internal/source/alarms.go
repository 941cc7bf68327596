package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
)

type (
	// describeAlarmsPage mirrors one page of describe-alarms output.
	describeAlarmsPage struct {
		MetricAlarms    []alarmDTO `json:"MetricAlarms"`
		CompositeAlarms []alarmDTO `json:"CompositeAlarms"`
	}

	// alarmDTO carries the alarm fields read from describe-alarms output.
	alarmDTO struct {
		AlarmArn                string   `json:"AlarmArn"`
		AlarmName               string   `json:"AlarmName"`
		AlarmDescription        *string  `json:"AlarmDescription"`
		Threshold               *float64 `json:"Threshold"`
		DatapointsToAlarm       *int     `json:"DatapointsToAlarm"`
		ActionsEnabled          bool     `json:"ActionsEnabled"`
		AlarmActions            []string `json:"AlarmActions"`
		OKActions               []string `json:"OKActions"`
		InsufficientDataActions []string `json:"InsufficientDataActions"`
		StateValue              string   `json:"StateValue"`
	}
)

// FileAlarmSource reads alarm definitions from a describe-alarms JSON file.
// The file holds either a single page object or an array of pages.
type FileAlarmSource struct {
	// path is the location of the JSON file.
	path string
}

// NewFileAlarmSource creates a source reading the file at path.
func NewFileAlarmSource(path string) *FileAlarmSource {
	return &FileAlarmSource{
		path: filepath.Clean(path),
	}
}

// List reads every metric and composite alarm from the file.
func (s *FileAlarmSource) List(ctx context.Context) ([]*domain.Alarm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read alarms file: %w", err)
	}

	pages, err := decodeAlarmPages(contents)
	if err != nil {
		return nil, fmt.Errorf("decode alarms file %s: %w", s.path, err)
	}

	var alarms []*domain.Alarm

	for _, page := range pages {
		for i := range page.MetricAlarms {
			alarms = append(alarms, page.MetricAlarms[i].toDomain(domain.KindMetric))
		}

		for i := range page.CompositeAlarms {
			alarms = append(alarms, page.CompositeAlarms[i].toDomain(domain.KindComposite))
		}
	}

	return alarms, nil
}

// decodeAlarmPages accepts one page object or an array of them.
func decodeAlarmPages(contents []byte) ([]describeAlarmsPage, error) {
	trimmed := bytes.TrimSpace(contents)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var pages []describeAlarmsPage
		if err := json.Unmarshal(trimmed, &pages); err != nil {
			return nil, err
		}

		return pages, nil
	}

	var page describeAlarmsPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}

	return []describeAlarmsPage{page}, nil
}

// toDomain converts the DTO into an alarm snapshot.
func (d *alarmDTO) toDomain(kind domain.Kind) *domain.Alarm {
	return &domain.Alarm{
		ARN:                     d.AlarmArn,
		Name:                    d.AlarmName,
		Kind:                    kind,
		Description:             d.AlarmDescription,
		Threshold:               d.Threshold,
		DatapointsToAlarm:       d.DatapointsToAlarm,
		ActionsEnabled:          d.ActionsEnabled,
		AlarmActions:            d.AlarmActions,
		OKActions:               d.OKActions,
		InsufficientDataActions: d.InsufficientDataActions,
		StateValue:              domain.StateValue(d.StateValue),
	}
}

package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
	"github.com/oshokin/alarm-health/internal/logger"
)

// maxLineSize bounds a single line of a line-delimited history export.
const maxLineSize = 4 << 20

type (
	// describeHistoryPage mirrors one page of describe-alarm-history output.
	describeHistoryPage struct {
		AlarmHistoryItems []historyDTO `json:"AlarmHistoryItems"`
	}

	// historyDTO carries one history item. AlarmArn is only present in line-delimited exports.
	historyDTO struct {
		AlarmArn        string `json:"AlarmArn"`
		AlarmName       string `json:"AlarmName"`
		Timestamp       string `json:"Timestamp"`
		HistoryItemType string `json:"HistoryItemType"`
		HistorySummary  string `json:"HistorySummary"`
		HistoryData     string `json:"HistoryData"`
	}
)

// FileHistorySource reads alarm history from a file, loading it once on first use.
//
// Files ending in .jsonl or .ndjson hold one item per line, each carrying
// AlarmArn. Any other file holds describe-alarm-history output (one page or
// an array of pages) whose items are matched to alarms by name.
type FileHistorySource struct {
	// path is the location of the history file.
	path string
	// events holds every decoded item after the first load.
	events []*domain.HistoryEvent
	// loaded records whether events was populated.
	loaded bool
	// mu protects events and loaded.
	mu sync.Mutex
}

// NewFileHistorySource creates a source reading the file at path.
func NewFileHistorySource(path string) *FileHistorySource {
	return &FileHistorySource{
		path: filepath.Clean(path),
	}
}

// Fetch returns the events of the alarm recorded within the window, in file order.
func (s *FileHistorySource) Fetch(
	ctx context.Context,
	alarm *domain.Alarm,
	window Window,
) ([]*domain.HistoryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var result []*domain.HistoryEvent

	for _, event := range events {
		if !belongsTo(event, alarm) || !window.Contains(event.Timestamp) {
			continue
		}

		matched := *event
		matched.AlarmARN = alarm.ARN

		result = append(result, &matched)
	}

	return result, nil
}

// belongsTo matches by ARN when the item has one, otherwise by alarm name.
func belongsTo(event *domain.HistoryEvent, alarm *domain.Alarm) bool {
	if event.AlarmARN != "" {
		return event.AlarmARN == alarm.ARN
	}

	return event.AlarmName == alarm.Name
}

// load reads and decodes the file on first use.
func (s *FileHistorySource) load(ctx context.Context) ([]*domain.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.events, nil
	}

	contents, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var items []historyDTO

	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".jsonl", ".ndjson":
		items, err = decodeHistoryLines(contents)
	default:
		items, err = decodeHistoryPages(contents)
	}

	if err != nil {
		return nil, fmt.Errorf("decode history file %s: %w", s.path, err)
	}

	events := make([]*domain.HistoryEvent, 0, len(items))

	for i := range items {
		event, convErr := items[i].toDomain()
		if convErr != nil {
			logger.WarnKV(ctx, "Skipping history item with invalid timestamp",
				"alarm_name", items[i].AlarmName,
				"timestamp", items[i].Timestamp,
				"error", convErr,
			)

			continue
		}

		events = append(events, event)
	}

	s.events = events
	s.loaded = true

	logger.DebugKV(ctx, "History file loaded", "path", s.path, "items", len(events))

	return s.events, nil
}

// decodeHistoryPages accepts one page object or an array of them.
func decodeHistoryPages(contents []byte) ([]historyDTO, error) {
	trimmed := bytes.TrimSpace(contents)

	var pages []describeHistoryPage

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &pages); err != nil {
			return nil, err
		}
	} else {
		var page describeHistoryPage
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, err
		}

		pages = append(pages, page)
	}

	var items []historyDTO
	for _, page := range pages {
		items = append(items, page.AlarmHistoryItems...)
	}

	return items, nil
}

// decodeHistoryLines decodes one item per non-blank line.
func decodeHistoryLines(contents []byte) ([]historyDTO, error) {
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		items []historyDTO
		line  int
	)

	for scanner.Scan() {
		line++

		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var item historyDTO
		if err := json.Unmarshal(text, &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}

	return items, nil
}

// toDomain converts the DTO into a history event.
func (d *historyDTO) toDomain() (*domain.HistoryEvent, error) {
	timestamp, err := domain.ParseStartDate(d.Timestamp)
	if err != nil {
		return nil, err
	}

	return &domain.HistoryEvent{
		AlarmARN:  d.AlarmArn,
		AlarmName: d.AlarmName,
		Timestamp: timestamp,
		ItemType:  domain.ItemType(d.HistoryItemType),
		Summary:   d.HistorySummary,
		Data:      d.HistoryData,
	}, nil
}

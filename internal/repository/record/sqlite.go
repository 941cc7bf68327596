package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/oshokin/alarm-health/internal/classifier"
	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
	"github.com/oshokin/alarm-health/internal/report"
)

var (
	errFailedOpenDB      = errors.New("failed to open database")
	errFailedToEnableWAL = errors.New("failed to enable WAL mode")
	errFailedToInit      = errors.New("failed to initialize schema")
	errFailedToUpsert    = errors.New("failed to upsert record")
	errFailedToQuery     = errors.New("failed to query records")
	errFailedToScan      = errors.New("failed to scan record")
)

const (
	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS alarm_records (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		actions_enabled BOOLEAN NOT NULL DEFAULT 0,
		state_value TEXT NOT NULL DEFAULT '',
		alarm_actions TEXT NOT NULL DEFAULT '[]',
		ok_actions TEXT NOT NULL DEFAULT '[]',
		insufficient_data_actions TEXT NOT NULL DEFAULT '[]',
		no_description BOOLEAN NOT NULL DEFAULT 0,
		high_threshold BOOLEAN NOT NULL DEFAULT 0,
		high_data_points BOOLEAN NOT NULL DEFAULT 0,
		no_actions BOOLEAN NOT NULL DEFAULT 0,
		long_lived_alarm_count INTEGER,
		long_term_issue_count INTEGER,
		recurring_in_12_hours_count INTEGER,
		short_alarm_count INTEGER,
		assessment TEXT,
		suggested_description TEXT,
		run_id TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alarm_records_run
		ON alarm_records(run_id);
	`

	// upsertSQL replaces static fields and keeps stored counters and advisory
	// when the incoming values are NULL.
	upsertSQL = `
	INSERT INTO alarm_records (
		id, name, description, actions_enabled, state_value,
		alarm_actions, ok_actions, insufficient_data_actions,
		no_description, high_threshold, high_data_points, no_actions,
		long_lived_alarm_count, long_term_issue_count, recurring_in_12_hours_count, short_alarm_count,
		assessment, suggested_description, run_id, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		actions_enabled = excluded.actions_enabled,
		state_value = excluded.state_value,
		alarm_actions = excluded.alarm_actions,
		ok_actions = excluded.ok_actions,
		insufficient_data_actions = excluded.insufficient_data_actions,
		no_description = excluded.no_description,
		high_threshold = excluded.high_threshold,
		high_data_points = excluded.high_data_points,
		no_actions = excluded.no_actions,
		long_lived_alarm_count = COALESCE(excluded.long_lived_alarm_count, alarm_records.long_lived_alarm_count),
		long_term_issue_count = COALESCE(excluded.long_term_issue_count, alarm_records.long_term_issue_count),
		recurring_in_12_hours_count = COALESCE(excluded.recurring_in_12_hours_count, alarm_records.recurring_in_12_hours_count),
		short_alarm_count = COALESCE(excluded.short_alarm_count, alarm_records.short_alarm_count),
		assessment = COALESCE(excluded.assessment, alarm_records.assessment),
		suggested_description = COALESCE(excluded.suggested_description, alarm_records.suggested_description),
		run_id = excluded.run_id,
		updated_at = excluded.updated_at
	`

	selectSQL = `
	SELECT
		id, name, description, actions_enabled, state_value,
		alarm_actions, ok_actions, insufficient_data_actions,
		no_description, high_threshold, high_data_points, no_actions,
		long_lived_alarm_count, long_term_issue_count, recurring_in_12_hours_count, short_alarm_count,
		assessment, suggested_description, run_id, updated_at
	FROM alarm_records
	`
)

// SQLiteRepository stores records in a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and creates the schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToEnableWAL, err)
	}

	if _, err = db.Exec(createTablesSQL); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Put upserts the record.
func (r *SQLiteRepository) Put(ctx context.Context, record *report.Record) error {
	if err := validate(record); err != nil {
		return err
	}

	alarmActions, err := encodeList(record.AlarmActions)
	if err != nil {
		return err
	}

	okActions, err := encodeList(record.OKActions)
	if err != nil {
		return err
	}

	insufficientActions, err := encodeList(record.InsufficientDataActions)
	if err != nil {
		return err
	}

	var (
		longLived, longTerm, recurring, short any
		assessment, suggestion                any
	)

	if c := record.Counters; c != nil {
		longLived, longTerm, recurring, short = c.LongLivedAlarmCount, c.LongTermIssueCount,
			c.RecurringIn12HoursCount, c.ShortAlarmCount
	}

	if a := record.Advisory; a != nil {
		assessment, suggestion = a.Assessment, a.SuggestedDescription
	}

	_, err = r.db.ExecContext(ctx, upsertSQL,
		record.ID,
		record.Name,
		record.Description,
		record.ActionsEnabled,
		string(record.StateValue),
		alarmActions,
		okActions,
		insufficientActions,
		record.IssueFlags.NoDescription,
		record.IssueFlags.HighThreshold,
		record.IssueFlags.HighDataPoints,
		record.IssueFlags.NoActions,
		longLived,
		longTerm,
		recurring,
		short,
		assessment,
		suggestion,
		record.RunID,
		record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w %s: %w", errFailedToUpsert, record.ID, err)
	}

	return nil
}

// Get returns the record with the given ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*report.Record, error) {
	row := r.db.QueryRowContext(ctx, selectSQL+" WHERE id = ?", id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	return record, nil
}

// List returns every record ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]*report.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectSQL+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var records []*report.Record

	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}

	return records, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row in selectSQL column order.
func scanRecord(row scanner) (*report.Record, error) {
	var (
		record                                report.Record
		stateValue, updatedAt                 string
		alarmActions, okActions, insufficient string
		longLived, longTerm, recurring, short sql.NullInt64
		assessment, suggestedDescription      sql.NullString
	)

	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Description,
		&record.ActionsEnabled,
		&stateValue,
		&alarmActions,
		&okActions,
		&insufficient,
		&record.IssueFlags.NoDescription,
		&record.IssueFlags.HighThreshold,
		&record.IssueFlags.HighDataPoints,
		&record.IssueFlags.NoActions,
		&longLived,
		&longTerm,
		&recurring,
		&short,
		&assessment,
		&suggestedDescription,
		&record.RunID,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
	}

	record.StateValue = domain.StateValue(stateValue)

	if record.AlarmActions, err = decodeList(alarmActions); err != nil {
		return nil, err
	}

	if record.OKActions, err = decodeList(okActions); err != nil {
		return nil, err
	}

	if record.InsufficientDataActions, err = decodeList(insufficient); err != nil {
		return nil, err
	}

	if longLived.Valid || longTerm.Valid || recurring.Valid || short.Valid {
		record.Counters = &classifier.Counters{
			LongLivedAlarmCount:     int(longLived.Int64),
			LongTermIssueCount:      int(longTerm.Int64),
			RecurringIn12HoursCount: int(recurring.Int64),
			ShortAlarmCount:         int(short.Int64),
		}
	}

	if assessment.Valid {
		record.Advisory = &report.Advisory{
			Assessment:           assessment.String,
			SuggestedDescription: suggestedDescription.String,
		}
	}

	if record.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("%w: updated_at: %w", errFailedToScan, err)
	}

	return &record, nil
}

// encodeList stores a string list as a JSON array.
func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}

	return string(data), nil
}

// decodeList reads a JSON array column.
func decodeList(value string) ([]string, error) {
	values := []string{}
	if err := json.Unmarshal([]byte(value), &values); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
	}

	return values, nil
}

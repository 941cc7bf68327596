package record

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-health/internal/classifier"
	"github.com/oshokin/alarm-health/internal/config"
	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
	"github.com/oshokin/alarm-health/internal/report"
)

// openers builds each repository implementation on a fresh temporary path.
func openers() map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"json": func(t *testing.T) Repository {
			t.Helper()

			return NewFileRepository(filepath.Join(t.TempDir(), "records.json"))
		},
		"sqlite": func(t *testing.T) Repository {
			t.Helper()

			repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "records.db"))
			require.NoError(t, err)

			return repo
		},
	}
}

func sampleRecord(id string) *report.Record {
	return &report.Record{
		ID:                      id,
		Name:                    "cpu-high",
		Description:             "CPU above 80%",
		ActionsEnabled:          true,
		StateValue:              domain.StateOK,
		AlarmActions:            []string{"arn:aws:sns:eu-west-1:123:page"},
		OKActions:               []string{},
		InsufficientDataActions: []string{},
		IssueFlags:              report.IssueFlags{HighThreshold: true},
		RunID:                   "run-1",
		UpdatedAt:               time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestRepository_PutGet stores a record and reads it back unchanged.
func TestRepository_PutGet(t *testing.T) {
	t.Parallel()

	for name, open := range openers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			repo := open(t)
			t.Cleanup(func() { _ = repo.Close() })

			ctx := context.Background()
			want := sampleRecord("arn:a")
			want.Counters = &classifier.Counters{ShortAlarmCount: 2, LongTermIssueCount: 1}

			require.NoError(t, repo.Put(ctx, want))

			got, err := repo.Get(ctx, "arn:a")
			require.NoError(t, err)
			require.Equal(t, want.Name, got.Name)
			require.Equal(t, want.AlarmActions, got.AlarmActions)
			require.Equal(t, want.IssueFlags, got.IssueFlags)
			require.Equal(t, want.Counters, got.Counters)
			require.Nil(t, got.Advisory)
			require.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
		})
	}
}

// TestRepository_PutPreservesEnrichment keeps counters and advisory across static-only writes.
func TestRepository_PutPreservesEnrichment(t *testing.T) {
	t.Parallel()

	for name, open := range openers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			repo := open(t)
			t.Cleanup(func() { _ = repo.Close() })

			ctx := context.Background()

			first := sampleRecord("arn:a")
			first.Counters = &classifier.Counters{LongLivedAlarmCount: 4}
			first.Advisory = &report.Advisory{Assessment: "vague", SuggestedDescription: "CPU > 80% for 5m"}
			require.NoError(t, repo.Put(ctx, first))

			second := sampleRecord("arn:a")
			second.Description = "updated"
			second.RunID = "run-2"
			require.NoError(t, repo.Put(ctx, second))

			got, err := repo.Get(ctx, "arn:a")
			require.NoError(t, err)
			require.Equal(t, "updated", got.Description)
			require.Equal(t, "run-2", got.RunID)
			require.Equal(t, &classifier.Counters{LongLivedAlarmCount: 4}, got.Counters)
			require.Equal(t, first.Advisory, got.Advisory)

			third := sampleRecord("arn:a")
			third.Counters = &classifier.Counters{}
			require.NoError(t, repo.Put(ctx, third))

			got, err = repo.Get(ctx, "arn:a")
			require.NoError(t, err)
			require.Equal(t, &classifier.Counters{}, got.Counters)
		})
	}
}

// TestRepository_List returns all records ordered by ID.
func TestRepository_List(t *testing.T) {
	t.Parallel()

	for name, open := range openers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			repo := open(t)
			t.Cleanup(func() { _ = repo.Close() })

			ctx := context.Background()

			empty, err := repo.List(ctx)
			require.NoError(t, err)
			require.Empty(t, empty)

			for _, id := range []string{"arn:c", "arn:a", "arn:b"} {
				require.NoError(t, repo.Put(ctx, sampleRecord(id)))
			}

			records, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 3)
			require.Equal(t, "arn:a", records[0].ID)
			require.Equal(t, "arn:b", records[1].ID)
			require.Equal(t, "arn:c", records[2].ID)
		})
	}
}

// TestRepository_Errors covers missing records and invalid input.
func TestRepository_Errors(t *testing.T) {
	t.Parallel()

	for name, open := range openers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			repo := open(t)
			t.Cleanup(func() { _ = repo.Close() })

			ctx := context.Background()

			_, err := repo.Get(ctx, "arn:missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.ErrorIs(t, repo.Put(ctx, nil), errRecordIsNotSet)
			require.ErrorIs(t, repo.Put(ctx, &report.Record{}), errRecordIDRequired)
		})
	}
}

// TestOpen selects the repository from the sink type.
func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	repo, err := Open(config.Sink{Type: config.SinkJSON, Path: filepath.Join(dir, "r.json")})
	require.NoError(t, err)
	require.IsType(t, &FileRepository{}, repo)
	require.NoError(t, repo.Close())

	repo, err = Open(config.Sink{Type: config.SinkSQLite, Path: filepath.Join(dir, "r.db")})
	require.NoError(t, err)
	require.IsType(t, &SQLiteRepository{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open(config.Sink{Type: "dynamodb"})
	require.ErrorIs(t, err, errUnsupportedSink)
}

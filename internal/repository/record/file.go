package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/alarm-health/internal/config"
	"github.com/oshokin/alarm-health/internal/report"
)

// FileRepository keeps records in a single JSON file, sorted by ID.
// Each Put rewrites the file through a temporary file and a rename.
type FileRepository struct {
	// path is the filesystem location of the JSON file.
	path string
	// mu serializes access to the file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads and writes JSON at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Put merges the record into the file.
func (r *FileRepository) Put(ctx context.Context, record *report.Record) error {
	if err := validate(record); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		return err
	}

	index := slices.IndexFunc(records, func(stored *report.Record) bool {
		return stored.ID == record.ID
	})

	if index >= 0 {
		records[index] = merge(records[index], record)
	} else {
		records = append(records, merge(nil, record))
	}

	return r.write(records)
}

// Get returns the stored record with the given ID.
func (r *FileRepository) Get(_ context.Context, id string) (*report.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		return nil, err
	}

	for _, stored := range records {
		if stored.ID == id {
			return stored, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns every stored record ordered by ID.
func (r *FileRepository) List(_ context.Context) ([]*report.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.read()
}

// Close is a no-op; the file is not kept open between calls.
func (*FileRepository) Close() error {
	return nil
}

// read loads all records. A missing file holds no records.
func (r *FileRepository) read() ([]*report.Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read records file: %w", err)
	}

	var records []*report.Record
	if err = json.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("decode records file: %w", err)
	}

	return records, nil
}

// write replaces the file with the given records.
func (r *FileRepository) write(records []*report.Record) error {
	slices.SortFunc(records, func(a, b *report.Record) int {
		return strings.Compare(a.ID, b.ID)
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	tmp := r.path + ".tmp"

	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write records file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace records file: %w", err)
	}

	return nil
}

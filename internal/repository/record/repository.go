package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/alarm-health/internal/config"
	"github.com/oshokin/alarm-health/internal/report"
)

// Persister stores one record.
type Persister interface {
	Put(ctx context.Context, record *report.Record) error
}

// Repository is a Persister that can also read records back.
type Repository interface {
	Persister
	Get(ctx context.Context, id string) (*report.Record, error)
	List(ctx context.Context) ([]*report.Record, error)
	Close() error
}

var (
	// ErrNotFound is returned when no record exists for the requested ID.
	ErrNotFound = errors.New("record not found")
	// errRecordIsNotSet is returned when a nil record is passed to Put.
	errRecordIsNotSet = errors.New("record is not set")
	// errRecordIDRequired is returned when a record has no ID.
	errRecordIDRequired = errors.New("record id must be provided")
	// errUnsupportedSink is returned for an unknown sink type.
	errUnsupportedSink = errors.New("unsupported sink type")
)

// Open creates the repository described by the sink configuration.
func Open(sink config.Sink) (Repository, error) {
	switch sink.Type {
	case config.SinkJSON:
		return NewFileRepository(sink.Path), nil
	case config.SinkSQLite:
		return NewSQLiteRepository(sink.Path)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedSink, sink.Type)
	}
}

// validate checks that a record can be stored.
func validate(r *report.Record) error {
	if r == nil {
		return errRecordIsNotSet
	}

	if r.ID == "" {
		return errRecordIDRequired
	}

	return nil
}

// merge combines an incoming record with the stored one.
// Counters and advisory survive when the incoming record does not carry them.
func merge(stored, incoming *report.Record) *report.Record {
	result := incoming.Clone()

	if stored == nil {
		return result
	}

	if result.Counters == nil && stored.Counters != nil {
		counters := *stored.Counters
		result.Counters = &counters
	}

	if result.Advisory == nil && stored.Advisory != nil {
		advisory := *stored.Advisory
		result.Advisory = &advisory
	}

	return result
}

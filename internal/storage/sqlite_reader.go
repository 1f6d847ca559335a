package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

// ErrNoData indicates that no data exists for the given parameters.
var ErrNoData = errors.New("no data available")

// SampleReader provides an iterator-based interface for reading recorded samples.
type SampleReader interface {
	// Next advances the iterator and returns true if there is another sample
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sample.
	// If called after Next() returns false, the behavior is undefined.
	Current() *stream.Sample

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SqliteSampleReader.
type ReaderOption func(*SqliteSampleReader)

// WithIndexRange limits the reader to samples with from <= index <= to.
func WithIndexRange(from, to uint64) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.from = from
		r.to = to
	}
}

// SqliteSampleReader implements SampleReader for the SQLite backend.
type SqliteSampleReader struct {
	sessionID int64
	from, to  uint64

	current stream.Sample
	rows    *sql.Rows
	err     error
}

func newSqliteSampleReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSampleReader, error) {
	if sessionID <= 0 {
		return nil, errors.New("session ID required")
	}

	r := SqliteSampleReader{
		sessionID: sessionID,
		to:        math.MaxInt64,
	}
	for _, opt := range opts {
		opt(&r)
	}

	if r.from > r.to {
		return nil, fmt.Errorf("index range start %d is after end %d", r.from, r.to)
	}
	to := min(r.to, math.MaxInt64)

	rows, err := db.QueryContext(ctx, selectSamplesSQL, sessionID, int64(r.from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	r.rows = rows

	return &r, nil
}

func (r *SqliteSampleReader) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}

	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}

	if !r.rows.Next() {
		return false
	}

	var index, deviceTs int64
	var s stream.Sample
	if r.err = r.rows.Scan(&index, &s.T, &s.X, &s.Y, &s.Z, &deviceTs); r.err != nil {
		r.err = fmt.Errorf("scanning sample: %w", r.err)
		return false
	}
	s.Index = uint64(index)
	s.DeviceTimestampMs = uint64(deviceTs)

	r.current = s
	return true
}

func (r *SqliteSampleReader) Current() *stream.Sample {
	return &r.current
}

func (r *SqliteSampleReader) Error() error {
	if r.err != nil {
		return r.err
	}
	if r.rows != nil {
		return r.rows.Err()
	}
	return nil
}

func (r *SqliteSampleReader) Close() error {
	if r.rows != nil {
		err := r.rows.Close()
		r.rows = nil
		return err
	}
	return nil
}

var _ SampleReader = (*SqliteSampleReader)(nil)

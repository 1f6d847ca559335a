package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

// maxBatchRows bounds the rows of one multi-row insert so the statement stays
// below the SQLite host parameter limit.
const maxBatchRows = 500

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened lazily; the schema is migrated on the first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = migrateUp(db); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateSession records the start of a session and returns its row id and
// a newly generated unique key. config is stored as JSON unless it is already
// a string or a byte slice.
func (s *SqliteStore) CreateSession(ctx context.Context, device string, startTime time.Time, config any) (sessionID int64, key string, err error) {
	configData, err := toNullString(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	key = uuid.New().String()

	result, err := stmt.ExecContext(ctx, key, startTime.UTC(), device, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// FinishSession stores the end time and final counters of a session.
func (s *SqliteStore) FinishSession(ctx context.Context, sessionID int64, endTime time.Time, stats stream.Stats) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, finishSessionSQL,
		endTime.UTC(),
		int64(stats.SampleCount),
		int64(stats.DroppedSamples),
		toMillis(stats.LatencyMean),
		toMillis(stats.LatencyMax),
		stats.EffectiveSampleRate,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, ErrNoData)
	}

	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data sessionData
	if err = scanSession(stmt.QueryRowContext(ctx, id), &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("session %d: %w", id, ErrNoData)
			return
		}
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return toSession(&data), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data sessionData
		if err = scanSession(rows, &data); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, toSession(&data))
	}
	err = rows.Err()
	return
}

func scanSession(row interface{ Scan(...any) error }, d *sessionData) error {
	return row.Scan(
		&d.ID,
		&d.Key,
		&d.StartTime,
		&d.EndTime,
		&d.Device,
		&d.Config,
		&d.SampleCount,
		&d.DroppedSamples,
		&d.LatencyMeanMs,
		&d.LatencyMaxMs,
		&d.EffectiveRate,
	)
}

// StoreSamples inserts samples in one transaction, using multi-row inserts.
func (s *SqliteStore) StoreSamples(ctx context.Context, sessionID int64, samples []stream.Sample) (err error) {
	if len(samples) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?)"

	for batch := range slices.Chunk(samples, maxBatchRows) {
		values := make([]any, 0, len(batch)*7)

		var sb strings.Builder
		sb.WriteString(insertSamplesSQL)

		for i, sample := range batch {
			values = append(values,
				sessionID,
				int64(sample.Index),
				sample.T,
				sample.X,
				sample.Y,
				sample.Z,
				int64(sample.DeviceTimestampMs),
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting samples: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// StoreSpectrum records one analysis result.
func (s *SqliteStore) StoreSpectrum(ctx context.Context, sessionID int64, sp *spectrum.Spectrum) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	var points sql.NullString
	if len(sp.Points) > 0 {
		p, err := json.Marshal(sp.Points)
		if err != nil {
			return fmt.Errorf("marshaling spectrum points: %w", err)
		}
		points = sql.NullString{String: string(p), Valid: true}
	}

	_, err = db.ExecContext(ctx, insertSpectrumSQL,
		sessionID,
		sp.Timestamp.UTC(),
		int64(sp.SampleIndex),
		sp.Axis.String(),
		sp.FFTSize,
		sp.Resolution,
		sp.PeakFrequency,
		sp.PeakMagnitude,
		points,
	)
	if err != nil {
		return fmt.Errorf("inserting spectrum: %w", err)
	}

	return nil
}

// Spectra returns the recorded spectra of a session in sample order.
func (s *SqliteStore) Spectra(ctx context.Context, sessionID int64) (spectra []*spectrum.Spectrum, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSpectraSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying spectra: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d spectrumData
		if err = rows.Scan(&d.Timestamp, &d.SampleIndex, &d.Axis, &d.FFTSize, &d.Resolution, &d.PeakFrequency, &d.PeakMagnitude, &d.Points); err != nil {
			err = fmt.Errorf("scanning spectrum: %w", err)
			return
		}

		var sp *spectrum.Spectrum
		if sp, err = toSpectrum(&d); err != nil {
			return
		}
		spectra = append(spectra, sp)
	}
	err = rows.Err()
	return
}

// ReadSamples creates a SampleReader over the recorded samples of a session,
// in index order. The returned reader must be closed after use.
func (s *SqliteStore) ReadSamples(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteSampleReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSampleReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if s.writeDB != nil {
			errs = append(errs, s.writeDB.Close())
			s.writeDB = nil
		}

		if s.readDB != nil {
			errs = append(errs, s.readDB.Close())
			s.readDB = nil
		}

		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}

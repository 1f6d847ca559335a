package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

// toNullString converts a session config into its stored JSON form.
func toNullString(config any) (sql.NullString, error) {
	switch v := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(config)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toSession(d *sessionData) *Session {
	sess := Session{
		ID:        d.ID,
		Key:       d.Key,
		StartTime: d.StartTime,
		Device:    d.Device,
	}

	if d.EndTime.Valid {
		sess.EndTime = &d.EndTime.Time
	}
	if d.Config.Valid {
		sess.Config = &d.Config.String
	}
	if d.SampleCount.Valid {
		sess.Summary = &Summary{
			SampleCount:         uint64(d.SampleCount.Int64),
			DroppedSamples:      uint64(d.DroppedSamples.Int64),
			LatencyMean:         fromMillis(d.LatencyMeanMs.Float64),
			LatencyMax:          fromMillis(d.LatencyMaxMs.Float64),
			EffectiveSampleRate: d.EffectiveRate.Float64,
		}
	}

	return &sess
}

func toSpectrum(d *spectrumData) (*spectrum.Spectrum, error) {
	axis, err := spectrum.ParseAxis(d.Axis)
	if err != nil {
		return nil, err
	}

	s := spectrum.Spectrum{
		Timestamp:     d.Timestamp,
		SampleIndex:   uint64(d.SampleIndex),
		Axis:          axis,
		FFTSize:       d.FFTSize,
		Resolution:    d.Resolution,
		PeakFrequency: d.PeakFrequency,
		PeakMagnitude: d.PeakMagnitude,
	}

	if d.Points.Valid {
		if err = json.Unmarshal([]byte(d.Points.String), &s.Points); err != nil {
			return nil, fmt.Errorf("unmarshaling spectrum points: %w", err)
		}
	}

	return &s, nil
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

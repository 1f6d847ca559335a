package storage

import (
	"database/sql"
	"time"
)

// Session describes one recorded acquisition session.
type Session struct {
	ID        int64      `json:"id"`
	Key       string     `json:"key"`               // Globally unique session key
	StartTime time.Time  `json:"startTime"`         // When recording began
	EndTime   *time.Time `json:"endTime,omitempty"` // Nil while the session is still recording
	Device    string     `json:"device"`            // Transport source name
	Config    *string    `json:"config,omitempty"`  // Stream configuration as JSON
	Summary   *Summary   `json:"summary,omitempty"` // Final counters, set by FinishSession
}

// Summary holds the counters of a finished session.
type Summary struct {
	SampleCount         uint64        `json:"sampleCount"`
	DroppedSamples      uint64        `json:"droppedSamples"`
	LatencyMean         time.Duration `json:"latencyMean"`
	LatencyMax          time.Duration `json:"latencyMax"`
	EffectiveSampleRate float64       `json:"effectiveSampleRate"`
}

type sessionData struct {
	ID             int64
	Key            string
	StartTime      time.Time
	EndTime        sql.NullTime
	Device         string
	Config         sql.NullString
	SampleCount    sql.NullInt64
	DroppedSamples sql.NullInt64
	LatencyMeanMs  sql.NullFloat64
	LatencyMaxMs   sql.NullFloat64
	EffectiveRate  sql.NullFloat64
}

type spectrumData struct {
	Timestamp     time.Time
	SampleIndex   int64
	Axis          string
	FFTSize       int
	Resolution    float64
	PeakFrequency float64
	PeakMagnitude float64
	Points        sql.NullString
}

package stream

import (
	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
)

// Sample is a decoded accelerometer reading placed on the session timeline.
type Sample struct {
	Index             uint64  `json:"index"`             // Zero-based position in the session
	T                 float64 `json:"t"`                 // Index / sample rate, in seconds
	X                 float64 `json:"x"`                 // Acceleration in g
	Y                 float64 `json:"y"`                 // Acceleration in g
	Z                 float64 `json:"z"`                 // Acceleration in g
	DeviceTimestampMs uint64  `json:"deviceTimestampMs"` // Unwrapped device timestamp
}

// Value returns the acceleration of the given axis.
func (s Sample) Value(axis spectrum.Axis) float64 {
	switch axis {
	case spectrum.AxisY:
		return s.Y
	case spectrum.AxisZ:
		return s.Z
	default:
		return s.X
	}
}

// SampleStore is an ordered, append-only window of the most recent samples.
// It is not safe for concurrent use; Session serializes access.
type SampleStore struct {
	samples []Sample
	minimum int
}

// NewSampleStore creates a store that never trims below minimum samples.
func NewSampleStore(minimum int) *SampleStore {
	return &SampleStore{minimum: minimum}
}

// SetMinimum changes the trim floor.
func (s *SampleStore) SetMinimum(minimum int) {
	s.minimum = minimum
}

// Append adds samples in order.
func (s *SampleStore) Append(samples ...Sample) {
	s.samples = append(s.samples, samples...)
}

// Len returns the number of retained samples.
func (s *SampleStore) Len() int {
	return len(s.samples)
}

// Tail returns a copy of the most recent n samples in time order.
func (s *SampleStore) Tail(n int) []Sample {
	n = min(max(n, 0), len(s.samples))
	out := make([]Sample, n)
	copy(out, s.samples[len(s.samples)-n:])
	return out
}

// AxisTail returns the given axis of the most recent n samples.
func (s *SampleStore) AxisTail(axis spectrum.Axis, n int) []float64 {
	n = min(max(n, 0), len(s.samples))
	out := make([]float64, n)
	for i, sample := range s.samples[len(s.samples)-n:] {
		out[i] = sample.Value(axis)
	}
	return out
}

// Samples returns a copy of everything retained.
func (s *SampleStore) Samples() []Sample {
	return s.Tail(len(s.samples))
}

// Trim drops the oldest samples so that at most keep remain, but never fewer
// than the store minimum.
func (s *SampleStore) Trim(keep int) {
	keep = max(keep, s.minimum)
	if len(s.samples) <= keep {
		return
	}

	n := copy(s.samples, s.samples[len(s.samples)-keep:])
	clear(s.samples[n:])
	s.samples = s.samples[:n]
}

// Reset empties the store.
func (s *SampleStore) Reset() {
	s.samples = nil
}

package app

import (
	"fmt"
	"math"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

// Peak is the strongest bin of one spectrogram row.
type Peak struct {
	Time      float64 // Session time in seconds
	Frequency float64 // Hz
	Magnitude float64 // g
}

// Spectrogram holds the rows of a sliding-window analysis. Each row holds the
// levels of bins 1..n/2-1 in dB re 1 g, nil where the magnitude is zero.
type Spectrogram struct {
	Axis                       spectrum.Axis
	FFTSize, Hop               int
	SampleRate                 float64
	Resolution                 float64
	Width, Height              int
	FrequencyMin, FrequencyMax float64
	TimeStart, TimeEnd         float64
	BoundsTracker              *SmoothBounds
	Rows                       [][]*float64
	Peaks                      []Peak
}

// RowsPerSecond is the number of rows covering one second of samples.
func (s *Spectrogram) RowsPerSecond() float64 {
	return s.SampleRate / float64(s.Hop)
}

// SpectrogramBuilder feeds samples through a sliding window of FFTSize
// samples and analyzes the window every Hop samples.
type SpectrogramBuilder struct {
	spec    *Spectrogram
	window  []float64
	pending int
}

func NewSpectrogramBuilder(axis spectrum.Axis, fftSize, hop int, sampleRate float64, bounds *SmoothBounds) (*SpectrogramBuilder, error) {
	if !spectrum.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size %d: %w", fftSize, spectrum.ErrInvalidFFTSize)
	}
	if hop <= 0 {
		return nil, fmt.Errorf("hop must be positive, got %d", hop)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %v", sampleRate)
	}

	res := spectrum.Resolution(sampleRate, fftSize)
	return &SpectrogramBuilder{
		spec: &Spectrogram{
			Axis:          axis,
			FFTSize:       fftSize,
			Hop:           hop,
			SampleRate:    sampleRate,
			Resolution:    res,
			Width:         fftSize/2 - 1,
			FrequencyMin:  res,
			FrequencyMax:  float64(fftSize/2-1) * res,
			TimeStart:     math.NaN(),
			BoundsTracker: bounds,
		},
		window: make([]float64, 0, 2*fftSize),
	}, nil
}

// Add appends a sample to the window and analyzes it when a row is due.
func (b *SpectrogramBuilder) Add(s *stream.Sample) error {
	n := b.spec.FFTSize

	if len(b.window) == cap(b.window) {
		b.window = append(b.window[:0], b.window[len(b.window)-n+1:]...)
	}
	b.window = append(b.window, s.Value(b.spec.Axis))
	b.pending++

	if len(b.window) < n || (b.spec.Height > 0 && b.pending < b.spec.Hop) {
		return nil
	}
	b.pending = 0

	sp, err := spectrum.Analyze(b.window[len(b.window)-n:], b.spec.SampleRate)
	if err != nil {
		return fmt.Errorf("analyzing window ending at sample %d: %w", s.Index, err)
	}

	row := make([]*float64, len(sp.Points))
	for i, p := range sp.Points {
		row[i] = toDecibels(p.Magnitude)
		b.spec.BoundsTracker.Update(row[i])
	}

	if math.IsNaN(b.spec.TimeStart) {
		b.spec.TimeStart = s.T
	}
	b.spec.TimeEnd = s.T
	b.spec.Height++
	b.spec.Rows = append(b.spec.Rows, row)
	b.spec.Peaks = append(b.spec.Peaks, Peak{Time: s.T, Frequency: sp.PeakFrequency, Magnitude: sp.PeakMagnitude})

	return nil
}

// Spectrogram returns the rows analyzed so far.
func (b *SpectrogramBuilder) Spectrogram() *Spectrogram {
	return b.spec
}

func toDecibels(magnitude float64) *float64 {
	if magnitude <= 0 {
		return nil
	}
	db := 20 * math.Log10(magnitude)
	return &db
}

package app

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

func sineSamples(n int, rate, freq float64) []stream.Sample {
	out := make([]stream.Sample, n)
	for i := range out {
		out[i] = stream.Sample{
			Index: uint64(i),
			T:     float64(i) / rate,
			Y:     0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate),
			Z:     1,
		}
	}
	return out
}

func TestSpectrogramBuilder(t *testing.T) {
	const rate = 1000.0

	b, err := NewSpectrogramBuilder(spectrum.AxisY, 64, 16, rate, NewSmoothBounds(0.3))
	require.NoError(t, err)

	samples := sineSamples(200, rate, 125)
	for i := range samples {
		require.NoError(t, b.Add(&samples[i]))
	}

	spec := b.Spectrogram()
	// first row at sample 63, then every 16 samples up to 199
	assert.Equal(t, 1+(200-64)/16, spec.Height)
	assert.Len(t, spec.Rows, spec.Height)
	assert.Equal(t, 31, spec.Width)
	assert.InDelta(t, rate/64, spec.FrequencyMin, 1e-12)
	assert.InDelta(t, 31*rate/64, spec.FrequencyMax, 1e-12)
	assert.InDelta(t, 0.063, spec.TimeStart, 1e-12)
	assert.InDelta(t, 0.191, spec.TimeEnd, 1e-12)
	assert.InDelta(t, 62.5, spec.RowsPerSecond(), 1e-12)

	for i, row := range spec.Rows {
		assert.Len(t, row, spec.Width)
		assert.InDelta(t, 125, spec.Peaks[i].Frequency, 1e-9)
	}

	peak := spec.Rows[0][7] // bin 8, 125 Hz
	require.NotNil(t, peak)
	assert.InDelta(t, 20*math.Log10(0.25), *peak, 0.5)
}

func TestSpectrogramBuilder_SilentAxis(t *testing.T) {
	b, err := NewSpectrogramBuilder(spectrum.AxisX, 16, 16, 1000, NewSmoothBounds(0.3))
	require.NoError(t, err)

	samples := sineSamples(16, 1000, 125)
	for i := range samples {
		require.NoError(t, b.Add(&samples[i]))
	}

	spec := b.Spectrogram()
	require.Equal(t, 1, spec.Height)
	for _, level := range spec.Rows[0] {
		assert.Nil(t, level)
	}
	assert.Zero(t, spec.Peaks[0].Frequency)
}

func TestNewSpectrogramBuilder_Invalid(t *testing.T) {
	bounds := NewSmoothBounds(0.3)

	_, err := NewSpectrogramBuilder(spectrum.AxisX, 100, 10, 1000, bounds)
	assert.ErrorIs(t, err, spectrum.ErrInvalidFFTSize)

	_, err = NewSpectrogramBuilder(spectrum.AxisX, 64, 0, 1000, bounds)
	assert.Error(t, err)

	_, err = NewSpectrogramBuilder(spectrum.AxisX, 64, 8, 0, bounds)
	assert.Error(t, err)
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		span, labels, want float64
	}{
		{500, 6, 100},
		{500, 10, 50},
		{61.4, 8, 10},
		{1.5, 8, 0.2},
		{0, 8, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, niceStep(tt.span, tt.labels), 1e-12, "span %v labels %v", tt.span, tt.labels)
	}
}

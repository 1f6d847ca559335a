package stream

import (
	"errors"
	"fmt"
	"math"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
)

const (
	DefaultSampleRate       = 1000.0
	DefaultLSBPerG          = 2048.0
	DefaultFFTSize          = 512
	DefaultWindowSeconds    = 1.0
	DefaultAnalysisInterval = 50

	MinWindowSeconds = 0.1
	MaxWindowSeconds = 5.0

	// retentionMargin is added on top of the display window when trimming.
	retentionMargin = 20
)

// Config holds the stream processing parameters.
type Config struct {
	SampleRate       float64       `yaml:"sampleRate"`       // Nominal device rate in Hz
	LSBPerG          float64       `yaml:"lsbPerG"`          // Raw counts per g
	FFTSize          int           `yaml:"fftSize"`          // Power of two
	Axis             spectrum.Axis `yaml:"axis"`             // Analyzed axis
	WindowSeconds    float64       `yaml:"windowSeconds"`    // Display window, clamped to 0.1..5.0
	AnalysisInterval int           `yaml:"analysisInterval"` // Samples between analyses
	VerifyCRC        bool          `yaml:"verifyCRC"`        // Check the Rev3 integrity field
}

// DefaultConfig returns the configuration of the reference sensor.
func DefaultConfig() Config {
	return Config{
		SampleRate:       DefaultSampleRate,
		LSBPerG:          DefaultLSBPerG,
		FFTSize:          DefaultFFTSize,
		Axis:             spectrum.AxisX,
		WindowSeconds:    DefaultWindowSeconds,
		AnalysisInterval: DefaultAnalysisInterval,
	}
}

// Validate checks the configuration. WindowSeconds is not validated since it is clamped.
func (c Config) Validate() error {
	var errs []error

	if c.SampleRate <= 0 || math.IsInf(c.SampleRate, 0) || math.IsNaN(c.SampleRate) {
		errs = append(errs, fmt.Errorf("sampleRate must be positive, got %v", c.SampleRate))
	}
	if c.LSBPerG <= 0 {
		errs = append(errs, fmt.Errorf("lsbPerG must be positive, got %v", c.LSBPerG))
	}
	if !spectrum.IsPowerOfTwo(c.FFTSize) {
		errs = append(errs, fmt.Errorf("fftSize %d: %w", c.FFTSize, spectrum.ErrInvalidFFTSize))
	}
	if c.AnalysisInterval <= 0 {
		errs = append(errs, fmt.Errorf("analysisInterval must be positive, got %d", c.AnalysisInterval))
	}
	if !c.Axis.Valid() {
		errs = append(errs, fmt.Errorf("%w %d", spectrum.ErrInvalidAxis, c.Axis))
	}

	if len(errs) > 0 {
		return fmt.Errorf("stream: %w", errors.Join(errs...))
	}
	return nil
}

// ClampWindow limits seconds to the supported display window range.
func ClampWindow(seconds float64) float64 {
	if math.IsNaN(seconds) {
		return DefaultWindowSeconds
	}
	return min(max(seconds, MinWindowSeconds), MaxWindowSeconds)
}

// retention returns the number of samples kept for the given window and FFT size.
func retention(windowSeconds, sampleRate float64, fftSize int) int {
	return max(int(math.Ceil(windowSeconds*sampleRate))+retentionMargin, fftSize)
}

package spectrum

import (
	"fmt"
	"math"
)

// Resolution returns the bin width in Hz for the given transform length.
func Resolution(sampleRate float64, fftSize int) float64 {
	if fftSize <= 0 {
		return 0
	}
	return sampleRate / float64(fftSize)
}

// Analyze windows values, transforms them and returns the single-sided
// magnitude spectrum for bins 1..n/2-1 with the strongest bin as the peak.
// The DC bin and the Nyquist bin are excluded. When every magnitude is zero
// the peak is reported at 0 Hz.
func Analyze(values []float64, sampleRate float64) (*Spectrum, error) {
	n := len(values)
	if !IsPowerOfTwo(n) {
		return nil, fmt.Errorf("analyzing %d values: %w", n, ErrInvalidFFTSize)
	}

	re, im, err := FFT(Hanning(values))
	if err != nil {
		return nil, err
	}

	res := Resolution(sampleRate, n)
	s := Spectrum{
		FFTSize:    n,
		Resolution: res,
		Points:     make([]Point, 0, max(n/2-1, 0)),
	}

	var peakIdx int
	var peakMag float64
	for k := 1; k < n/2; k++ {
		mag := 2 * math.Hypot(re[k], im[k]) / float64(n)
		s.Points = append(s.Points, Point{Frequency: float64(k) * res, Magnitude: mag})

		if mag > peakMag {
			peakMag = mag
			peakIdx = k
		}
	}

	s.PeakFrequency = float64(peakIdx) * res
	s.PeakMagnitude = peakMag

	return &s, nil
}

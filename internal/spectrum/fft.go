package spectrum

import (
	"errors"
	"math"
	"math/bits"
)

// ErrInvalidFFTSize is returned for transform lengths that are not a power of two or are below 2.
var ErrInvalidFFTSize = errors.New("fft size must be a power of two and at least 2")

// IsPowerOfTwo reports whether n is a power of two greater than or equal to 2.
func IsPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

// Hanning returns a copy of values multiplied by the Hanning window
// w[i] = 0.5·(1 − cos(2πi/(n−1))).
func Hanning(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 1 {
		out[0] = values[0]
		return out
	}
	for i, v := range values {
		out[i] = v * 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return out
}

// FFT computes the in-order discrete Fourier transform of real input using an
// iterative radix-2 Cooley-Tukey transform. The real and imaginary parts of the
// result are returned as separate slices.
func FFT(input []float64) (re, im []float64, err error) {
	n := len(input)
	if !IsPowerOfTwo(n) {
		return nil, nil, ErrInvalidFFTSize
	}

	re = make([]float64, n)
	im = make([]float64, n)

	shift := uint(bits.UintSize - bits.TrailingZeros(uint(n)))
	for i, v := range input {
		re[bits.Reverse(uint(i))>>shift] = v
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		angle := -2 * math.Pi / float64(size)
		wRe, wIm := math.Cos(angle), math.Sin(angle)

		for start := 0; start < n; start += size {
			tRe, tIm := 1.0, 0.0
			for k := 0; k < half; k++ {
				a, b := start+k, start+k+half

				xRe := tRe*re[b] - tIm*im[b]
				xIm := tRe*im[b] + tIm*re[b]

				re[b], im[b] = re[a]-xRe, im[a]-xIm
				re[a], im[a] = re[a]+xRe, im[a]+xIm

				tRe, tIm = tRe*wRe-tIm*wIm, tRe*wIm+tIm*wRe
			}
		}
	}

	return re, im, nil
}

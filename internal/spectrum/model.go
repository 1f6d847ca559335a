package spectrum

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Axis selects which accelerometer component feeds the analyzer.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// ErrInvalidAxis is returned for an axis other than x, y or z.
var ErrInvalidAxis = errors.New("unknown axis")

// Valid reports whether a is one of AxisX, AxisY or AxisZ.
func (a Axis) Valid() bool {
	return a <= AxisZ
}

func (a Axis) String() string {
	switch a {
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "x"
	}
}

// ParseAxis parses "x", "y" or "z" (case-insensitive).
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return AxisX, fmt.Errorf("%w %q", ErrInvalidAxis, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Axis) UnmarshalText(b []byte) error {
	v, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Point is the magnitude of a single frequency bin.
type Point struct {
	Frequency float64 `json:"frequency"` // Bin center frequency in Hz
	Magnitude float64 `json:"magnitude"` // Single-sided amplitude, in g
}

// Spectrum is the result of one analysis run over the most recent FFTSize
// samples of the selected axis.
type Spectrum struct {
	Timestamp     time.Time `json:"timestamp"`        // When the analysis ran
	SampleIndex   uint64    `json:"sampleIndex"`      // Index of the last analyzed sample
	Axis          Axis      `json:"axis"`             // Analyzed axis
	FFTSize       int       `json:"fftSize"`          // Number of samples transformed
	Resolution    float64   `json:"resolution"`       // Bin width in Hz
	PeakFrequency float64   `json:"peakFrequency"`    // Frequency of the strongest bin, 0 if all bins are zero
	PeakMagnitude float64   `json:"peakMagnitude"`    // Magnitude of the strongest bin
	Points        []Point   `json:"points,omitempty"` // Bins 1..FFTSize/2-1
}

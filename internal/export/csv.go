package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

// Header is the first row of every export.
var Header = []string{"Time(s)", "DeviceTs(ms)", "X(g)", "Y(g)", "Z(g)"}

// CSVWriter writes samples as CSV rows: time and accelerations with four
// decimals, device timestamp as an integer.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
	rows        int
}

// NewCSVWriter creates a CSVWriter writing to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write appends one sample, writing the header first if needed.
func (c *CSVWriter) Write(s *stream.Sample) error {
	if !c.wroteHeader {
		if err := c.w.Write(Header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		c.wroteHeader = true
	}

	record := []string{
		formatFloat(s.T),
		strconv.FormatUint(s.DeviceTimestampMs, 10),
		formatFloat(s.X),
		formatFloat(s.Y),
		formatFloat(s.Z),
	}
	if err := c.w.Write(record); err != nil {
		return fmt.Errorf("writing sample %d: %w", s.Index, err)
	}
	c.rows++

	return nil
}

// Rows returns the number of samples written.
func (c *CSVWriter) Rows() int {
	return c.rows
}

// Flush writes the header if nothing was written yet, then flushes buffered rows.
func (c *CSVWriter) Flush() error {
	if !c.wroteHeader {
		if err := c.w.Write(Header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		c.wroteHeader = true
	}

	c.w.Flush()
	return c.w.Error()
}

// WriteSamples writes samples to w as a complete CSV document.
func WriteSamples(w io.Writer, samples []stream.Sample) error {
	c := NewCSVWriter(w)
	for i := range samples {
		if err := c.Write(&samples[i]); err != nil {
			return err
		}
	}
	return c.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

package app

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
)

// PlotPeaks saves a chart of the dominant frequency over session time. live
// holds the spectra recorded while receiving; they are drawn as points on top
// of the offline analysis. The file format follows the extension of path.
func PlotPeaks(path string, spec *Spectrogram, live []*spectrum.Spectrum) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Dominant frequency, %s axis", spec.Axis)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Frequency (Hz)"
	p.Y.Min = 0
	p.Y.Max = spec.SampleRate / 2
	p.Add(plotter.NewGrid())

	if len(spec.Peaks) > 0 {
		pts := make(plotter.XYs, len(spec.Peaks))
		for i, peak := range spec.Peaks {
			pts[i] = plotter.XY{X: peak.Time, Y: peak.Frequency}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("creating peak line: %w", err)
		}
		line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		line.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(fmt.Sprintf("offline (fft %d, hop %d)", spec.FFTSize, spec.Hop), line)
	}

	pts := make(plotter.XYs, 0, len(live))
	for _, sp := range live {
		if sp.Axis != spec.Axis {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(sp.SampleIndex) / spec.SampleRate, Y: sp.PeakFrequency})
	}
	if len(pts) > 0 {
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("creating live peak points: %w", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(1.5)

		p.Add(scatter)
		p.Legend.Add("recorded live", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving peak chart: %w", err)
	}
	return nil
}

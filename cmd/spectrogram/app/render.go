package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 80.0
	labelsPerTime  = 8

	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the spectrogram
type BorderConfig struct {
	Top    int // Space for frequency scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for spectrogram visualization
type RenderConfig struct {
	DatetimeFormat string
	Location       *time.Location

	FontSize     float64
	ColorTheme   ColorTheme
	ColorMapSize int // 0 for the default
	Scale        int // Pixels per bin and per row
	NoAnnotation bool

	BorderConfig BorderConfig
}

// SpectrogramRenderer draws a Spectrogram as an image, with frequency on the
// horizontal axis and time growing downwards.
type SpectrogramRenderer struct {
	config RenderConfig
}

func NewSpectrogramRenderer(config RenderConfig) *SpectrogramRenderer {
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.Scale <= 0 {
		config.Scale = 1
	}

	if config.NoAnnotation {
		config.BorderConfig = BorderConfig{}
	} else {
		b := &config.BorderConfig
		if b.Top == 0 {
			b.Top = defaultTopBorder
		}
		if b.Left == 0 {
			b.Left = defaultLeftBorder
		}
		if b.Bottom == 0 {
			b.Bottom = defaultBottomBorder
		}
		if b.Right == 0 {
			b.Right = defaultRightBorder
		}
	}

	return &SpectrogramRenderer{config: config}
}

// Render creates an image of the spectrogram, annotated unless disabled.
// startTime is the wall clock time of session time zero.
func (r *SpectrogramRenderer) Render(spec *Spectrogram, startTime time.Time) (*image.RGBA, error) {
	if spec.Height == 0 || spec.Width <= 0 {
		return nil, fmt.Errorf("spectrogram is empty")
	}

	b := r.config.BorderConfig
	scale := r.config.Scale

	area := image.Rect(b.Left, b.Top, b.Left+spec.Width*scale, b.Top+spec.Height*scale)
	img := image.NewRGBA(image.Rect(0, 0, area.Max.X+b.Right, area.Max.Y+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	if !r.config.NoAnnotation {
		ann, err := newAnnotator(r.config, area, scale)
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, spec, startTime); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	size := r.config.ColorMapSize
	if size == 0 {
		size = DefaultColorMapSize
	}
	r.renderLevels(img, area, spec, NewColorMapperWithSize(r.config.ColorTheme, spec.BoundsTracker.Current(), size))

	return img, nil
}

func (r *SpectrogramRenderer) renderLevels(img *image.RGBA, area image.Rectangle, spec *Spectrogram, cm *ColorMapper) {
	scale := r.config.Scale
	for y, row := range spec.Rows {
		for x, level := range row {
			cell := image.Rect(
				area.Min.X+x*scale, area.Min.Y+y*scale,
				area.Min.X+(x+1)*scale, area.Min.Y+(y+1)*scale,
			)
			draw.Draw(img, cell, image.NewUniform(cm.Color(level)), image.Point{}, draw.Src)
		}
	}
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	config   RenderConfig
	area     image.Rectangle
	scale    int
}

func newAnnotator(config RenderConfig, area image.Rectangle, scale int) (*annotator, error) {
	parsedFont, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
		config: config,
		area:   area,
		scale:  scale,
	}, nil
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) annotate(img *image.RGBA, spec *Spectrogram, startTime time.Time) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, spec); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, spec); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, spec, startTime); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) fontHeight() int {
	m := a.fontFace.Metrics()
	return (m.Ascent + m.Descent).Round()
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, spec *Spectrogram) error {
	step := niceStep(spec.FrequencyMax-spec.FrequencyMin, float64(a.area.Dx())/pixelsPerLabel)
	textY := a.area.Min.Y - tickMarkLength - a.fontHeight()/2

	for freq := math.Ceil(spec.FrequencyMin/step) * step; freq <= spec.FrequencyMax; freq += step {
		// Bin k covers pixels [(k-1)*scale, k*scale) since bin 0 is not drawn.
		x := a.area.Min.X + int((freq/spec.Resolution-1)*float64(a.scale)) + a.scale/2

		for y := a.area.Min.Y - tickMarkLength; y < a.area.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(freq)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, spec *Spectrogram) error {
	duration := spec.TimeEnd - spec.TimeStart
	step := niceStep(duration, labelsPerTime)
	if duration == 0 {
		step = 1
	}

	pixelsPerSecond := spec.RowsPerSecond() * float64(a.scale)
	metrics := a.fontFace.Metrics()

	for t := math.Ceil(spec.TimeStart/step) * step; t <= spec.TimeEnd; t += step {
		y := a.area.Min.Y + int((t-spec.TimeStart)*pixelsPerSecond)

		for x := a.area.Min.X - tickMarkLength; x < a.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatSeconds(t)
		width := font.MeasureString(a.fontFace, label).Round()
		textY := y + a.fontHeight()/2 - metrics.Descent.Round()
		if _, err := a.context.DrawString(label, freetype.Pt(a.area.Min.X-tickMarkLength-4-width, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, spec *Spectrogram, startTime time.Time) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Axis: %s; ", spec.Axis))
	sb.WriteString(fmt.Sprintf("Freq: %s - %s; ", formatFrequency(spec.FrequencyMin), formatFrequency(spec.FrequencyMax)))
	if !startTime.IsZero() {
		sb.WriteString(fmt.Sprintf("Start: %s; ", startTime.In(a.config.Location).Format(a.config.DatetimeFormat)))
	}
	sb.WriteString(fmt.Sprintf("Time: %s - %s; ", formatSeconds(spec.TimeStart), formatSeconds(spec.TimeEnd)))
	sb.WriteString(fmt.Sprintf("FFT %d, hop %d; 1px = %s", spec.FFTSize, spec.Hop, formatFrequency(spec.Resolution/float64(a.scale))))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.config.BorderConfig.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(a.area.Min.X, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// niceStep returns a 1, 2 or 5 times power of ten step that divides span into
// at most labels intervals.
func niceStep(span, labels float64) float64 {
	if span <= 0 || labels < 1 {
		return math.Max(span, 1)
	}

	rough := span / labels
	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= rough {
			return step
		}
	}
	return 10 * magnitude
}

func formatFrequency(hz float64) string {
	return humanize.SIWithDigits(hz, 2, "Hz")
}

func formatSeconds(s float64) string {
	return humanize.FtoaWithDigits(s, 2) + " s"
}

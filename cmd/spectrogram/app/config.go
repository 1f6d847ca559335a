package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	FFTSize       int            // 0 uses the recorded session setting
	Hop           int            // 0 uses half the FFT size
	Axis          *spectrum.Axis // Nil uses the recorded session setting
	FromIndex     *uint64
	ToIndex       *uint64
	MinLevel      *float64 // dB re 1 g
	MaxLevel      *float64 // dB re 1 g
	Scale         int
	PlotFile      string
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    EnhancedTheme,
		TimeZone: time.Local,
		Scale:    2,
	}
}

// NewConfigFromArgs parses command line arguments, without the program name.
func NewConfigFromArgs(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("spectrogram", flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, theme, axis, timeZone string
	var minLevel, maxLevel float64
	var fromIndex, toIndex uint64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(EnhancedTheme), fmt.Sprintf("Color theme. [%s]", strings.Join(ColorThemes(), ", ")))
	fs.StringVar(&timeZone, "tz", "Local", "Time zone of the session start time")
	fs.IntVar(&c.FFTSize, "fft", 0, "FFT size, a power of two (default: the session setting)")
	fs.IntVar(&c.Hop, "hop", 0, "Samples between rows (default: half the FFT size)")
	fs.StringVar(&axis, "axis", "", "Analyzed axis. [x, y, z] (default: the session setting)")
	fs.Uint64Var(&fromIndex, "from", 0, "First sample index to analyze")
	fs.Uint64Var(&toIndex, "to", 0, "Last sample index to analyze")
	fs.Float64Var(&minLevel, "min-level", 0, "Define a manual minimum level in dB (format nn.n)")
	fs.Float64Var(&maxLevel, "max-level", 0, "Define a manual maximum level in dB (format nn.n)")
	fs.IntVar(&c.Scale, "scale", c.Scale, "Pixels per frequency bin and per row")
	fs.StringVar(&c.PlotFile, "plot", "", "Also save a dominant frequency chart to this file (.png, .svg, .pdf)")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var errs []error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-level":
			c.MinLevel = &minLevel
		case "max-level":
			c.MaxLevel = &maxLevel
		case "from":
			c.FromIndex = &fromIndex
		case "to":
			c.ToIndex = &toIndex
		case "axis":
			a, err := spectrum.ParseAxis(axis)
			if err != nil {
				errs = append(errs, err)
				return
			}
			c.Axis = &a
		}
	})

	imageFormat = strings.ToLower(imageFormat)

	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.SessionID <= 0 {
		errs = append(errs, errors.New("session id is required"))
	}
	if c.OutputFile == "" {
		errs = append(errs, errors.New("output file is required"))
	}
	if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		errs = append(errs, fmt.Errorf("invalid image format: %s", imageFormat))
	}
	if c.FFTSize != 0 && !spectrum.IsPowerOfTwo(c.FFTSize) {
		errs = append(errs, fmt.Errorf("fft size %d: %w", c.FFTSize, spectrum.ErrInvalidFFTSize))
	}
	if c.Hop < 0 {
		errs = append(errs, fmt.Errorf("hop must not be negative, got %d", c.Hop))
	}
	if c.Scale <= 0 {
		errs = append(errs, fmt.Errorf("scale must be positive, got %d", c.Scale))
	}
	if c.FromIndex != nil && c.ToIndex != nil && *c.FromIndex > *c.ToIndex {
		errs = append(errs, fmt.Errorf("sample range %d..%d is empty", *c.FromIndex, *c.ToIndex))
	}
	if c.MinLevel != nil && c.MaxLevel != nil && *c.MinLevel >= *c.MaxLevel {
		errs = append(errs, fmt.Errorf("min level %v must be below max level %v", *c.MinLevel, *c.MaxLevel))
	}

	var err error
	if c.Theme, err = ParseColorTheme(theme); err != nil {
		errs = append(errs, err)
	}
	if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
		errs = append(errs, fmt.Errorf("loading time zone: %w", err))
	}

	if len(errs) > 0 {
		fs.Usage()
		return nil, errors.Join(errs...)
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

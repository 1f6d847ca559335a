package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/saikumarpv2643/smart-accelerometer/internal/storage"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

// boundsSmoothing is the weight of the newest percentile bounds.
const boundsSmoothing = 0.3

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	session, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}

	settings, err := analysisSettings(session, config)
	if err != nil {
		return err
	}

	logger.Info("session",
		slog.Int64("id", session.ID),
		slog.String("device", session.Device),
		slog.String("start", session.StartTime.In(config.TimeZone).Format(time.DateTime)),
		slog.String("axis", settings.Axis.String()),
		slog.Int("fftSize", settings.FFTSize),
		slog.Int("hop", settings.Hop),
	)

	spec, err := buildSpectrogram(ctx, store, config, settings, logger)
	if err != nil {
		return err
	}

	bounds := spec.BoundsTracker.Current()
	logger.Info("finished analysis",
		slog.Group("stats",
			slog.Int("rows", spec.Height),
			slog.String("start", formatSeconds(spec.TimeStart)),
			slog.String("end", formatSeconds(spec.TimeEnd)),
			slog.String("resolution", formatFrequency(spec.Resolution)),
			slog.String("minLevel", fmt.Sprintf("%0.1fdB", bounds.Min)),
			slog.String("maxLevel", fmt.Sprintf("%0.1fdB", bounds.Max)),
		))

	renderer := NewSpectrogramRenderer(RenderConfig{
		Location:     config.TimeZone,
		ColorTheme:   config.Theme,
		Scale:        config.Scale,
		NoAnnotation: config.NoAnnotations,
	})

	img, err := renderer.Render(spec, session.StartTime)
	if err != nil {
		return fmt.Errorf("rendering spectrogram: %w", err)
	}

	logger.Info("writing spectrogram",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	if err = writeImage(config.OutputFile, config.Format, img); err != nil {
		return err
	}

	if config.PlotFile == "" {
		return nil
	}

	live, err := store.Spectra(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("reading recorded spectra: %w", err)
	}

	logger.Info("writing peak chart", slog.String("destination", config.PlotFile), slog.Int("recorded", len(live)))
	return PlotPeaks(config.PlotFile, spec, live)
}

// analysis holds the parameters of the offline analysis.
type analysis struct {
	stream.Config
	Hop int
}

// analysisSettings merges the recorded stream configuration of the session
// with the command line overrides.
func analysisSettings(session *storage.Session, config *Config) (analysis, error) {
	settings := analysis{Config: stream.DefaultConfig()}

	if session.Config != nil {
		if err := json.Unmarshal([]byte(*session.Config), &settings.Config); err != nil {
			return analysis{}, fmt.Errorf("reading session config: %w", err)
		}
	}

	if config.FFTSize > 0 {
		settings.FFTSize = config.FFTSize
	}
	if config.Axis != nil {
		settings.Axis = *config.Axis
	}
	if err := settings.Validate(); err != nil {
		return analysis{}, err
	}

	settings.Hop = config.Hop
	if settings.Hop == 0 {
		settings.Hop = max(settings.FFTSize/2, 1)
	}

	return settings, nil
}

func buildSpectrogram(ctx context.Context, store *storage.SqliteStore, config *Config, settings analysis, logger *slog.Logger) (*Spectrogram, error) {
	var opts []storage.ReaderOption
	if config.FromIndex != nil || config.ToIndex != nil {
		from, to := uint64(0), uint64(math.MaxInt64)
		if config.FromIndex != nil {
			from = *config.FromIndex
		}
		if config.ToIndex != nil {
			to = *config.ToIndex
		}
		opts = append(opts, storage.WithIndexRange(from, to))
		logger.Info("sample range", slog.Uint64("from", from), slog.Uint64("to", to))
	}

	bounds := NewSmoothBounds(boundsSmoothing)
	bounds.Fix(config.MinLevel, config.MaxLevel)

	builder, err := NewSpectrogramBuilder(settings.Axis, settings.FFTSize, settings.Hop, settings.SampleRate, bounds)
	if err != nil {
		return nil, err
	}

	iter, err := store.ReadSamples(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	logger.Info("reading samples")

	var n uint64
	for iter.Next(ctx) {
		if err = builder.Add(iter.Current()); err != nil {
			return nil, err
		}
		if n++; n%100_000 == 0 {
			logger.Debug("progress", slog.String("samples", humanize.Comma(int64(n))))
		}
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}

	spec := builder.Spectrogram()
	if spec.Height == 0 {
		return nil, fmt.Errorf("session %d has %d samples in range, at least %d are needed: %w",
			config.SessionID, n, settings.FFTSize, storage.ErrNoData)
	}

	return spec, nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	switch format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	return nil
}

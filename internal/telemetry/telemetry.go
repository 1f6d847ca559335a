package telemetry

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

// DefaultInterval is the reporting cadence used when none is configured.
const DefaultInterval = 2 * time.Second

// Provider supplies snapshots of the stream counters.
type Provider interface {
	Stats() stream.Stats
}

// WithLogger sets the logger for the reporter
func WithLogger(logger *slog.Logger) func(r *Reporter) {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// WithInterval sets the reporting interval
func WithInterval(d time.Duration) func(r *Reporter) {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// Reporter periodically logs the counters of a Provider. It only reads
// snapshots, so a slow log sink never holds up ingestion.
type Reporter struct {
	provider Provider
	interval time.Duration
	logger   *slog.Logger
}

func NewReporter(provider Provider, options ...func(r *Reporter)) *Reporter {
	r := Reporter{
		provider: provider,
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Run logs a snapshot every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs one snapshot.
func (r *Reporter) Report() {
	r.logger.Info("stream stats", Attrs(r.provider.Stats())...)
}

// Attrs renders stats as log attributes with human readable values.
func Attrs(s stream.Stats) []any {
	attrs := []any{
		slog.String("format", s.Format.String()),
		slog.String("samples", humanize.Comma(int64(s.SampleCount))),
		slog.String("dropped", humanize.Comma(int64(s.DroppedSamples))),
		slog.String("packets", humanize.Comma(int64(s.Packets))),
		slog.String("rejected", humanize.Comma(int64(s.RejectedPackets))),
	}

	if s.EffectiveSampleRate > 0 {
		attrs = append(attrs, slog.String("rate", humanize.SIWithDigits(s.EffectiveSampleRate, 1, "Hz")))
	}

	if s.LatencyCount > 0 {
		attrs = append(attrs, slog.Group("latency",
			slog.Duration("current", s.LatencyCurrent),
			slog.Duration("mean", s.LatencyMean.Round(100*time.Microsecond)),
			slog.Duration("max", s.LatencyMax),
		))
	}

	return attrs
}

// LossRatio returns the fraction of expected samples that never arrived.
func LossRatio(s stream.Stats) float64 {
	expected := s.SampleCount + s.DroppedSamples
	if expected == 0 {
		return 0
	}
	return float64(s.DroppedSamples) / float64(expected)
}

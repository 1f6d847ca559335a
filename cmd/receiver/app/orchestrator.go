package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
	"github.com/saikumarpv2643/smart-accelerometer/internal/telemetry"
	"github.com/saikumarpv2643/smart-accelerometer/internal/transport"
)

// notificationBuffer absorbs short stalls of the consumer, e.g. a slow
// storage transaction, without blocking the transport.
const notificationBuffer = 256

// Recorder persists a session. It is satisfied by storage.SqliteStore.
type Recorder interface {
	CreateSession(ctx context.Context, device string, startTime time.Time, config any) (int64, string, error)
	StoreSamples(ctx context.Context, sessionID int64, samples []stream.Sample) error
	StoreSpectrum(ctx context.Context, sessionID int64, sp *spectrum.Spectrum) error
	FinishSession(ctx context.Context, sessionID int64, endTime time.Time, stats stream.Stats) error
}

// WithMaxBatchSize sets the maximum batch size of collected samples to store
// within a single database transaction.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		if size > 0 {
			o.maxBatchSize = size
		}
	}
}

// WithRecorder sets where the session is recorded
func WithRecorder(r Recorder) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithStatsInterval sets how often stream stats are logged
func WithStatsInterval(d time.Duration) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.statsInterval = d
	}
}

// WithCSVExport writes the retained samples to a CSV file on shutdown
func WithCSVExport(path string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.csvPath = path
	}
}

// Orchestrator feeds the notifications of a device into a stream session, in
// arrival order, and records the resulting samples and spectra.
type Orchestrator struct {
	device     *transport.Device
	sourceName string
	session    *stream.Session
	recorder   Recorder
	logger     *slog.Logger

	sessionID     int64
	pending       []stream.Sample
	maxBatchSize  int
	statsInterval time.Duration
	csvPath       string
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(device *transport.Device, sourceName string, session *stream.Session, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		device:       device,
		sourceName:   sourceName,
		session:      session,
		logger:       logger,
		maxBatchSize: defaultMaxBatchSize,
	}

	for _, option := range options {
		option(&o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &o
}

// Run starts the session and processes notifications until the stream ends
// or ctx is cancelled. It then flushes and finishes the recording. The error
// of a failed stream is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.session.Start()
	defer o.session.Stop()

	startTime := time.Now()
	if o.recorder != nil {
		id, key, err := o.recorder.CreateSession(ctx, o.sourceName, startTime, o.session.Config())
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		o.sessionID = id
		o.logger.Info("recording session", slog.Int64("id", id), slog.String("key", key))
	}

	notifications := make(chan transport.Notification, notificationBuffer)
	done, err := o.device.BeginSampling(ctx, notifications)
	if err != nil {
		return fmt.Errorf("starting device: %w", err)
	}

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()

	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		telemetry.NewReporter(o.session,
			telemetry.WithLogger(o.logger),
			telemetry.WithInterval(o.statsInterval),
		).Run(reporterCtx)
	}()

	// Only this goroutine calls IngestAt, so packets are processed in arrival order.
	var streamErr error
loop:
	for {
		select {
		case n := <-notifications:
			o.handleNotification(ctx, n)

		case err, ok := <-done:
			if ok {
				streamErr = err
			}

			for {
				select {
				case n := <-notifications:
					o.handleNotification(ctx, n)
				default:
					break loop
				}
			}
		}
	}
	stopReporter()
	<-reporterDone

	// ctx may be cancelled already, the recording must still be completed.
	return errors.Join(streamErr, o.shutdown(context.WithoutCancel(ctx)))
}

func (o *Orchestrator) handleNotification(ctx context.Context, n transport.Notification) {
	update, err := o.session.IngestAt(n.Data, n.ReceivedAt)
	if err != nil {
		return // malformed packets are counted and logged by the session
	}

	if o.recorder == nil {
		return
	}

	o.pending = append(o.pending, update.Samples...)
	if len(o.pending) >= o.maxBatchSize {
		if err = o.flush(ctx); err != nil {
			o.logger.Error(err.Error())
		}
	}

	if sp := update.Spectrum; sp != nil {
		o.logger.Debug("spectrum",
			slog.String("axis", sp.Axis.String()),
			slog.String("peak", humanize.SIWithDigits(sp.PeakFrequency, 2, "Hz")),
			slog.Float64("magnitude", sp.PeakMagnitude),
		)

		if err = o.recorder.StoreSpectrum(ctx, o.sessionID, sp); err != nil {
			o.logger.Error(fmt.Sprintf("storing spectrum: %s", err.Error()))
		}
	}
}

// flush stores the pending samples, one transaction per batch. Samples of a
// failed batch are dropped.
func (o *Orchestrator) flush(ctx context.Context) error {
	defer func() { o.pending = o.pending[:0] }()

	for chunk := range slices.Chunk(o.pending, o.maxBatchSize) {
		if err := o.recorder.StoreSamples(ctx, o.sessionID, chunk); err != nil {
			return fmt.Errorf("storing samples: %w", err)
		}
	}

	return nil
}

func (o *Orchestrator) shutdown(ctx context.Context) error {
	stats := o.session.Stats()
	o.logger.Info("stream finished", telemetry.Attrs(stats)...)

	if loss := telemetry.LossRatio(stats); loss > 0 {
		o.logger.Warn(fmt.Sprintf("%s%% of the expected samples were lost", humanize.FtoaWithDigits(loss*100, 2)))
	}

	var errs []error

	if o.recorder != nil {
		if len(o.pending) > 0 {
			if err := o.flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		if err := o.recorder.FinishSession(ctx, o.sessionID, time.Now(), stats); err != nil {
			errs = append(errs, fmt.Errorf("finishing session: %w", err))
		}
	}

	if o.csvPath != "" {
		samples := o.session.Samples()
		if err := exportCSV(o.csvPath, samples); err != nil {
			errs = append(errs, err)
		} else {
			o.logger.Info("exported samples", slog.String("path", o.csvPath), slog.String("rows", humanize.Comma(int64(len(samples)))))
		}
	}

	return errors.Join(errs...)
}

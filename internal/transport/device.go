package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// scannerBufferSize bounds the bytes buffered while looking for a frame.
const scannerBufferSize = 64 * 1024

// ErrBrokenPipe is returned when the frame stream fails before it ends
var ErrBrokenPipe = errors.New("broken pipe")

// Notification is one characteristic value as delivered by the transport.
type Notification struct {
	Data       []byte
	ReceivedAt time.Time
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(slog.String("source", d.source.Name()))
	}
}

// WithRecorder tees every received frame into w, producing a capture that
// ReplaySource can read back.
func WithRecorder(w io.Writer) func(d *Device) {
	return func(d *Device) {
		d.recorder = w
	}
}

// WithClock sets the time source used to stamp notifications
func WithClock(now func() time.Time) func(d *Device) {
	return func(d *Device) {
		d.now = now
	}
}

// Device delivers the notifications of a Source in arrival order. It can be
// started and stopped.
type Device struct {
	source Source

	isSampling atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	recorder io.Writer
	now      func() time.Time
	logger   *slog.Logger
}

// NewDevice creates a new Device instance with a discard logger
func NewDevice(source Source, options ...func(d *Device)) *Device {
	d := Device{
		source: source,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// BeginSampling opens the source and sends notifications to out until the
// stream ends or Stop is called. The returned channel is closed when delivery
// stops, after carrying the joined errors if there were any. out is never closed.
func (d *Device) BeginSampling(ctx context.Context, out chan<- Notification) (<-chan error, error) {
	if !d.isSampling.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("device is already running")
	}

	ctx, d.cancel = context.WithCancel(ctx)

	rc, err := d.source.Open(ctx)
	if err != nil {
		d.cancel()
		d.isSampling.Store(false) // Reset running state on error
		return nil, fmt.Errorf("error opening %s: %w", d.source.Name(), err)
	}

	samplingStopped := make(chan error, 1)

	d.wg.Add(1)
	go func() {
		defer close(samplingStopped)
		defer d.wg.Done()

		d.logger.Info("starting notification stream...")

		var once sync.Once
		var closeErr error
		closeStream := func() {
			once.Do(func() { closeErr = rc.Close() })
		}

		streamEnded := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				closeStream() // unblocks a pending Read
			case <-streamEnded:
			}
		}()

		var errs []error

		err := d.handleStream(ctx, rc, out)
		close(streamEnded)

		cancelled := ctx.Err() != nil
		if err != nil && !cancelled {
			d.logger.Error(err.Error())
			errs = append(errs, err)
		}

		closeStream()
		if closeErr != nil && !cancelled {
			d.logger.Error(closeErr.Error())
			errs = append(errs, closeErr)
		}

		d.cancel()
		d.isSampling.Store(false)

		d.logger.Info("notification stream stopped")

		if len(errs) > 0 {
			samplingStopped <- errors.Join(errs...)
		}
	}()

	return samplingStopped, nil
}

// Stop cancels the stream and waits for delivery to end.
func (d *Device) Stop() {
	if !d.isSampling.Load() {
		return // already stopped
	}

	d.cancel()
	d.wg.Wait()
}

// IsSampling returns true if the device is running
func (d *Device) IsSampling() bool {
	return d.isSampling.Load()
}

// handleStream splits the stream into frames and sends them to out.
func (d *Device) handleStream(ctx context.Context, r io.Reader, out chan<- Notification) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), scannerBufferSize)
	scanner.Split(SplitFrames)

	for scanner.Scan() {
		n := Notification{
			Data:       bytes.Clone(scanner.Bytes()),
			ReceivedAt: d.now(),
		}

		if d.recorder != nil {
			if err := EncodeFrame(d.recorder, n.Data); err != nil {
				d.logger.Warn("error recording frame", slog.String("error", err.Error()))
			}
		}

		select {
		case out <- n:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("%w: error reading stream: %w", ErrBrokenPipe, err)
	}

	return nil
}

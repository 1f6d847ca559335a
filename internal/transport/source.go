package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Source opens a byte stream of frames.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// PortOptions describes the serial connection to a bridge.
type PortOptions struct {
	BaudRate int    `yaml:"baudRate"`
	DataBits int    `yaml:"dataBits"`
	StopBits int    `yaml:"stopBits"`
	Parity   string `yaml:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 921600
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}

	return &mode, nil
}

// SerialSource reads frames from a bridge attached to a serial port.
type SerialSource struct {
	Path    string
	Options PortOptions
}

func (s *SerialSource) Name() string {
	return "serial:" + s.Path
}

func (s *SerialSource) Open(_ context.Context) (io.ReadCloser, error) {
	mode, err := s.Options.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("serial port %s: %w", s.Path, err)
	}

	port, err := serial.Open(s.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", s.Path, err)
	}

	return port, nil
}

// CommandSource runs a bridge program and reads frames from its stdout.
// Lines written to stderr are logged as warnings. The GATT identifiers of the
// sensor are passed to the bridge in its environment, see BridgeEnv.
type CommandSource struct {
	Command string
	Args    []string
	Logger  *slog.Logger
}

func (s *CommandSource) Name() string {
	return "command:" + s.Command
}

func (s *CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Env = append(os.Environ(), BridgeEnv()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := commandReader{
		ReadCloser: stdout,
		ctx:        ctx,
		cmd:        cmd,
		stderrDone: make(chan struct{}),
	}
	go r.handleStderr(stderr, logger)

	return &r, nil
}

type commandReader struct {
	io.ReadCloser

	ctx        context.Context
	cmd        *exec.Cmd
	stderrDone chan struct{}

	once sync.Once
	err  error
}

// handleStderr reads from stderr and logs it.
func (r *commandReader) handleStderr(stderr io.Reader, logger *slog.Logger) {
	defer close(r.stderrDone)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		logger.Warn(fmt.Sprintf("%s >> %s", r.cmd.Path, line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		logger.Error("error reading stderr", slog.String("error", err.Error()))
	}
}

// Close closes stdout, which unblocks a pending Read, and waits for the
// command to exit. Wait runs only after both pipes are drained or closed. An
// exit caused by context cancellation is not an error.
func (r *commandReader) Close() error {
	r.once.Do(func() {
		_ = r.ReadCloser.Close()
		<-r.stderrDone
		if err := r.cmd.Wait(); err != nil && r.ctx.Err() == nil {
			r.err = fmt.Errorf("command exited with error: %w", err)
		}
	})
	return r.err
}

// ReplaySource reads frames from a capture file written with a recorder. With a
// positive Interval the frames are re-emitted one per Interval.
type ReplaySource struct {
	Path     string
	Interval time.Duration
}

func (s *ReplaySource) Name() string {
	return "replay:" + s.Path
}

func (s *ReplaySource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}

	if s.Interval <= 0 {
		return f, nil
	}

	pr, pw := io.Pipe()
	go func() {
		defer f.Close()

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		scanner := bufio.NewScanner(f)
		scanner.Split(SplitFrames)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-ticker.C:
			}

			if err := EncodeFrame(pw, scanner.Bytes()); err != nil {
				pw.CloseWithError(err)
				return
			}
		}

		pw.CloseWithError(scanner.Err()) // nil error closes with io.EOF
	}()

	return pr, nil
}

package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/saikumarpv2643/smart-accelerometer/internal/packet"
	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
)

// effectiveRateMinElapsed is how long a session has to run before the
// effective sample rate is reported.
const effectiveRateMinElapsed = 500 * time.Millisecond

// ErrSessionStopped is returned by Ingest when the session has not been started.
var ErrSessionStopped = errors.New("session is stopped")

// Stats is a snapshot of the session counters.
type Stats struct {
	SampleCount         uint64        `json:"sampleCount"`
	DroppedSamples      uint64        `json:"droppedSamples"`
	LatencyCurrent      time.Duration `json:"latencyCurrent"`
	LatencyMean         time.Duration `json:"latencyMean"`
	LatencyMax          time.Duration `json:"latencyMax"`
	LatencyCount        int           `json:"latencyCount"`
	EffectiveSampleRate float64       `json:"effectiveSampleRate"` // 0 until the session ran for half a second
	Packets             uint64        `json:"packets"`
	RejectedPackets     uint64        `json:"rejectedPackets"`
	Format              packet.Format `json:"format"` // Format of the most recent packet
	Resolution          float64       `json:"resolution"`
	Elapsed             time.Duration `json:"elapsed"`
}

// Update is the result of ingesting one packet.
type Update struct {
	Samples  []Sample           // Samples appended by this packet
	Stats    Stats              // Counters after the packet
	Spectrum *spectrum.Spectrum // Non-nil when the packet triggered an analysis
}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClock sets the time source used for receipt times and elapsed time
func WithClock(now func() time.Time) func(s *Session) {
	return func(s *Session) {
		s.now = now
	}
}

// Session owns all per-session stream state. Every packet is processed under a
// single lock, so the unwrap, continuity, latency and store updates of one
// packet are never interleaved with another.
type Session struct {
	mu sync.Mutex

	cfg     Config
	decoder *packet.Decoder
	logger  *slog.Logger
	now     func() time.Time

	running   bool
	startedAt time.Time

	unwrapper   TimestampUnwrapper
	continuity  ContinuityTracker
	latency     LatencyEstimator
	store       *SampleStore
	lastBurstID int

	sampleCount uint64
	packets     uint64
	rejected    uint64
	format      packet.Format

	spectrum *spectrum.Spectrum
}

// NewSession creates a stopped session.
func NewSession(cfg Config, options ...func(s *Session)) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.WindowSeconds = ClampWindow(cfg.WindowSeconds)

	s := Session{
		cfg:         cfg,
		decoder:     packet.NewDecoder(packet.WithCRCVerification(cfg.VerifyCRC)),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		store:       NewSampleStore(cfg.FFTSize),
		lastBurstID: -1,
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// Start resets all stream state and begins accepting packets.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.running = true
	s.startedAt = s.now()

	s.logger.Info("session started",
		slog.Float64("sampleRate", s.cfg.SampleRate),
		slog.Int("fftSize", s.cfg.FFTSize),
		slog.String("axis", s.cfg.Axis.String()))
}

// Stop discards all stream state. Packets ingested afterwards are refused.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("session stopped",
		slog.Uint64("samples", s.sampleCount),
		slog.Uint64("dropped", s.continuity.Dropped()))

	s.reset()
	s.running = false
}

// Running reports whether the session accepts packets.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

func (s *Session) reset() {
	s.unwrapper.Reset()
	s.continuity.Reset()
	s.latency.Reset()
	s.store.Reset()
	s.lastBurstID = -1
	s.sampleCount = 0
	s.packets = 0
	s.rejected = 0
	s.format = packet.FormatUnknown
	s.spectrum = nil
	s.startedAt = time.Time{}
}

// Ingest processes one raw notification received now.
func (s *Session) Ingest(raw []byte) (*Update, error) {
	return s.IngestAt(raw, s.now())
}

// IngestAt processes one raw notification received at receivedAt. A malformed
// packet is counted and reported, and leaves the stream state untouched.
func (s *Session) IngestAt(raw []byte, receivedAt time.Time) (*Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSessionStopped
	}

	p, err := s.decoder.Decode(raw)
	if err != nil {
		s.rejected++
		s.logger.Warn("dropping packet", slog.Int("length", len(raw)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("decoding packet: %w", err)
	}

	s.packets++
	s.format = p.Format

	before := s.sampleCount
	modulus := p.Format.CounterModulus()
	appended := make([]Sample, 0, len(p.Samples))

	burstID := -1
	if p.Format == packet.FormatRev3 {
		burstID = int(p.BurstID)
	}

	for i, rs := range p.Samples {
		deviceMs := uint64(rs.Timestamp)
		if p.Format == packet.FormatRev3 {
			deviceMs = s.unwrapper.Unwrap(rs.Timestamp)
		}

		s.continuity.Observe(rs.Counter, modulus)

		sample := Sample{
			Index:             s.sampleCount,
			T:                 float64(s.sampleCount) / s.cfg.SampleRate,
			X:                 float64(rs.X) / s.cfg.LSBPerG,
			Y:                 float64(rs.Y) / s.cfg.LSBPerG,
			Z:                 float64(rs.Z) / s.cfg.LSBPerG,
			DeviceTimestampMs: deviceMs,
		}
		s.sampleCount++
		appended = append(appended, sample)

		if s.sampleCount == 1 || (p.Format == packet.FormatRev3 && burstID != s.lastBurstID) {
			s.latency.Anchor(deviceMs, receivedAt)
			s.lastBurstID = burstID
		}

		if i == len(p.Samples)-1 {
			s.latency.Observe(deviceMs, receivedAt)
		}
	}

	s.store.Append(appended...)
	s.store.Trim(retention(s.cfg.WindowSeconds, s.cfg.SampleRate, s.cfg.FFTSize))

	update := Update{Samples: appended}

	interval := uint64(s.cfg.AnalysisInterval)
	if before/interval != s.sampleCount/interval && s.store.Len() >= s.cfg.FFTSize {
		if sp, err := s.analyze(receivedAt); err != nil {
			s.logger.Warn("spectrum analysis failed", slog.String("error", err.Error()))
		} else {
			s.spectrum = sp
			update.Spectrum = sp
		}
	}

	update.Stats = s.stats(receivedAt)

	return &update, nil
}

func (s *Session) analyze(at time.Time) (*spectrum.Spectrum, error) {
	sp, err := spectrum.Analyze(s.store.AxisTail(s.cfg.Axis, s.cfg.FFTSize), s.cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	sp.Timestamp = at
	sp.Axis = s.cfg.Axis
	sp.SampleIndex = s.sampleCount - 1

	return sp, nil
}

// SetAxis selects the axis fed to subsequent analyses. An unknown axis is
// refused and the current one is kept.
func (s *Session) SetAxis(axis spectrum.Axis) error {
	if !axis.Valid() {
		return fmt.Errorf("setting axis %d: %w", axis, spectrum.ErrInvalidAxis)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.Axis = axis

	return nil
}

// SetFFTSize changes the transform length. An invalid size is refused and the
// current size and spectrum are kept.
func (s *Session) SetFFTSize(n int) error {
	if !spectrum.IsPowerOfTwo(n) {
		return fmt.Errorf("setting fft size %d: %w", n, spectrum.ErrInvalidFFTSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.FFTSize = n
	s.store.SetMinimum(n)

	return nil
}

// SetWindow changes the display window and returns the clamped value in effect.
func (s *Session) SetWindow(seconds float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.WindowSeconds = ClampWindow(seconds)
	s.store.Trim(retention(s.cfg.WindowSeconds, s.cfg.SampleRate, s.cfg.FFTSize))

	return s.cfg.WindowSeconds
}

// Config returns the configuration in effect.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg
}

// Samples returns a copy of the retained samples in time order.
func (s *Session) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Samples()
}

// Spectrum returns the most recent analysis result, or nil.
func (s *Session) Spectrum() *spectrum.Spectrum {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.spectrum
}

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats(s.now())
}

func (s *Session) stats(at time.Time) Stats {
	latency := s.latency.Stats()

	st := Stats{
		SampleCount:     s.sampleCount,
		DroppedSamples:  s.continuity.Dropped(),
		LatencyCurrent:  latency.Current,
		LatencyMean:     latency.Mean,
		LatencyMax:      latency.Max,
		LatencyCount:    latency.Count,
		Packets:         s.packets,
		RejectedPackets: s.rejected,
		Format:          s.format,
		Resolution:      spectrum.Resolution(s.cfg.SampleRate, s.cfg.FFTSize),
	}

	if s.running {
		st.Elapsed = at.Sub(s.startedAt)
		if st.Elapsed > effectiveRateMinElapsed {
			st.EffectiveSampleRate = float64(s.sampleCount) / st.Elapsed.Seconds()
		}
	}

	return st
}

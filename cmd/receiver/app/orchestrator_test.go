package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saikumarpv2643/smart-accelerometer/internal/packet"
	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
	"github.com/saikumarpv2643/smart-accelerometer/internal/storage"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
	"github.com/saikumarpv2643/smart-accelerometer/internal/transport"
)

type memoryRecorder struct {
	mu       sync.Mutex
	device   string
	config   any
	batches  [][]stream.Sample
	spectra  []*spectrum.Spectrum
	final    *stream.Stats
	storeErr error
}

func (r *memoryRecorder) CreateSession(_ context.Context, device string, _ time.Time, config any) (int64, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.device = device
	r.config = config
	return 7, "key", nil
}

func (r *memoryRecorder) StoreSamples(_ context.Context, sessionID int64, samples []stream.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != 7 {
		return errors.New("unexpected session")
	}
	if r.storeErr != nil {
		return r.storeErr
	}
	r.batches = append(r.batches, append([]stream.Sample(nil), samples...))
	return nil
}

func (r *memoryRecorder) StoreSpectrum(_ context.Context, _ int64, sp *spectrum.Spectrum) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spectra = append(r.spectra, sp)
	return nil
}

func (r *memoryRecorder) FinishSession(_ context.Context, _ int64, _ time.Time, stats stream.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.final = &stats
	return nil
}

func (r *memoryRecorder) samples() []stream.Sample {
	var out []stream.Sample
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

// writeCapture writes n simulated packets, with a malformed frame after the first one.
func writeCapture(t *testing.T, n int) string {
	t.Helper()

	sim := transport.SimulatorSource{
		SampleRate:  stream.DefaultSampleRate,
		FrequencyHz: 125,
		AmplitudeG:  0.5,
		LSBPerG:     stream.DefaultLSBPerG,
	}

	var buf bytes.Buffer
	for seq := range n {
		p, err := sim.Packet(seq)
		require.NoError(t, err)
		require.NoError(t, transport.EncodeFrame(&buf, p))

		if seq == 0 {
			require.NoError(t, transport.EncodeFrame(&buf, []byte{1, 2, 3}))
		}
	}

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func newTestOrchestrator(t *testing.T, capture string, options ...func(*Orchestrator)) *Orchestrator {
	t.Helper()

	session, err := stream.NewSession(stream.DefaultConfig())
	require.NoError(t, err)

	source := &transport.ReplaySource{Path: capture}
	return NewOrchestrator(transport.NewDevice(source), source.Name(), session, nil, options...)
}

func TestOrchestrator_Run(t *testing.T) {
	const packets = 50
	total := packets * packet.Rev3SamplesPerPacket

	recorder := &memoryRecorder{}
	csvPath := filepath.Join(t.TempDir(), "export", "samples.csv")

	o := newTestOrchestrator(t, writeCapture(t, packets),
		WithRecorder(recorder),
		WithMaxBatchSize(100),
		WithCSVExport(csvPath),
	)
	require.NoError(t, o.Run(context.Background()))

	assert.True(t, strings.HasPrefix(recorder.device, "replay:"))
	assert.IsType(t, stream.Config{}, recorder.config)

	stored := recorder.samples()
	require.Len(t, stored, total)
	for i, s := range stored {
		if s.Index != uint64(i) {
			t.Fatalf("sample %d stored with index %d", i, s.Index)
		}
	}
	for _, b := range recorder.batches {
		assert.LessOrEqual(t, len(b), 100)
	}

	require.NotNil(t, recorder.final)
	assert.Equal(t, uint64(total), recorder.final.SampleCount)
	assert.Zero(t, recorder.final.DroppedSamples)
	assert.Equal(t, uint64(packets), recorder.final.Packets)
	assert.Equal(t, uint64(1), recorder.final.RejectedPackets)

	require.NotEmpty(t, recorder.spectra)
	for _, sp := range recorder.spectra {
		assert.Equal(t, spectrum.AxisX, sp.Axis)
		assert.LessOrEqual(t, math.Abs(sp.PeakFrequency-125), sp.Resolution)
	}

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "Time(s),DeviceTs(ms),X(g),Y(g),Z(g)", lines[0])
	assert.Len(t, lines, 1020+1) // retained window plus header
}

func TestOrchestrator_WithoutRecorder(t *testing.T) {
	o := newTestOrchestrator(t, writeCapture(t, 5))
	require.NoError(t, o.Run(context.Background()))
	assert.Empty(t, o.pending)
}

func TestOrchestrator_StorageErrorsAreNotFatal(t *testing.T) {
	recorder := &memoryRecorder{storeErr: errors.New("disk I/O error")}

	o := newTestOrchestrator(t, writeCapture(t, 11), WithRecorder(recorder), WithMaxBatchSize(100))
	err := o.Run(context.Background())

	// only the final flush is reported, the stream itself completed
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk I/O error")
	require.NotNil(t, recorder.final)
	assert.Equal(t, uint64(264), recorder.final.SampleCount)
}

func TestOrchestrator_MissingCapture(t *testing.T) {
	o := newTestOrchestrator(t, filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, o.Run(context.Background()))
}

func TestOrchestrator_StopsOnCancel(t *testing.T) {
	cfg := stream.DefaultConfig()
	session, err := stream.NewSession(cfg)
	require.NoError(t, err)

	source := &transport.SimulatorSource{
		SampleRate:  cfg.SampleRate,
		FrequencyHz: 50,
		AmplitudeG:  0.25,
		LSBPerG:     cfg.LSBPerG,
	}
	recorder := &memoryRecorder{}
	o := NewOrchestrator(transport.NewDevice(source), source.Name(), session, nil, WithRecorder(recorder))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, o.Run(ctx))
	require.NotNil(t, recorder.final)
	assert.Positive(t, recorder.final.SampleCount)
	assert.Len(t, recorder.samples(), int(recorder.final.SampleCount))
	assert.False(t, session.Running())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestOrchestrator_StatsNotLoggedAfterFinish(t *testing.T) {
	cfg := stream.DefaultConfig()
	session, err := stream.NewSession(cfg)
	require.NoError(t, err)

	source := &transport.SimulatorSource{
		SampleRate:  cfg.SampleRate,
		FrequencyHz: 50,
		AmplitudeG:  0.25,
		LSBPerG:     cfg.LSBPerG,
	}

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	o := NewOrchestrator(transport.NewDevice(source), source.Name(), session, logger, WithStatsInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, o.Run(ctx))
	out := logs.String()

	finished := strings.Index(out, "msg=\"stream finished\"")
	require.GreaterOrEqual(t, finished, 0)
	assert.Less(t, strings.LastIndex(out, "msg=\"stream stats\""), finished)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, out, logs.String(), "nothing is logged once Run returns")
}

func TestCreateStorage(t *testing.T) {
	dir := t.TempDir()

	store, err := createStorage(&StorageConfig{Path: filepath.Join(dir, "sessions.db")})
	require.NoError(t, err)
	assert.IsType(t, &storage.SqliteStore{}, store)
	require.NoError(t, store.Close())

	_, err = createStorage(&StorageConfig{Path: filepath.Join(dir, "missing", "sessions.db")})
	assert.Error(t, err)
}

package stream

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saikumarpv2643/smart-accelerometer/internal/packet"
	"github.com/saikumarpv2643/smart-accelerometer/internal/spectrum"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// rev3 builds a Rev3 packet whose samples carry consecutive counters and timestamps.
func rev3(t *testing.T, burstID uint8, counter, ts uint32, axis func(i uint32) int16) []byte {
	t.Helper()

	samples := make([]packet.RawSample, packet.Rev3SamplesPerPacket)
	for i := range samples {
		n := uint32(i)
		samples[i] = packet.RawSample{
			Counter:   (counter + n) & 0xFFFF,
			Timestamp: (ts + n) & 0xFFFF,
			X:         2048,
			Y:         -1024,
		}
		if axis != nil {
			samples[i].Z = axis(counter + n)
		}
	}

	b, err := packet.EncodeRev3(burstID, samples)
	require.NoError(t, err)
	return b
}

func legacy(t *testing.T, counter, ts uint32, n int) []byte {
	t.Helper()

	samples := make([]packet.RawSample, n)
	for i := range samples {
		samples[i] = packet.RawSample{Counter: counter + uint32(i), Timestamp: ts + uint32(i), Z: 2048}
	}

	b, err := packet.EncodeLegacy(samples)
	require.NoError(t, err)
	return b
}

func newSession(t *testing.T, clock *fakeClock, mutate func(*Config)) *Session {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewSession(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return s
}

func TestSession_IngestStopped(t *testing.T) {
	s := newSession(t, newClock(), nil)

	_, err := s.Ingest(rev3(t, 1, 1, 0, nil))
	assert.ErrorIs(t, err, ErrSessionStopped)

	s.Start()
	s.Stop()

	_, err = s.Ingest(rev3(t, 1, 1, 0, nil))
	assert.ErrorIs(t, err, ErrSessionStopped)
	assert.False(t, s.Running())
}

func TestSession_IngestRev3(t *testing.T) {
	clock := newClock()
	s := newSession(t, clock, nil)
	s.Start()

	u, err := s.Ingest(rev3(t, 1, 1, 100, nil))
	require.NoError(t, err)
	require.Len(t, u.Samples, 24)

	first := u.Samples[0]
	assert.Equal(t, uint64(0), first.Index)
	assert.Equal(t, 0.0, first.T)
	assert.Equal(t, 1.0, first.X)
	assert.Equal(t, -0.5, first.Y)
	assert.Equal(t, uint64(100), first.DeviceTimestampMs)

	u, err = s.Ingest(rev3(t, 1, 25, 124, nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(24), u.Samples[0].Index)
	assert.InDelta(t, 0.024, u.Samples[0].T, 1e-12)

	st := u.Stats
	assert.Equal(t, uint64(48), st.SampleCount)
	assert.Zero(t, st.DroppedSamples)
	assert.Equal(t, uint64(2), st.Packets)
	assert.Equal(t, packet.FormatRev3, st.Format)
	assert.InDelta(t, 1000.0/512, st.Resolution, 1e-12)
	assert.Len(t, s.Samples(), 48)
}

func TestSession_DroppedSamples(t *testing.T) {
	s := newSession(t, newClock(), nil)
	s.Start()

	_, err := s.Ingest(rev3(t, 1, 1, 0, nil))
	require.NoError(t, err)

	// counters 25..29 never arrive
	u, err := s.Ingest(rev3(t, 1, 30, 29, nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), u.Stats.DroppedSamples)

	// a rewind is not counted as loss
	u, err = s.Ingest(rev3(t, 1, 1, 53, nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), u.Stats.DroppedSamples)
}

func TestSession_TimestampWrapAcrossPackets(t *testing.T) {
	s := newSession(t, newClock(), nil)
	s.Start()

	_, err := s.Ingest(rev3(t, 1, 1, 65530, nil))
	require.NoError(t, err)

	samples := s.Samples()
	assert.Equal(t, uint64(65530), samples[0].DeviceTimestampMs)
	assert.Equal(t, uint64(65536), samples[6].DeviceTimestampMs)
	assert.Equal(t, uint64(65553), samples[23].DeviceTimestampMs)
}

func TestSession_MalformedPacket(t *testing.T) {
	s := newSession(t, newClock(), nil)
	s.Start()

	_, err := s.Ingest(rev3(t, 1, 1, 0, nil))
	require.NoError(t, err)
	before := s.Samples()

	_, err = s.Ingest(make([]byte, 10))
	require.Error(t, err)
	assert.True(t, packet.IsMalformed(err))

	bad := make([]byte, 40)
	bad[0] = 11
	_, err = s.Ingest(bad)
	assert.ErrorIs(t, err, packet.ErrInvalidSampleCount)

	st := s.Stats()
	assert.Equal(t, uint64(24), st.SampleCount)
	assert.Equal(t, uint64(1), st.Packets)
	assert.Equal(t, uint64(2), st.RejectedPackets)
	assert.Equal(t, before, s.Samples())
}

func TestSession_VerifyCRC(t *testing.T) {
	s := newSession(t, newClock(), func(c *Config) { c.VerifyCRC = true })
	s.Start()

	b := rev3(t, 1, 1, 0, nil)
	_, err := s.Ingest(b)
	require.NoError(t, err)

	b = rev3(t, 1, 25, 24, nil)
	b[100] ^= 0x01
	_, err = s.Ingest(b)
	assert.ErrorIs(t, err, packet.ErrChecksumMismatch)
	assert.Equal(t, uint64(24), s.Stats().SampleCount)
}

func TestSession_LatencyRev3(t *testing.T) {
	clock := newClock()
	s := newSession(t, clock, nil)
	s.Start()

	// anchor at the first sample; last sample is 23 ms ahead of the anchor, so negative
	u, err := s.Ingest(rev3(t, 1, 1, 1000, nil))
	require.NoError(t, err)
	assert.Zero(t, u.Stats.LatencyCount)

	clock.Advance(60 * time.Millisecond)
	u, err = s.Ingest(rev3(t, 1, 25, 1024, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, u.Stats.LatencyCount)
	assert.Equal(t, 13*time.Millisecond, u.Stats.LatencyCurrent)

	// new burst re-anchors at its first sample
	clock.Advance(500 * time.Millisecond)
	u, err = s.Ingest(rev3(t, 2, 49, 1048, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, u.Stats.LatencyCount)

	clock.Advance(53 * time.Millisecond)
	u, err = s.Ingest(rev3(t, 2, 73, 1072, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, u.Stats.LatencyCount)
	assert.Equal(t, 6*time.Millisecond, u.Stats.LatencyCurrent)
	assert.Equal(t, 13*time.Millisecond, u.Stats.LatencyMax)
	assert.Equal(t, 9500*time.Microsecond, u.Stats.LatencyMean)
}

func TestSession_LatencyLegacy(t *testing.T) {
	clock := newClock()
	s := newSession(t, clock, nil)
	s.Start()

	u, err := s.Ingest(legacy(t, 1, 5000, 10))
	require.NoError(t, err)
	assert.Equal(t, packet.FormatLegacy, u.Stats.Format)
	assert.Equal(t, uint64(5000), u.Samples[0].DeviceTimestampMs)
	assert.Equal(t, 1.0, u.Samples[0].Z)
	assert.Zero(t, u.Stats.LatencyCount)

	clock.Advance(30 * time.Millisecond)
	u, err = s.Ingest(legacy(t, 11, 5010, 10))
	require.NoError(t, err)
	assert.Equal(t, 11*time.Millisecond, u.Stats.LatencyCurrent)
}

func TestSession_AnalysisTrigger(t *testing.T) {
	s := newSession(t, newClock(), func(c *Config) {
		c.FFTSize = 64
		c.WindowSeconds = 0.1
	})
	s.Start()

	var spectra []int
	for i := range 5 {
		u, err := s.Ingest(rev3(t, 1, uint32(1+i*24), uint32(i*24), nil))
		require.NoError(t, err)

		if u.Spectrum != nil {
			spectra = append(spectra, i)
			assert.Equal(t, 64, u.Spectrum.FFTSize)
			assert.Equal(t, u.Stats.SampleCount-1, u.Spectrum.SampleIndex)
		}
	}

	// counts 24, 48, 72, 96, 120: multiples of 50 are crossed by packets 2 and 4
	assert.Equal(t, []int{2, 4}, spectra)
	assert.NotNil(t, s.Spectrum())
}

func TestSession_NoAnalysisBeforeFFTSize(t *testing.T) {
	s := newSession(t, newClock(), nil)
	s.Start()

	for i := range 5 {
		u, err := s.Ingest(rev3(t, 1, uint32(1+i*24), uint32(i*24), nil))
		require.NoError(t, err)
		assert.Nil(t, u.Spectrum)
	}
	assert.Nil(t, s.Spectrum())
}

func TestSession_SinePeak(t *testing.T) {
	const freq = 100.0

	s := newSession(t, newClock(), func(c *Config) {
		c.FFTSize = 256
		c.Axis = spectrum.AxisZ
	})
	s.Start()

	z := func(i uint32) int16 {
		return int16(math.Round(2048 * math.Sin(2*math.Pi*freq*float64(i)/DefaultSampleRate)))
	}

	for i := range 20 {
		_, err := s.Ingest(rev3(t, 1, uint32(i*24), uint32(i*24), z))
		require.NoError(t, err)
	}

	sp := s.Spectrum()
	require.NotNil(t, sp)
	assert.Equal(t, spectrum.AxisZ, sp.Axis)
	assert.InDelta(t, freq, sp.PeakFrequency, DefaultSampleRate/256)
}

func TestSession_SetAxisKeepsStream(t *testing.T) {
	s := newSession(t, newClock(), nil)
	s.Start()

	_, err := s.Ingest(rev3(t, 1, 1, 0, nil))
	require.NoError(t, err)
	_, err = s.Ingest(rev3(t, 1, 30, 29, nil))
	require.NoError(t, err)

	samples, stats := s.Samples(), s.Stats()

	require.NoError(t, s.SetAxis(spectrum.AxisY))

	assert.Equal(t, samples, s.Samples())
	assert.Equal(t, stats.DroppedSamples, s.Stats().DroppedSamples)
	assert.Equal(t, spectrum.AxisY, s.Config().Axis)
}

func TestSession_SetAxisInvalid(t *testing.T) {
	s := newSession(t, newClock(), func(c *Config) { c.Axis = spectrum.AxisZ })
	s.Start()

	err := s.SetAxis(spectrum.Axis(3))
	assert.ErrorIs(t, err, spectrum.ErrInvalidAxis)
	assert.Equal(t, spectrum.AxisZ, s.Config().Axis)
}

func TestSession_SetFFTSize(t *testing.T) {
	s := newSession(t, newClock(), func(c *Config) { c.FFTSize = 64 })
	s.Start()

	for i := range 3 {
		_, err := s.Ingest(rev3(t, 1, uint32(1+i*24), uint32(i*24), nil))
		require.NoError(t, err)
	}
	prev := s.Spectrum()
	require.NotNil(t, prev)

	err := s.SetFFTSize(500)
	assert.ErrorIs(t, err, spectrum.ErrInvalidFFTSize)
	assert.Equal(t, 64, s.Config().FFTSize)
	assert.Same(t, prev, s.Spectrum())

	require.NoError(t, s.SetFFTSize(2048))
	assert.InDelta(t, 1000.0/2048, s.Stats().Resolution, 1e-12)
}

func TestSession_Retention(t *testing.T) {
	s := newSession(t, newClock(), nil)
	s.Start()

	for i := range 100 {
		_, err := s.Ingest(rev3(t, 1, uint32(1+i*24), uint32(i*24), nil))
		require.NoError(t, err)
	}

	samples := s.Samples()
	require.Len(t, samples, 1020)
	assert.Equal(t, uint64(2399), samples[len(samples)-1].Index)

	assert.Equal(t, MaxWindowSeconds, s.SetWindow(60))
	assert.Equal(t, MinWindowSeconds, s.SetWindow(0.01))
	assert.Len(t, s.Samples(), 512, "retention never drops below the fft size")
}

func TestSession_StartResets(t *testing.T) {
	s := newSession(t, newClock(), func(c *Config) { c.FFTSize = 64 })
	s.Start()

	for i := range 3 {
		_, err := s.Ingest(rev3(t, 1, uint32(1+i*24), uint32(i*24), nil))
		require.NoError(t, err)
	}
	_, err := s.Ingest(rev3(t, 1, 200, 200, nil))
	require.NoError(t, err)

	s.Start()

	st := s.Stats()
	assert.Zero(t, st.SampleCount)
	assert.Zero(t, st.DroppedSamples)
	assert.Zero(t, st.LatencyCount)
	assert.Zero(t, st.Packets)
	assert.Empty(t, s.Samples())
	assert.Nil(t, s.Spectrum())

	// counter continuity restarts too: a fresh first sample is exempt
	u, err := s.Ingest(rev3(t, 1, 5000, 0, nil))
	require.NoError(t, err)
	assert.Zero(t, u.Stats.DroppedSamples)
	assert.Equal(t, uint64(0), u.Samples[0].Index)
}

func TestSession_EffectiveSampleRate(t *testing.T) {
	clock := newClock()
	s := newSession(t, clock, nil)
	s.Start()

	clock.Advance(400 * time.Millisecond)
	u, err := s.Ingest(rev3(t, 1, 1, 0, nil))
	require.NoError(t, err)
	assert.Zero(t, u.Stats.EffectiveSampleRate)

	clock.Advance(600 * time.Millisecond)
	u, err = s.Ingest(rev3(t, 1, 25, 24, nil))
	require.NoError(t, err)
	assert.InDelta(t, 48.0, u.Stats.EffectiveSampleRate, 1e-9)
}

func TestNewSession_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FFTSize = 100
	cfg.SampleRate = 0

	_, err := NewSession(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, spectrum.ErrInvalidFFTSize)
}

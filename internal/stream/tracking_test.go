package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnwrapper(t *testing.T) {
	testCases := []struct {
		name string
		raw  []uint32
		want []uint64
	}{
		{"wrap", []uint32{65000, 500, 1000}, []uint64{65000, 66036, 66536}},
		{"small backwards jump is jitter", []uint32{40000, 20000, 40001}, []uint64{40000, 20000, 40001}},
		{"early values never wrap", []uint32{100, 50, 0}, []uint64{100, 50, 0}},
		{"two wraps", []uint32{60000, 10, 65000, 5}, []uint64{60000, 65546, 130536, 131077}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var u TimestampUnwrapper

			got := make([]uint64, 0, len(tc.raw))
			for _, r := range tc.raw {
				got = append(got, u.Unwrap(r))
			}

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimestampUnwrapper_Reset(t *testing.T) {
	var u TimestampUnwrapper
	u.Unwrap(65000)
	u.Unwrap(10)

	u.Reset()
	assert.Equal(t, uint64(10), u.Unwrap(10))
}

func TestContinuityTracker(t *testing.T) {
	testCases := []struct {
		name     string
		counters []uint32
		modulus  uint64
		want     uint64
	}{
		{"gap", []uint32{1, 2, 3, 6, 7}, 1 << 16, 2},
		{"gap 32-bit counter", []uint32{1, 2, 3, 6, 7}, 1 << 32, 2},
		{"reorder is ignored", []uint32{1, 2, 1, 2, 3}, 1 << 32, 0},
		{"first sample exempt", []uint32{100, 101}, 1 << 16, 0},
		{"counter starting at zero", []uint32{0, 1, 2, 4}, 1 << 16, 1},
		{"16-bit wrap", []uint32{65534, 65535, 0, 1}, 1 << 16, 0},
		{"gap across wrap is not counted", []uint32{65530, 3}, 1 << 16, 0},
		{"32-bit wrap", []uint32{0xFFFFFFFF, 0}, 1 << 32, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var c ContinuityTracker
			for _, counter := range tc.counters {
				c.Observe(counter, tc.modulus)
			}

			assert.Equal(t, tc.want, c.Dropped())
		})
	}
}

func TestContinuityTracker_ObserveReturnsGap(t *testing.T) {
	var c ContinuityTracker

	assert.Zero(t, c.Observe(10, 1<<16))
	assert.Equal(t, uint64(4), c.Observe(15, 1<<16))
	assert.Zero(t, c.Observe(16, 1<<16))

	c.Reset()
	assert.Zero(t, c.Observe(500, 1<<16))
	assert.Zero(t, c.Dropped())
}

func TestLatencyEstimator_Ring(t *testing.T) {
	var l LatencyEstimator
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	l.Anchor(0, t0)
	for i := 1; i <= LatencyHistorySize+1; i++ {
		_, ok := l.Observe(0, t0.Add(time.Duration(i)*time.Millisecond))
		require.True(t, ok)
	}

	st := l.Stats()
	assert.Equal(t, LatencyHistorySize, st.Count)
	assert.Equal(t, 101*time.Millisecond, st.Current)
	assert.Equal(t, 101*time.Millisecond, st.Max)
	// first measurement (1 ms) was evicted; the mean of 2..101 is 51.5
	assert.Equal(t, 51500*time.Microsecond, st.Mean)
}

func TestLatencyEstimator_NegativeDiscarded(t *testing.T) {
	var l LatencyEstimator
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok := l.Observe(10, t0)
	assert.False(t, ok, "no anchor yet")

	l.Anchor(1000, t0)

	d, ok := l.Observe(1010, t0.Add(25*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 15*time.Millisecond, d)

	_, ok = l.Observe(1100, t0.Add(30*time.Millisecond))
	assert.False(t, ok)

	d, ok = l.Observe(1020, t0.Add(25*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, d)

	st := l.Stats()
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 5*time.Millisecond, st.Current)
	assert.Equal(t, 15*time.Millisecond, st.Max, "max never decreases")
	assert.Equal(t, 10*time.Millisecond, st.Mean)

	l.Reset()
	assert.Equal(t, LatencyStats{}, l.Stats())
}

func TestSampleStore(t *testing.T) {
	s := NewSampleStore(4)
	for i := range 10 {
		s.Append(Sample{Index: uint64(i), X: float64(i)})
	}

	tail := s.Tail(3)
	require.Len(t, tail, 3)
	assert.Equal(t, []uint64{7, 8, 9}, []uint64{tail[0].Index, tail[1].Index, tail[2].Index})
	assert.Equal(t, []float64{8, 9}, s.AxisTail(0, 2))
	assert.Len(t, s.Tail(100), 10)

	s.Trim(2)
	assert.Equal(t, 4, s.Len(), "never trims below the minimum")
	assert.Equal(t, uint64(6), s.Samples()[0].Index)

	s.Trim(10)
	assert.Equal(t, 4, s.Len())

	s.Reset()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Samples())
}

func TestClampWindow(t *testing.T) {
	assert.Equal(t, 0.1, ClampWindow(0))
	assert.Equal(t, 5.0, ClampWindow(60))
	assert.Equal(t, 2.5, ClampWindow(2.5))
}

func TestRetention(t *testing.T) {
	assert.Equal(t, 1020, retention(1.0, 1000, 512))
	assert.Equal(t, 512, retention(0.1, 1000, 512))
	assert.Equal(t, 5020, retention(5.0, 1000, 4096))
}

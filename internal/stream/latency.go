package stream

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyHistorySize is the number of most recent latency measurements kept for averaging.
const LatencyHistorySize = 100

// LatencyStats summarizes the latency history.
type LatencyStats struct {
	Current time.Duration // Most recent valid measurement
	Mean    time.Duration // Mean over the retained history
	Max     time.Duration // Largest measurement since the last reset
	Count   int           // Number of measurements in the history
}

// LatencyEstimator measures the delay between the device producing a sample and
// the receiver getting it, relative to an anchor pair of device and receipt times.
// The device and receiver clocks are never compared directly.
type LatencyEstimator struct {
	anchored       bool
	anchorDeviceMs uint64
	anchorReceived time.Time

	history [LatencyHistorySize]float64 // milliseconds, ring buffer
	next    int
	count   int
	max     float64
}

// Anchor sets the reference pair used by subsequent measurements.
func (l *LatencyEstimator) Anchor(deviceMs uint64, receivedAt time.Time) {
	l.anchored = true
	l.anchorDeviceMs = deviceMs
	l.anchorReceived = receivedAt
}

// Observe measures the latency of a sample. Measurements taken before an anchor
// is set, or that come out negative, are discarded and reported as not ok.
func (l *LatencyEstimator) Observe(deviceMs uint64, receivedAt time.Time) (time.Duration, bool) {
	if !l.anchored {
		return 0, false
	}

	receiverElapsed := float64(receivedAt.Sub(l.anchorReceived)) / float64(time.Millisecond)
	deviceElapsed := float64(int64(deviceMs) - int64(l.anchorDeviceMs))

	latency := receiverElapsed - deviceElapsed
	if latency < 0 {
		return 0, false
	}

	l.history[l.next] = latency
	l.next = (l.next + 1) % LatencyHistorySize
	if l.count < LatencyHistorySize {
		l.count++
	}
	if latency > l.max {
		l.max = latency
	}

	return msToDuration(latency), true
}

// Stats returns the current, mean and max latency.
func (l *LatencyEstimator) Stats() LatencyStats {
	if l.count == 0 {
		return LatencyStats{}
	}

	last := (l.next - 1 + LatencyHistorySize) % LatencyHistorySize

	return LatencyStats{
		Current: msToDuration(l.history[last]),
		Mean:    msToDuration(stat.Mean(l.history[:l.count], nil)),
		Max:     msToDuration(l.max),
		Count:   l.count,
	}
}

// Reset clears the anchor, the history and the max.
func (l *LatencyEstimator) Reset() {
	*l = LatencyEstimator{}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

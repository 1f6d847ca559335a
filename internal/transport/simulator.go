package transport

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/saikumarpv2643/smart-accelerometer/internal/packet"
)

// SimulatorSource synthesizes Rev3 packets of a sine vibration on the X axis,
// with 1 g of gravity on the Z axis, at real-time pace. It stands in for a
// sensor when none is attached.
type SimulatorSource struct {
	SampleRate   float64 // Hz
	FrequencyHz  float64
	AmplitudeG   float64
	LSBPerG      float64
	BurstPackets int // Packets per burst id; 0 keeps one burst forever
	DropEvery    int // Skip every n-th packet to exercise loss accounting; 0 disables
}

func (s *SimulatorSource) Name() string {
	return "simulator"
}

func (s *SimulatorSource) Open(ctx context.Context) (io.ReadCloser, error) {
	period := time.Duration(float64(packet.Rev3SamplesPerPacket) / s.SampleRate * float64(time.Second))

	pr, pw := io.Pipe()
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for seq := 0; ; seq++ {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-ticker.C:
			}

			if s.DropEvery > 0 && seq%s.DropEvery == s.DropEvery-1 {
				continue
			}

			b, err := s.Packet(seq)
			if err == nil {
				err = EncodeFrame(pw, b)
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
		}
	}()

	return pr, nil
}

// Packet returns the seq-th packet of the simulated stream.
func (s *SimulatorSource) Packet(seq int) ([]byte, error) {
	var burst uint8
	if s.BurstPackets > 0 {
		burst = uint8(seq / s.BurstPackets)
	}

	samples := make([]packet.RawSample, packet.Rev3SamplesPerPacket)
	for i := range samples {
		n := seq*packet.Rev3SamplesPerPacket + i
		v := s.AmplitudeG * math.Sin(2*math.Pi*s.FrequencyHz*float64(n)/s.SampleRate)

		samples[i] = packet.RawSample{
			Counter:   uint32(n) & 0xFFFF,
			Timestamp: uint32(math.Round(float64(n)*1000/s.SampleRate)) & 0xFFFF,
			X:         toRaw(v, s.LSBPerG),
			Z:         toRaw(1, s.LSBPerG),
		}
	}

	return packet.EncodeRev3(burst, samples)
}

func toRaw(g, lsbPerG float64) int16 {
	return int16(max(min(math.Round(g*lsbPerG), math.MaxInt16), math.MinInt16))
}

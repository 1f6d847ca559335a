package packet

import (
	"encoding/binary"
	"fmt"
)

// EncodeRev3 builds a 243-byte Rev3 packet. Exactly 24 samples are required.
// The integrity field is filled with CRC16 of the preceding bytes.
func EncodeRev3(burstID uint8, samples []RawSample) ([]byte, error) {
	if len(samples) != Rev3SamplesPerPacket {
		return nil, fmt.Errorf("rev3 packet needs %d samples, got %d", Rev3SamplesPerPacket, len(samples))
	}

	b := make([]byte, Rev3PacketSize)
	b[0] = burstID
	for i, s := range samples {
		p := b[1+i*Rev3SampleSize:]
		binary.LittleEndian.PutUint16(p[0:], uint16(s.Counter))
		binary.LittleEndian.PutUint16(p[2:], uint16(s.Timestamp))
		binary.LittleEndian.PutUint16(p[4:], uint16(s.X))
		binary.LittleEndian.PutUint16(p[6:], uint16(s.Y))
		binary.LittleEndian.PutUint16(p[8:], uint16(s.Z))
	}
	binary.LittleEndian.PutUint16(b[rev3CRCOffset:], CRC16(b[:rev3CRCOffset]))

	return b, nil
}

// EncodeLegacy builds a batched legacy packet of 1 to 10 samples.
func EncodeLegacy(samples []RawSample) ([]byte, error) {
	if len(samples) == 0 || len(samples) > LegacyMaxSamples {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, len(samples))
	}

	b := make([]byte, 1+len(samples)*LegacySampleSize)
	b[0] = uint8(len(samples))
	for i, s := range samples {
		p := b[1+i*LegacySampleSize:]
		binary.LittleEndian.PutUint32(p[0:], s.Counter)
		binary.LittleEndian.PutUint32(p[4:], s.Timestamp)
		binary.LittleEndian.PutUint16(p[8:], uint16(s.X))
		binary.LittleEndian.PutUint16(p[10:], uint16(s.Y))
		binary.LittleEndian.PutUint16(p[12:], uint16(s.Z))
	}

	return b, nil
}

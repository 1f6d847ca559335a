package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MinPacketSize is the shortest buffer that can carry any known layout.
	MinPacketSize = 15

	// Rev3PacketSize is burst_id(1) + samples(24×10) + crc16(2).
	Rev3PacketSize       = 243
	Rev3SampleSize       = 10
	Rev3SamplesPerPacket = 24
	rev3CRCOffset        = 1 + Rev3SamplesPerPacket*Rev3SampleSize

	// LegacySampleSize is counter(4) + timestamp(4) + x,y,z(3×2).
	LegacySampleSize = 14
	LegacyMaxSamples = 10
)

const (
	FormatUnknown Format = iota
	FormatLegacy
	FormatRev3
)

var (
	// ErrUnrecognizedFormat is returned when the buffer is too short for any layout
	ErrUnrecognizedFormat = errors.New("unrecognized packet format")

	// ErrInvalidSampleCount is returned when a legacy packet declares 0 or more than 10 samples
	ErrInvalidSampleCount = errors.New("invalid legacy sample count")

	// ErrTruncated is returned when a legacy packet is shorter than its declared sample count
	ErrTruncated = errors.New("truncated packet")

	// ErrChecksumMismatch is returned when integrity verification is enabled and fails
	ErrChecksumMismatch = errors.New("packet checksum mismatch")
)

// Format identifies the wire layout of a packet.
type Format uint8

func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatRev3:
		return "rev3"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// CounterModulus returns the wrap modulus of the sequence counter for the format.
func (f Format) CounterModulus() uint64 {
	if f == FormatRev3 {
		return 1 << 16
	}
	return 1 << 32
}

// RawSample is a single undecoded sensor reading. For Rev3 packets Counter and
// Timestamp only use the lower 16 bits, and Timestamp is relative and wrapping.
type RawSample struct {
	Counter   uint32
	Timestamp uint32
	X, Y, Z   int16
}

// Packet is the decoded form of one transport notification.
type Packet struct {
	Format  Format
	BurstID uint8  // Rev3 only
	CRC     uint16 // Rev3 only, as carried on the wire
	Samples []RawSample
}

// IsMalformed reports whether err belongs to the malformed packet class, i.e. the
// packet must be dropped and the stream continued.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrUnrecognizedFormat) ||
		errors.Is(err, ErrInvalidSampleCount) ||
		errors.Is(err, ErrTruncated) ||
		errors.Is(err, ErrChecksumMismatch)
}

// WithCRCVerification enables verification of the Rev3 integrity field.
func WithCRCVerification(enabled bool) func(*Decoder) {
	return func(d *Decoder) {
		d.verifyCRC = enabled
	}
}

// Decoder turns raw notification buffers into packets. It holds no stream state
// and is safe for concurrent use.
type Decoder struct {
	verifyCRC bool
}

// NewDecoder creates a new Decoder
func NewDecoder(options ...func(*Decoder)) *Decoder {
	var d Decoder
	for _, option := range options {
		option(&d)
	}
	return &d
}

// Decode selects the layout from the buffer length and decodes all samples.
// Either the whole packet is decoded or an error is returned and nothing is.
func (d *Decoder) Decode(b []byte) (*Packet, error) {
	switch {
	case len(b) >= Rev3PacketSize:
		return d.decodeRev3(b)

	case len(b) >= MinPacketSize:
		return decodeLegacy(b)

	default:
		return nil, fmt.Errorf("%w: length %d", ErrUnrecognizedFormat, len(b))
	}
}

// Decode decodes b with a default Decoder.
func Decode(b []byte) (*Packet, error) {
	return NewDecoder().Decode(b)
}

func (d *Decoder) decodeRev3(b []byte) (*Packet, error) {
	p := Packet{
		Format:  FormatRev3,
		BurstID: b[0],
		CRC:     binary.LittleEndian.Uint16(b[rev3CRCOffset:]),
		Samples: make([]RawSample, Rev3SamplesPerPacket),
	}

	if d.verifyCRC {
		if sum := CRC16(b[:rev3CRCOffset]); sum != p.CRC {
			return nil, fmt.Errorf("%w: computed 0x%04x, carried 0x%04x", ErrChecksumMismatch, sum, p.CRC)
		}
	}

	for i := range p.Samples {
		s := b[1+i*Rev3SampleSize:]
		p.Samples[i] = RawSample{
			Counter:   uint32(binary.LittleEndian.Uint16(s[0:])),
			Timestamp: uint32(binary.LittleEndian.Uint16(s[2:])),
			X:         int16(binary.LittleEndian.Uint16(s[4:])),
			Y:         int16(binary.LittleEndian.Uint16(s[6:])),
			Z:         int16(binary.LittleEndian.Uint16(s[8:])),
		}
	}

	return &p, nil
}

func decodeLegacy(b []byte) (*Packet, error) {
	count := int(b[0])
	if count == 0 || count > LegacyMaxSamples {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, count)
	}
	if need := 1 + count*LegacySampleSize; len(b) < need {
		return nil, fmt.Errorf("%w: %d samples need %d bytes, got %d", ErrTruncated, count, need, len(b))
	}

	p := Packet{
		Format:  FormatLegacy,
		Samples: make([]RawSample, count),
	}

	for i := range p.Samples {
		s := b[1+i*LegacySampleSize:]
		p.Samples[i] = RawSample{
			Counter:   binary.LittleEndian.Uint32(s[0:]),
			Timestamp: binary.LittleEndian.Uint32(s[4:]),
			X:         int16(binary.LittleEndian.Uint16(s[8:])),
			Y:         int16(binary.LittleEndian.Uint16(s[10:])),
			Z:         int16(binary.LittleEndian.Uint16(s[12:])),
		}
	}

	return &p, nil
}

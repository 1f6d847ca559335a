package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFramePayload is the largest notification a bridge forwards in one frame.
	MaxFramePayload = 512

	frameHeaderSize = 4 // magic(2) + length(2)
)

var frameMagic = []byte{0xA5, 0x5A}

// ErrFrameSize is returned when a payload is empty or longer than MaxFramePayload
var ErrFrameSize = errors.New("invalid frame payload size")

// EncodeFrame writes payload as one frame: 0xA5 0x5A, little-endian u16 length, payload.
func EncodeFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxFramePayload {
		return fmt.Errorf("%w: %d", ErrFrameSize, len(payload))
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	copy(buf, frameMagic)
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(payload)))
	copy(buf[frameHeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

// SplitFrames is a bufio.SplitFunc returning frame payloads. Bytes before the
// magic are skipped, and a header with an impossible length is skipped one byte
// at a time until the next magic, all within one call so that frames already
// buffered behind the garbage are returned. Bytes that cannot start a frame are
// discarded at EOF.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for {
		rest := data[advance:]

		start := bytes.Index(rest, frameMagic)
		if start < 0 {
			if atEOF {
				return len(data), nil, nil
			}
			// the last byte may be the first half of the magic
			return max(advance, len(data)-1), nil, nil
		}
		advance += start
		rest = rest[start:]

		if len(rest) < frameHeaderSize {
			if atEOF {
				return len(data), nil, nil
			}
			return advance, nil, nil
		}

		n := int(binary.LittleEndian.Uint16(rest[2:]))
		if n == 0 || n > MaxFramePayload {
			advance++
			continue
		}

		if len(rest) < frameHeaderSize+n {
			if atEOF {
				// the header may be corrupt and hide complete frames
				advance++
				continue
			}
			return advance, nil, nil
		}

		return advance + frameHeaderSize + n, rest[frameHeaderSize : frameHeaderSize+n], nil
	}
}

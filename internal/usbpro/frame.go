package usbpro

import (
	"encoding/binary"
	"fmt"
)

const (
	// headerSize is label + 16 bit length.
	headerSize = 3
	// MaxPayloadSize is the largest payload the widget firmware sends or accepts.
	MaxPayloadSize = 600
)

// Frame is one labeled, length-prefixed message.
type Frame struct {
	Label   Label
	Payload []byte
}

// EncodeFrame builds [label][len lo][len hi][payload].
func EncodeFrame(label Label, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("encode %s frame of %d bytes: %w", label, len(payload), ErrFrameTooLarge)
	}
	out := make([]byte, headerSize+len(payload))
	out[0] = byte(label)
	binary.LittleEndian.PutUint16(out[1:3], uint16(len(payload)))
	copy(out[headerSize:], payload)
	return out, nil
}

// DecodeFrame decodes one frame from the head of b. It keeps no state: when
// b holds a partial frame ErrNeedMoreData is returned and the caller retries
// with more bytes. n is the number of bytes consumed. The returned payload
// aliases b.
func DecodeFrame(b []byte) (f Frame, n int, err error) {
	if len(b) < headerSize {
		return Frame{}, 0, ErrNeedMoreData
	}
	length := int(binary.LittleEndian.Uint16(b[1:3]))
	if length > MaxPayloadSize {
		return Frame{}, 0, fmt.Errorf("declared length %d: %w", length, ErrFrameTooLarge)
	}
	if len(b) < headerSize+length {
		return Frame{}, 0, ErrNeedMoreData
	}
	return Frame{
		Label:   Label(b[0]),
		Payload: b[headerSize : headerSize+length],
	}, headerSize + length, nil
}

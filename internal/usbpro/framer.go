package usbpro

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// SOM starts every message on the serial link.
	SOM byte = 0x7E
	// EOM ends every message on the serial link.
	EOM byte = 0xE7
)

// Framer accumulates bytes read from the transport and splits them into
// frames. Reads may end anywhere, including in the middle of a header.
type Framer struct {
	buf       []byte
	discarded int
}

// Feed appends bytes read from the transport.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Buffered returns the number of bytes waiting for a complete frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Discarded returns the number of bytes skipped while looking for SOM.
func (f *Framer) Discarded() int {
	return f.discarded
}

// Reset drops all accumulated bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Next returns the next complete frame. ErrNeedMoreData means the caller
// should Feed more bytes. ErrBadEndOfMessage drops the broken frame and
// Next can be called again. ErrFrameTooLarge clears the accumulated bytes.
// The returned payload is a copy and stays valid after further calls.
func (f *Framer) Next() (Frame, error) {
	start := bytes.IndexByte(f.buf, SOM)
	if start < 0 {
		f.discarded += len(f.buf)
		f.buf = f.buf[:0]
		return Frame{}, ErrNeedMoreData
	}
	if start > 0 {
		f.discarded += start
		f.buf = f.buf[start:]
	}

	frame, n, err := DecodeFrame(f.buf[1:])
	switch {
	case errors.Is(err, ErrNeedMoreData):
		return Frame{}, err
	case err != nil:
		f.Reset()
		return Frame{}, err
	}

	end := 1 + n
	if len(f.buf) <= end {
		return Frame{}, ErrNeedMoreData
	}
	if f.buf[end] != EOM {
		// resync on the next SOM after this one
		f.discarded++
		f.buf = f.buf[1:]
		return Frame{}, fmt.Errorf("%s frame followed by 0x%02x: %w", frame.Label, f.buf[end-1], ErrBadEndOfMessage)
	}

	frame.Payload = append([]byte(nil), frame.Payload...)
	f.buf = f.buf[end+1:]
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}
	return frame, nil
}

// WriteFrame wraps the encoded frame in SOM/EOM and writes it with a single
// Write call.
func WriteFrame(w io.Writer, label Label, payload []byte) error {
	encoded, err := EncodeFrame(label, payload)
	if err != nil {
		return err
	}
	msg := make([]byte, 0, len(encoded)+2)
	msg = append(msg, SOM)
	msg = append(msg, encoded...)
	msg = append(msg, EOM)

	n, err := w.Write(msg)
	if err != nil {
		return fmt.Errorf("write %s frame: %w", label, err)
	}
	if n != len(msg) {
		return fmt.Errorf("write %s frame: %w", label, io.ErrShortWrite)
	}
	return nil
}

package usbpro

import (
	"errors"
	"fmt"

	"usbprobridge/internal/dmx"
)

const (
	// changeSetHeaderSize is the start block byte plus the 5 byte bitmask.
	changeSetHeaderSize = 6
	// changeSetChannels is the number of channels covered by one bitmask.
	changeSetChannels = 40
	// ChangeSetSize is the fixed size of a change of state payload.
	ChangeSetSize = changeSetHeaderSize + changeSetChannels
)

var (
	errShortChangeSet   = errors.New("change of state frame too small")
	errNonZeroStartCode = errors.New("change of state frame with non-zero start code")
)

// ChangeSet is a decoded change of state frame: up to 40 channels starting
// at block StartBlock*8, with values only for the channels flagged in Changed.
type ChangeSet struct {
	StartBlock uint8
	Changed    [5]byte
	Values     []byte
}

// DecodeChangeSet parses a DMX changed payload. Values aliases payload.
func DecodeChangeSet(payload []byte) (ChangeSet, error) {
	if len(payload) < ChangeSetSize {
		return ChangeSet{}, fmt.Errorf("%w: %d bytes", errShortChangeSet, len(payload))
	}
	c := ChangeSet{StartBlock: payload[0]}
	copy(c.Changed[:], payload[1:changeSetHeaderSize])
	c.Values = payload[changeSetHeaderSize:]
	if len(c.Values) > changeSetChannels {
		c.Values = c.Values[:changeSetChannels]
	}
	return c, nil
}

func (c ChangeSet) changed(i int) bool {
	return c.Changed[i/8]&(1<<(i%8)) != 0
}

// Apply writes the flagged channels into b and returns how many were written.
// Channel numbers are 1-based and absolute channel 0 is never written and
// takes no value byte. A frame flagging channel 0 with a non-zero first
// value is rejected as a non-zero start code. Unflagged channels keep their
// value. Decoding stops at channel 512 or when the values run out.
func (c ChangeSet) Apply(b *dmx.Buffer) (int, error) {
	start := int(c.StartBlock) * 8
	offset := 0

	if start == 0 && c.changed(0) && len(c.Values) > 0 && c.Values[0] != dmx.StartCode {
		return 0, fmt.Errorf("%w: 0x%02x", errNonZeroStartCode, c.Values[0])
	}

	applied := 0
	for i := 0; i < changeSetChannels; i++ {
		channel := start + i
		if channel == 0 {
			continue
		}
		if channel > dmx.UniverseSize || offset >= len(c.Values) {
			break
		}
		if c.changed(i) {
			b.SetChannel(channel-1, c.Values[offset])
			offset++
			applied++
		}
	}
	return applied, nil
}

package dmx

// UniverseSize число каналов в одном DMX512 universe.
const UniverseSize = 512

// StartCode is the DMX start code for standard lighting data.
const StartCode = 0

// Buffer wraps the 512 byte array for convenience. Index 0 is channel 1.
type Buffer [UniverseSize]byte

// Set replaces the contents of the buffer with data. Channels past len(data)
// are set to zero, extra input is ignored.
func (b *Buffer) Set(data []byte) {
	n := copy(b[:], data)
	for i := n; i < UniverseSize; i++ {
		b[i] = 0
	}
}

// SetChannel sets a single channel by 0-based index. Out of range indexes are ignored.
func (b *Buffer) SetChannel(index int, value uint8) {
	if index < 0 || index >= UniverseSize {
		return
	}
	b[index] = value
}

// Get returns the value of a channel by 0-based index, 0 when out of range.
func (b *Buffer) Get(index int) uint8 {
	if index < 0 || index >= UniverseSize {
		return 0
	}
	return b[index]
}

// Blackout обнуляет все каналы.
func (b *Buffer) Blackout() {
	*b = Buffer{}
}

// Slice returns the buffer contents as a slice sharing the underlying array.
func (b *Buffer) Slice() []byte {
	return b[:]
}

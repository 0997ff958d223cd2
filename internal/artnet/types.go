package artnet

import (
	"sync"

	"usbprobridge/internal/dmx"
)

// Universe wraps the 512 byte array for convenience.
type Universe [dmx.UniverseSize]byte

func (u Universe) toByteSlice() [512]byte {
	return u
}

// UniverseStateMap holds the state of all used universes.
type UniverseStateMap map[uint16]Universe

// State хранит последние значения всех universe.
type State struct {
	mu        sync.Mutex
	universes UniverseStateMap
}

// NewState конструктор.
func NewState() *State {
	return &State{universes: UniverseStateMap{}}
}

// SetUniverse replaces a whole universe.
func (s *State) SetUniverse(universe uint16, data Universe) {
	s.mu.Lock()
	s.universes[universe] = data
	s.mu.Unlock()
}

// Get returns a copy of the state.
func (s *State) Get() UniverseStateMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(UniverseStateMap, len(s.universes))
	for k, v := range s.universes {
		out[k] = v
	}
	return out
}

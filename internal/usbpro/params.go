package usbpro

import (
	"encoding/binary"
	"fmt"
)

// parametersSize is the size of a parameters reply record.
const parametersSize = 5

// serialSize is the size of a serial number reply.
const serialSize = 4

// Parameters are the widget timing parameters.
type Parameters struct {
	FirmwareLow  uint8 `json:"firmware_lo"`
	FirmwareHigh uint8 `json:"firmware_hi"`
	BreakTime    uint8 `json:"break_time"` // BreakTime в единицах 10.67 мкс.
	MABTime      uint8 `json:"mab_time"`   // MABTime в единицах 10.67 мкс.
	Rate         uint8 `json:"rate"`       // Rate - пакетов в секунду, 0 - максимум.
}

// Firmware returns the firmware version as one number.
func (p Parameters) Firmware() uint16 {
	return uint16(p.FirmwareHigh)<<8 | uint16(p.FirmwareLow)
}

func (p Parameters) String() string {
	return fmt.Sprintf("firmware=%d.%d break=%d mab=%d rate=%d",
		p.FirmwareHigh, p.FirmwareLow, p.BreakTime, p.MABTime, p.Rate)
}

func decodeParameters(payload []byte) (Parameters, bool) {
	if len(payload) < parametersSize {
		return Parameters{}, false
	}
	return Parameters{
		FirmwareLow:  payload[0],
		FirmwareHigh: payload[1],
		BreakTime:    payload[2],
		MABTime:      payload[3],
		Rate:         payload[4],
	}, true
}

// encodeGetParameters is the 16 bit user configuration size, always 0.
func encodeGetParameters() []byte {
	return []byte{0, 0}
}

func encodeSetParameters(breakTime, mabTime, rate uint8) []byte {
	out := make([]byte, 5)
	binary.LittleEndian.PutUint16(out[0:2], 0)
	out[2] = breakTime
	out[3] = mabTime
	out[4] = rate
	return out
}

// SerialNumber is the widget serial as reported by the firmware, four BCD bytes, low first.
type SerialNumber uint32

func decodeSerialNumber(payload []byte) (SerialNumber, bool) {
	if len(payload) < serialSize {
		return 0, false
	}
	return SerialNumber(binary.LittleEndian.Uint32(payload[:serialSize])), true
}

// String prints the serial as its decimal digits.
func (s SerialNumber) String() string {
	return fmt.Sprintf("%08x", uint32(s))
}

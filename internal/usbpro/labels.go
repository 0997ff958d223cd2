package usbpro

import "fmt"

// Label is the message type tag of a widget frame.
type Label byte

// Label values used by the USB Pro firmware.
const (
	ReprogramFirmwareLabel Label = 1
	ProgramFlashLabel      Label = 2
	ParametersLabel        Label = 3
	SetParametersLabel     Label = 4
	ReceivedDMXLabel       Label = 5
	DMXLabel               Label = 6
	RDMLabel               Label = 7
	DMXRxModeLabel         Label = 8
	DMXChangedLabel        Label = 9
	SerialLabel            Label = 10
)

var labelNames = map[Label]string{
	ReprogramFirmwareLabel: "reprogram_firmware",
	ProgramFlashLabel:      "program_flash",
	ParametersLabel:        "parameters",
	SetParametersLabel:     "set_parameters",
	ReceivedDMXLabel:       "received_dmx",
	DMXLabel:               "dmx",
	RDMLabel:               "rdm",
	DMXRxModeLabel:         "dmx_rx_mode",
	DMXChangedLabel:        "dmx_changed",
	SerialLabel:            "serial",
}

func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(l))
}

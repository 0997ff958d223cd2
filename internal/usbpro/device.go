package usbpro

import (
	"usbprobridge/internal/device"
	"usbprobridge/internal/dmx"
)

// Device adapts a Widget to the device registry: one input and one output port.
type Device struct {
	widget *Widget
	in     inputPort
	out    outputPort
}

// NewDevice wraps w. Closing the device closes the widget.
func NewDevice(w *Widget) *Device {
	return &Device{
		widget: w,
		in:     inputPort{w},
		out:    outputPort{w},
	}
}

func (d *Device) Name() string {
	return d.widget.Name()
}

// Widget returns the underlying widget.
func (d *Device) Widget() *Widget {
	return d.widget
}

func (d *Device) InputPorts() []device.InputPort {
	return []device.InputPort{d.in}
}

func (d *Device) OutputPorts() []device.OutputPort {
	return []device.OutputPort{d.out}
}

func (d *Device) Close() error {
	return d.widget.Close()
}

type inputPort struct {
	w *Widget
}

func (p inputPort) PortID() string {
	return p.w.Name() + "-in-0"
}

func (p inputPort) ReadDMX() dmx.Buffer {
	return p.w.FetchDMX()
}

func (p inputPort) OnChange(cb func(dmx.Buffer)) {
	p.w.SetDMXCallback(cb)
}

type outputPort struct {
	w *Widget
}

func (p outputPort) PortID() string {
	return p.w.Name() + "-out-0"
}

func (p outputPort) WriteDMX(b *dmx.Buffer) error {
	return p.w.SendDMX(b)
}

// GetParameters requests the widget parameters.
func (d *Device) GetParameters(cb ParamsCallback) {
	d.widget.GetParameters(cb)
}

// SetParameters writes the widget parameters.
func (d *Device) SetParameters(breakTime, mabTime, rate uint8) error {
	return d.widget.SetParameters(breakTime, mabTime, rate)
}

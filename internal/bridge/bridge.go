// Package bridge moves DMX between registered devices and the network.
package bridge

import (
	"context"
	"fmt"

	"usbprobridge/internal/clientmqtt"
	"usbprobridge/internal/device"
	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
	"usbprobridge/internal/usbpro"
)

// UniverseSink receives universes read from input ports.
type UniverseSink interface {
	SetUniverse(universe uint16, data dmx.Buffer)
}

// Publisher publishes widget data.
type Publisher interface {
	PublishDMX(widget string, b dmx.Buffer)
	PublishParams(widget string, ok bool, p usbpro.Parameters)
}

// Counter counts forwarded universes.
type Counter interface {
	Forwarded(widget, sink string)
}

// paramsDevice is a device with widget timing parameters.
type paramsDevice interface {
	GetParameters(cb usbpro.ParamsCallback)
	SetParameters(breakTime, mabTime, rate uint8) error
}

// Bridge структура моста.
type Bridge struct {
	log      *logger.Log
	registry *device.Registry
	sink     UniverseSink
	pub      Publisher
	counter  Counter
	outputs  map[string]*dmx.Buffer
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSink forwards input universes to s.
func WithSink(s UniverseSink) Option {
	return func(b *Bridge) { b.sink = s }
}

// WithPublisher publishes input universes and parameter replies to p.
func WithPublisher(p Publisher) Option {
	return func(b *Bridge) { b.pub = p }
}

// WithCounter counts forwarded universes.
func WithCounter(c Counter) Option {
	return func(b *Bridge) { b.counter = c }
}

// New конструктор.
func New(log logger.Logger, registry *device.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		log:      log.With(logger.Fields{"module": "bridge"}),
		registry: registry,
		outputs:  map[string]*dmx.Buffer{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AttachInput forwards every universe received on the device's first input port.
func (b *Bridge) AttachInput(name string, universe uint16) error {
	d, ok := b.registry.Get(name)
	if !ok {
		return fmt.Errorf("attach input %s: %w", name, device.ErrNotFound)
	}
	ports := d.InputPorts()
	if len(ports) == 0 {
		return fmt.Errorf("attach input %s: no input ports", name)
	}

	ports[0].OnChange(func(data dmx.Buffer) {
		if b.sink != nil {
			b.sink.SetUniverse(universe, data)
			b.count(name, "artnet")
		}
		if b.pub != nil {
			b.pub.PublishDMX(name, data)
			b.count(name, "mqtt")
		}
	})
	b.log.Infof("input %s forwarded to universe %d", ports[0].PortID(), universe)
	return nil
}

// HandleCommands applies commands until ctx is done or cmds is closed.
func (b *Bridge) HandleCommands(ctx context.Context, cmds <-chan clientmqtt.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			if err := b.Apply(cmd); err != nil {
				b.log.Errorf("command for %s failed: %v", cmd.Widget, err)
			}
		}
	}
}

// Apply runs one command. Not safe for concurrent use.
func (b *Bridge) Apply(cmd clientmqtt.Command) error {
	d, ok := b.registry.Get(cmd.Widget)
	if !ok {
		return device.ErrNotFound
	}

	switch cmd.Kind {
	case clientmqtt.CommandDMX:
		ports := d.OutputPorts()
		if len(ports) == 0 {
			return fmt.Errorf("no output ports")
		}
		buf := b.output(cmd.Widget)
		for _, c := range cmd.Data {
			buf.SetChannel(int(c.Channel), c.Value)
		}
		return ports[0].WriteDMX(buf)

	case clientmqtt.CommandGetParams:
		pd, ok := d.(paramsDevice)
		if !ok {
			return fmt.Errorf("device has no parameters")
		}
		name := cmd.Widget
		pd.GetParameters(func(ok bool, p usbpro.Parameters) {
			b.log.Debugf("%s parameters: ok=%v %s", name, ok, p)
			if b.pub != nil {
				b.pub.PublishParams(name, ok, p)
			}
		})
		return nil

	case clientmqtt.CommandSetParams:
		pd, ok := d.(paramsDevice)
		if !ok {
			return fmt.Errorf("device has no parameters")
		}
		return pd.SetParameters(cmd.Params.BreakTime, cmd.Params.MABTime, cmd.Params.Rate)
	}
	return fmt.Errorf("unknown command %d", cmd.Kind)
}

// output returns the last universe sent to a widget.
func (b *Bridge) output(name string) *dmx.Buffer {
	buf, ok := b.outputs[name]
	if !ok {
		buf = &dmx.Buffer{}
		b.outputs[name] = buf
	}
	return buf
}

func (b *Bridge) count(widget, sink string) {
	if b.counter != nil {
		b.counter.Forwarded(widget, sink)
	}
}

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"usbprobridge/internal/clientmqtt"
	"usbprobridge/internal/device"
	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
	"usbprobridge/internal/usbpro"
)

type fakeDevice struct {
	name     string
	onChange func(dmx.Buffer)
	written  []dmx.Buffer
	params   usbpro.Parameters
	set      [3]uint8
}

func (d *fakeDevice) Name() string { return d.name }
func (d *fakeDevice) InputPorts() []device.InputPort { return []device.InputPort{fakeIn{d}} }
func (d *fakeDevice) OutputPorts() []device.OutputPort { return []device.OutputPort{fakeOut{d}} }
func (d *fakeDevice) Close() error { return nil }
func (d *fakeDevice) GetParameters(cb usbpro.ParamsCallback) { cb(true, d.params) }

func (d *fakeDevice) SetParameters(breakTime, mabTime, rate uint8) error {
	d.set = [3]uint8{breakTime, mabTime, rate}
	return nil
}

type fakeIn struct{ d *fakeDevice }

func (p fakeIn) PortID() string { return p.d.name + "-in" }
func (p fakeIn) ReadDMX() dmx.Buffer { return dmx.Buffer{} }
func (p fakeIn) OnChange(cb func(dmx.Buffer)) { p.d.onChange = cb }

type fakeOut struct{ d *fakeDevice }

func (p fakeOut) PortID() string { return p.d.name + "-out" }
func (p fakeOut) WriteDMX(b *dmx.Buffer) error {
	p.d.written = append(p.d.written, *b)
	return nil
}

type recorder struct {
	universes map[uint16]dmx.Buffer
	published []string
	params    []usbpro.Parameters
	counted   map[string]int
}

func newRecorder() *recorder {
	return &recorder{universes: map[uint16]dmx.Buffer{}, counted: map[string]int{}}
}

func (r *recorder) SetUniverse(u uint16, b dmx.Buffer) { r.universes[u] = b }
func (r *recorder) PublishDMX(widget string, _ dmx.Buffer) { r.published = append(r.published, widget) }
func (r *recorder) PublishParams(_ string, _ bool, p usbpro.Parameters) { r.params = append(r.params, p) }
func (r *recorder) Forwarded(widget, sink string) { r.counted[widget+"/"+sink]++ }

func setup(t *testing.T) (*Bridge, *fakeDevice, *recorder) {
	t.Helper()
	reg := device.NewRegistry(logger.Discard())
	d := &fakeDevice{name: "w", params: usbpro.Parameters{Rate: 40}}
	if err := reg.Register(d); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	return New(logger.Discard(), reg, WithSink(rec), WithPublisher(rec), WithCounter(rec)), d, rec
}

func TestAttachInput(t *testing.T) {
	b, d, rec := setup(t)
	if err := b.AttachInput("w", 7); err != nil {
		t.Fatalf("AttachInput() error = %v", err)
	}

	var data dmx.Buffer
	data.SetChannel(3, 99)
	d.onChange(data)

	u := rec.universes[7]
	if u.Get(3) != 99 {
		t.Errorf("universe 7 = %v", u[:4])
	}
	if len(rec.published) != 1 || rec.published[0] != "w" {
		t.Errorf("published = %v", rec.published)
	}
	if rec.counted["w/artnet"] != 1 || rec.counted["w/mqtt"] != 1 {
		t.Errorf("counted = %v", rec.counted)
	}

	if err := b.AttachInput("missing", 1); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("AttachInput(missing) error = %v", err)
	}
}

func TestApplyDMXKeepsState(t *testing.T) {
	b, d, _ := setup(t)

	cmds := []clientmqtt.Command{
		{Widget: "w", Kind: clientmqtt.CommandDMX, Data: clientmqtt.Payload{{Channel: 0, Value: 10}}},
		{Widget: "w", Kind: clientmqtt.CommandDMX, Data: clientmqtt.Payload{{Channel: 5, Value: 20}}},
	}
	for _, cmd := range cmds {
		if err := b.Apply(cmd); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	if len(d.written) != 2 {
		t.Fatalf("written %d universes, want 2", len(d.written))
	}
	last := d.written[1]
	if last.Get(0) != 10 || last.Get(5) != 20 {
		t.Errorf("last universe = %v", last[:6])
	}
}

func TestApplyParams(t *testing.T) {
	b, d, rec := setup(t)

	if err := b.Apply(clientmqtt.Command{Widget: "w", Kind: clientmqtt.CommandGetParams}); err != nil {
		t.Fatalf("Apply(get) error = %v", err)
	}
	if len(rec.params) != 1 || rec.params[0].Rate != 40 {
		t.Errorf("published params = %+v", rec.params)
	}

	set := clientmqtt.Command{Widget: "w", Kind: clientmqtt.CommandSetParams,
		Params: clientmqtt.ParamsSet{BreakTime: 9, MABTime: 1, Rate: 30}}
	if err := b.Apply(set); err != nil {
		t.Fatalf("Apply(set) error = %v", err)
	}
	if d.set != [3]uint8{9, 1, 30} {
		t.Errorf("set = %v", d.set)
	}
}

func TestApplyUnknownWidget(t *testing.T) {
	b, _, _ := setup(t)
	err := b.Apply(clientmqtt.Command{Widget: "nope", Kind: clientmqtt.CommandGetParams})
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Apply() error = %v, want ErrNotFound", err)
	}
}

func TestHandleCommands(t *testing.T) {
	b, d, _ := setup(t)
	cmds := make(chan clientmqtt.Command, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cmds <- clientmqtt.Command{Widget: "w", Kind: clientmqtt.CommandDMX, Data: clientmqtt.Payload{{Channel: 1, Value: 1}}}
	close(cmds)
	b.HandleCommands(ctx, cmds)

	if len(d.written) != 1 {
		t.Errorf("written %d universes, want 1", len(d.written))
	}
}

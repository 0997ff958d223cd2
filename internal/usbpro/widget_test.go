package usbpro

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"usbprobridge/internal/device"
	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
)

// pipePort is a fake serial port: the test plays the widget by writing to
// toHost and reading what the host wrote through onWrite.
type pipePort struct {
	fromWidget *io.PipeReader
	toHost     *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	onWrite func(Frame)
	closed  bool
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{fromWidget: r, toHost: w}
}

func (p *pipePort) Read(b []byte) (int, error) {
	return p.fromWidget.Read(b)
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.written.Write(b)
	var f Framer
	f.Feed(b)
	frame, err := f.Next()
	hook := p.onWrite
	p.mu.Unlock()

	if err == nil && hook != nil {
		hook(frame)
	}
	return len(b), nil
}

func (p *pipePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.fromWidget.Close()
}

// reply sends a frame from the widget to the host without blocking the caller.
func (p *pipePort) reply(t *testing.T, label Label, payload []byte) {
	msg := wire(t, label, payload)
	go p.toHost.Write(msg)
}

func startWidget(t *testing.T, cfg WidgetConf) (*Widget, *pipePort, context.CancelFunc) {
	t.Helper()
	port := newPipePort()
	w := NewWidget(port, logger.Discard(), cfg)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		w.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("Run did not return")
		}
	})
	return w, port, cancel
}

func TestWidgetReceivesDMX(t *testing.T) {
	w, port, _ := startWidget(t, WidgetConf{Name: "in"})

	got := make(chan dmx.Buffer, 1)
	w.SetDMXCallback(func(b dmx.Buffer) { got <- b })

	port.reply(t, ReceivedDMXLabel, fullFrame(0, 0, 10, 20, 30))

	select {
	case b := <-got:
		if b[0] != 10 || b[1] != 20 || b[2] != 30 {
			t.Errorf("callback buffer = %v", b[:3])
		}
	case <-time.After(time.Second):
		t.Fatal("no DMX callback")
	}

	if b := w.FetchDMX(); b[2] != 30 {
		t.Errorf("FetchDMX()[2] = %d, want 30", b[2])
	}
}

func TestWidgetStats(t *testing.T) {
	w, port, _ := startWidget(t, WidgetConf{Name: "stats"})

	got := make(chan struct{}, 1)
	w.SetDMXCallback(func(dmx.Buffer) { got <- struct{}{} })

	port.reply(t, ReceivedDMXLabel, fullFrame(0, 0, 1))
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("no DMX callback")
	}
	if err := w.SendDMX(&dmx.Buffer{}); err != nil {
		t.Fatalf("SendDMX() error = %v", err)
	}

	s := w.Stats()
	if s.FramesReceived != 1 || s.FramesSent != 1 || s.FramesDropped != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestWidgetParameters(t *testing.T) {
	w, port, _ := startWidget(t, WidgetConf{Name: "params"})
	port.onWrite = func(f Frame) {
		if f.Label == ParametersLabel {
			port.reply(t, ParametersLabel, []byte{4, 1, 9, 1, 40})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := w.Parameters(ctx)
	if err != nil {
		t.Fatalf("Parameters() error = %v", err)
	}
	want := Parameters{FirmwareLow: 4, FirmwareHigh: 1, BreakTime: 9, MABTime: 1, Rate: 40}
	if p != want {
		t.Errorf("Parameters() = %+v, want %+v", p, want)
	}
}

func TestWidgetParametersTimeout(t *testing.T) {
	w, _, _ := startWidget(t, WidgetConf{
		Name:           "slow",
		RequestTimeout: 20 * time.Millisecond,
		SweepInterval:  5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := w.Parameters(ctx); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Parameters() error = %v, want request failure", err)
	}
}

func TestWidgetCloseFlushesRequests(t *testing.T) {
	port := newPipePort()
	w := NewWidget(port, logger.Discard(), WidgetConf{Name: "closing"})

	var results []bool
	for i := 0; i < 3; i++ {
		w.GetParameters(func(ok bool, _ Parameters) { results = append(results, ok) })
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("%d callbacks after Close, want 3", len(results))
	}
	for i, ok := range results {
		if ok {
			t.Errorf("callback %d ok = true", i)
		}
	}
	if !port.closed {
		t.Error("port not closed")
	}

	if err := w.SendDMX(&dmx.Buffer{}); !errors.Is(err, ErrInactive) {
		t.Errorf("SendDMX() after Close error = %v, want ErrInactive", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDeviceRegistration(t *testing.T) {
	port := newPipePort()
	w := NewWidget(port, logger.Discard(), WidgetConf{Name: "dev0"})
	reg := device.NewRegistry(logger.Discard())

	if err := reg.Register(NewDevice(w)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(NewDevice(w)); !errors.Is(err, device.ErrDuplicate) {
		t.Errorf("second Register() error = %v, want ErrDuplicate", err)
	}

	d, ok := reg.Get("dev0")
	if !ok {
		t.Fatal("device not found")
	}
	out := d.OutputPorts()[0]
	var b dmx.Buffer
	b.SetChannel(0, 0xFF)
	if err := out.WriteDMX(&b); err != nil {
		t.Fatalf("WriteDMX() error = %v", err)
	}

	port.mu.Lock()
	var f Framer
	f.Feed(port.written.Bytes())
	port.mu.Unlock()
	frame, err := f.Next()
	if err != nil || frame.Label != DMXLabel || frame.Payload[1] != 0xFF {
		t.Errorf("written frame = %+v, err %v", frame, err)
	}

	if err := reg.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	if len(reg.Names()) != 0 || !port.closed {
		t.Error("device still registered or port open")
	}
}

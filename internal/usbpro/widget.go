package usbpro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
)

const (
	readSize             = 1024
	defaultSweepInterval = 100 * time.Millisecond
)

// WidgetConf настройки виджета.
type WidgetConf struct {
	Name           string        // Name - имя устройства.
	RequestTimeout time.Duration // RequestTimeout - ожидание ответа на запрос, 0 - без ограничения.
	SweepInterval  time.Duration // SweepInterval - период проверки просроченных запросов.
	Observer       Observer
}

// Widget is an Enttec USB Pro widget on a serial transport. It owns the
// protocol engine and serialises every call into it, including frame
// dispatch from Run. Callbacks are run after the engine is released, in
// the order the engine produced them.
type Widget struct {
	name   string
	port   io.ReadWriteCloser
	log    *logger.Log
	sweep  time.Duration
	engine *Engine

	mu       sync.Mutex
	framer   Framer
	onDMX    func(dmx.Buffer)
	deferred []func()
	closed   bool
}

// NewWidget конструктор. The widget takes ownership of port.
func NewWidget(port io.ReadWriteCloser, log logger.Logger, cfg WidgetConf) *Widget {
	wlog := log.With(logger.Fields{"widget": cfg.Name})
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}

	w := &Widget{
		name:  cfg.Name,
		port:  port,
		log:   wlog.With(logger.Fields{"module": "usbpro"}),
		sweep: sweep,
	}
	w.engine = NewEngine(port, wlog, WithObserver(obs), WithRequestTimeout(cfg.RequestTimeout))
	w.engine.SetDMXCallback(w.dmxReceived)
	return w
}

// Name returns the widget name.
func (w *Widget) Name() string {
	return w.name
}

// SetDMXCallback sets the function that receives a copy of the input buffer
// each time new DMX data arrives. It replaces the previous one.
func (w *Widget) SetDMXCallback(cb func(dmx.Buffer)) {
	w.mu.Lock()
	w.onDMX = cb
	w.mu.Unlock()
}

// FetchDMX returns a copy of the latest received DMX data.
func (w *Widget) FetchDMX() dmx.Buffer {
	var b dmx.Buffer
	w.do(func(e *Engine) {
		b = *e.FetchDMX()
	})
	return b
}

// SendDMX sends a universe to the widget output.
func (w *Widget) SendDMX(b *dmx.Buffer) error {
	var ok bool
	w.do(func(e *Engine) {
		ok = e.SendDMX(b)
	})
	return w.result(ok)
}

// ChangeToReceiveMode switches the widget to DMX input.
func (w *Widget) ChangeToReceiveMode(changeOnly bool) error {
	var ok bool
	w.do(func(e *Engine) {
		ok = e.ChangeToReceiveMode(changeOnly)
	})
	return w.result(ok)
}

// SetParameters sets break, mark after break and rate.
func (w *Widget) SetParameters(breakTime, mabTime, rate uint8) error {
	var ok bool
	w.do(func(e *Engine) {
		ok = e.SetParameters(breakTime, mabTime, rate)
	})
	return w.result(ok)
}

// GetParameters requests the widget parameters; cb runs exactly once.
func (w *Widget) GetParameters(cb ParamsCallback) {
	w.do(func(e *Engine) {
		e.GetParameters(func(ok bool, p Parameters) {
			w.deferred = append(w.deferred, func() { cb(ok, p) })
		})
	})
}

// GetSerialNumber requests the widget serial number; cb runs exactly once.
func (w *Widget) GetSerialNumber(cb SerialCallback) {
	w.do(func(e *Engine) {
		e.GetSerialNumber(func(ok bool, s SerialNumber) {
			w.deferred = append(w.deferred, func() { cb(ok, s) })
		})
	})
}

// Parameters requests the widget parameters and waits for the reply. Run
// must be running to deliver it.
func (w *Widget) Parameters(ctx context.Context) (Parameters, error) {
	type reply struct {
		ok bool
		p  Parameters
	}
	ch := make(chan reply, 1)
	w.GetParameters(func(ok bool, p Parameters) {
		ch <- reply{ok, p}
	})

	select {
	case r := <-ch:
		if !r.ok {
			return Parameters{}, fmt.Errorf("widget %s: parameters request failed", w.name)
		}
		return r.p, nil
	case <-ctx.Done():
		return Parameters{}, ctx.Err()
	}
}

// SerialNumber requests the serial number and waits for the reply.
func (w *Widget) SerialNumber(ctx context.Context) (SerialNumber, error) {
	type reply struct {
		ok bool
		s  SerialNumber
	}
	ch := make(chan reply, 1)
	w.GetSerialNumber(func(ok bool, s SerialNumber) {
		ch <- reply{ok, s}
	})

	select {
	case r := <-ch:
		if !r.ok {
			return 0, fmt.Errorf("widget %s: serial number request failed", w.name)
		}
		return r.s, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stats returns the engine counters, framing errors included.
func (w *Widget) Stats() Stats {
	var s Stats
	w.do(func(e *Engine) {
		s = e.Stats()
	})
	return s
}

// Run reads the transport and dispatches frames until ctx is done or the
// transport fails. Close the widget to unblock a pending read.
func (w *Widget) Run(ctx context.Context) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, readSize)
		for {
			n, err := w.port.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	t := time.NewTicker(w.sweep)
	defer t.Stop()

	w.log.Debug("read loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk := <-chunks:
			w.receive(chunk)
		case <-t.C:
			w.do(func(e *Engine) {
				e.ExpireRequests()
			})
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("widget %s: read: %w", w.name, err)
		}
	}
}

// Close stops the engine, failing outstanding requests, then closes the transport.
func (w *Widget) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.do(func(e *Engine) {
		e.Stop()
	})
	w.log.Debug("widget stopped")
	return w.port.Close()
}

func (w *Widget) receive(chunk []byte) {
	w.do(func(e *Engine) {
		w.framer.Feed(chunk)
		for {
			frame, err := w.framer.Next()
			switch {
			case err == nil:
				e.HandleFrame(frame.Label, frame.Payload)
				continue
			case errors.Is(err, ErrNeedMoreData):
				return
			case errors.Is(err, ErrBadEndOfMessage):
				w.log.Warnf("%v", err)
				e.obs.FrameDropped(0, DropBadFraming)
				continue
			default:
				w.log.Warnf("resetting input: %v", err)
				e.obs.FrameDropped(0, DropFrameTooLarge)
				return
			}
		}
	})
}

// dmxReceived runs inside the engine, the copy is handed out later.
func (w *Widget) dmxReceived() {
	cb := w.onDMX
	if cb == nil {
		return
	}
	snapshot := *w.engine.FetchDMX()
	w.deferred = append(w.deferred, func() { cb(snapshot) })
}

func (w *Widget) do(f func(e *Engine)) {
	w.mu.Lock()
	f(w.engine)
	pending := w.deferred
	w.deferred = nil
	w.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (w *Widget) result(ok bool) error {
	if ok {
		return nil
	}
	w.mu.Lock()
	active := w.engine.Active()
	w.mu.Unlock()
	if !active {
		return ErrInactive
	}
	return ErrSendFailed
}

package usbpro

import (
	"io"
	"time"

	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
)

// Observer receives protocol events, e.g. for metrics.
type Observer interface {
	FrameReceived(label Label)
	FrameDropped(label Label, reason string)
	FrameSent(label Label)
	RequestFinished(kind string, ok bool)
	PendingRequests(n int)
}

type nopObserver struct{}

func (nopObserver) FrameReceived(Label) {}
func (nopObserver) FrameDropped(Label, string) {}
func (nopObserver) FrameSent(Label) {}
func (nopObserver) RequestFinished(string, bool) {}
func (nopObserver) PendingRequests(int) {}

// Drop reasons reported to the Observer.
const (
	DropShort         = "short"
	DropBadStatus     = "bad_status"
	DropStartCode     = "start_code"
	DropNoRequest     = "no_request"
	DropUnknownLabel  = "unknown_label"
	DropBadFraming    = "bad_framing"
	DropFrameTooLarge = "too_large"
)

// Request kinds reported to the Observer.
const (
	RequestParameters = "parameters"
	RequestSerial     = "serial"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithObserver sets the protocol event observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

// WithRequestTimeout sets how long a request waits for its reply before
// ExpireRequests fails it. Zero waits forever.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine implements the USB Pro widget protocol on top of a byte stream.
//
// Engine is not safe for concurrent use: HandleFrame and the outbound
// operations must be called from one goroutine at a time, and callbacks run
// synchronously inside those calls.
type Engine struct {
	w       io.Writer
	log     *logger.Log
	obs     Observer
	now     func() time.Time
	timeout time.Duration

	stats       Stats
	active      bool
	input       dmx.Buffer
	dmxCallback func()
	params      pendingQueue[Parameters]
	serials     pendingQueue[SerialNumber]
}

// NewEngine конструктор. The engine does not own w.
func NewEngine(w io.Writer, log logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		w:      w,
		log:    log.With(logger.Fields{"module": "usbpro"}),
		obs:    nopObserver{},
		now:    time.Now,
		active: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.obs = statsObserver{stats: &e.stats, next: e.obs}
	return e
}

// Active reports whether Stop has not been called yet.
func (e *Engine) Active() bool {
	return e.active
}

// Stop deactivates the engine and fails every outstanding request in the
// order they were sent. It is safe to call more than once.
func (e *Engine) Stop() {
	e.active = false
	if n := e.params.Flush(); n > 0 {
		e.log.Debugf("flushed %d outstanding parameter requests", n)
		e.finished(RequestParameters, false, n)
	}
	if n := e.serials.Flush(); n > 0 {
		e.finished(RequestSerial, false, n)
	}
	e.obs.PendingRequests(0)
}

// SetDMXCallback sets the function run when new DMX data arrives. It
// replaces the previous one; nil clears it.
func (e *Engine) SetDMXCallback(cb func()) {
	e.dmxCallback = cb
}

// FetchDMX returns the latest received DMX data. The buffer is owned by the
// engine and changes with the next received frame.
func (e *Engine) FetchDMX() *dmx.Buffer {
	return &e.input
}

// Pending returns the number of parameter requests waiting for a reply.
func (e *Engine) Pending() int {
	return e.params.Len()
}

// SendDMX sends a universe with start code 0.
func (e *Engine) SendDMX(b *dmx.Buffer) bool {
	if !e.active {
		return false
	}
	payload := make([]byte, 1+dmx.UniverseSize)
	payload[0] = dmx.StartCode
	copy(payload[1:], b.Slice())
	return e.send(DMXLabel, payload)
}

// ChangeToReceiveMode puts the widget back into receive mode. With
// changeOnly the widget only reports changed channels, so the input buffer
// is blacked out to give the diffs a clean base.
func (e *Engine) ChangeToReceiveMode(changeOnly bool) bool {
	if !e.active {
		return false
	}
	mode := byte(0)
	if changeOnly {
		mode = 1
	}
	ok := e.send(DMXRxModeLabel, []byte{mode})
	if ok && changeOnly {
		e.input.Blackout()
	}
	return ok
}

// GetParameters requests the widget parameters. cb runs exactly once: with
// the reply, or with false if the request cannot be sent, times out, or the
// engine stops first.
func (e *Engine) GetParameters(cb ParamsCallback) {
	if !e.active {
		e.finished(RequestParameters, false, 1)
		cb(false, Parameters{})
		return
	}

	e.params.Push(cb, e.deadline())
	if !e.send(ParametersLabel, encodeGetParameters()) {
		e.params.PopBack()
		e.finished(RequestParameters, false, 1)
	}
	e.obs.PendingRequests(e.params.Len())
}

// SetParameters sets the widget parameters. The widget gives no
// confirmation, so this returns as soon as the frame is written.
func (e *Engine) SetParameters(breakTime, mabTime, rate uint8) bool {
	if !e.active {
		return false
	}
	ok := e.send(SetParametersLabel, encodeSetParameters(breakTime, mabTime, rate))
	if !ok {
		e.log.Warn("failed to send a set params message")
	}
	return ok
}

// GetSerialNumber requests the widget serial number. cb runs exactly once.
func (e *Engine) GetSerialNumber(cb SerialCallback) {
	if !e.active {
		e.finished(RequestSerial, false, 1)
		cb(false, 0)
		return
	}

	e.serials.Push(cb, e.deadline())
	if !e.send(SerialLabel, nil) {
		e.serials.PopBack()
		e.finished(RequestSerial, false, 1)
	}
}

// ExpireRequests fails the oldest requests whose deadline is before now.
// Replies carry no id, so a late reply is taken by the next request.
func (e *Engine) ExpireRequests() int {
	now := e.now()
	n := e.params.Expire(now)
	if n > 0 {
		e.log.Warnf("%d parameter requests timed out", n)
		e.finished(RequestParameters, false, n)
		e.obs.PendingRequests(e.params.Len())
	}
	if s := e.serials.Expire(now); s > 0 {
		e.log.Warnf("%d serial number requests timed out", s)
		e.finished(RequestSerial, false, s)
		n += s
	}
	return n
}

// HandleFrame dispatches one complete frame received from the widget.
func (e *Engine) HandleFrame(label Label, payload []byte) {
	e.obs.FrameReceived(label)

	switch label {
	case ReprogramFirmwareLabel:
	case ParametersLabel:
		e.handleParameters(payload)
	case ReceivedDMXLabel:
		e.handleDMX(payload)
	case DMXChangedLabel:
		e.handleDMXDiff(payload)
	case SerialLabel:
		e.handleSerial(payload)
	default:
		e.log.Warnf("unknown message type %d", byte(label))
		e.obs.FrameDropped(label, DropUnknownLabel)
	}
}

func (e *Engine) handleParameters(payload []byte) {
	if e.params.Len() == 0 {
		e.obs.FrameDropped(ParametersLabel, DropNoRequest)
		return
	}

	params, ok := decodeParameters(payload)
	if !ok {
		e.log.Warnf("parameters reply too small: %d", len(payload))
		e.obs.FrameDropped(ParametersLabel, DropShort)
		return
	}

	e.params.Pop(true, params)
	e.finished(RequestParameters, true, 1)
	e.obs.PendingRequests(e.params.Len())
}

// handleDMX handles a full frame: [status][start code][data...].
func (e *Engine) handleDMX(payload []byte) {
	if len(payload) < 2 {
		e.obs.FrameDropped(ReceivedDMXLabel, DropShort)
		return
	}

	if status := payload[0]; status != 0 {
		e.log.Warnf("UsbPro got corrupted packet, status: %d", status)
		e.obs.FrameDropped(ReceivedDMXLabel, DropBadStatus)
		return
	}

	// only handle start code = 0
	if payload[1] != dmx.StartCode {
		e.obs.FrameDropped(ReceivedDMXLabel, DropStartCode)
		return
	}
	if len(payload) == 2 {
		e.obs.FrameDropped(ReceivedDMXLabel, DropShort)
		return
	}
	e.input.Set(payload[2:])
	e.notify()
}

func (e *Engine) handleDMXDiff(payload []byte) {
	changes, err := DecodeChangeSet(payload)
	if err != nil {
		e.log.Warnf("%v", err)
		e.obs.FrameDropped(DMXChangedLabel, DropShort)
		return
	}

	if _, err := changes.Apply(&e.input); err != nil {
		e.log.Debugf("%v", err)
		e.obs.FrameDropped(DMXChangedLabel, DropStartCode)
		return
	}
	e.notify()
}

func (e *Engine) handleSerial(payload []byte) {
	if e.serials.Len() == 0 {
		return
	}
	serial, ok := decodeSerialNumber(payload)
	if !ok {
		e.log.Warnf("serial number reply too small: %d", len(payload))
		e.obs.FrameDropped(SerialLabel, DropShort)
		return
	}
	e.serials.Pop(true, serial)
	e.finished(RequestSerial, true, 1)
}

func (e *Engine) notify() {
	if e.dmxCallback != nil {
		e.dmxCallback()
	}
}

func (e *Engine) send(label Label, payload []byte) bool {
	if err := WriteFrame(e.w, label, payload); err != nil {
		e.log.Warnf("%v", err)
		return false
	}
	e.obs.FrameSent(label)
	return true
}

func (e *Engine) deadline() time.Time {
	if e.timeout <= 0 {
		return time.Time{}
	}
	return e.now().Add(e.timeout)
}

func (e *Engine) finished(kind string, ok bool, n int) {
	for i := 0; i < n; i++ {
		e.obs.RequestFinished(kind, ok)
	}
}

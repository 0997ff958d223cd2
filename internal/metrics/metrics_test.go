package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"usbprobridge/internal/usbpro"
)

func TestWidgetObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	obs := m.Widget("w1")

	obs.FrameReceived(usbpro.ReceivedDMXLabel)
	obs.FrameReceived(usbpro.ReceivedDMXLabel)
	obs.FrameDropped(usbpro.DMXChangedLabel, usbpro.DropShort)
	obs.FrameSent(usbpro.DMXLabel)
	obs.RequestFinished(usbpro.RequestParameters, false)
	obs.PendingRequests(3)
	m.Forwarded("w1", "artnet")

	if got := testutil.ToFloat64(m.framesReceived.WithLabelValues("w1", "received_dmx")); got != 2 {
		t.Errorf("frames received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.framesDropped.WithLabelValues("w1", "dmx_changed", "short")); got != 1 {
		t.Errorf("frames dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.framesSent.WithLabelValues("w1", "dmx")); got != 1 {
		t.Errorf("frames sent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("w1", "parameters", "failed")); got != 1 {
		t.Errorf("failed requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pending.WithLabelValues("w1")); got != 3 {
		t.Errorf("pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.forwarded.WithLabelValues("w1", "artnet")); got != 1 {
		t.Errorf("forwarded = %v, want 1", got)
	}
}

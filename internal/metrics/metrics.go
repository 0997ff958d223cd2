package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"usbprobridge/internal/logger"
	"usbprobridge/internal/usbpro"
)

const namespace = "usbpro"

// Metrics holds the collectors of the bridge.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	requests       *prometheus.CounterVec
	pending        *prometheus.GaugeVec
	forwarded      *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from widgets by label.",
		}, []string{"widget", "label"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by label and reason.",
		}, []string{"widget", "label", "reason"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to widgets by label.",
		}, []string{"widget", "label"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Finished widget requests by kind and result.",
		}, []string{"widget", "kind", "result"}),
		pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Parameter requests waiting for a reply.",
		}, []string{"widget"}),
		forwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dmx_forwarded_total",
			Help:      "Received universes forwarded to a sink.",
		}, []string{"widget", "sink"}),
	}
}

// Widget returns an observer bound to one widget.
func (m *Metrics) Widget(name string) usbpro.Observer {
	return &widgetObserver{m: m, name: name}
}

// Forwarded counts a universe handed to a sink.
func (m *Metrics) Forwarded(widget, sink string) {
	m.forwarded.WithLabelValues(widget, sink).Inc()
}

type widgetObserver struct {
	m    *Metrics
	name string
}

func (o *widgetObserver) FrameReceived(label usbpro.Label) {
	o.m.framesReceived.WithLabelValues(o.name, label.String()).Inc()
}

func (o *widgetObserver) FrameDropped(label usbpro.Label, reason string) {
	o.m.framesDropped.WithLabelValues(o.name, label.String(), reason).Inc()
}

func (o *widgetObserver) FrameSent(label usbpro.Label) {
	o.m.framesSent.WithLabelValues(o.name, label.String()).Inc()
}

func (o *widgetObserver) RequestFinished(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	o.m.requests.WithLabelValues(o.name, kind, result).Inc()
}

func (o *widgetObserver) PendingRequests(n int) {
	o.m.pending.WithLabelValues(o.name).Set(float64(n))
}

// Serve exposes g on addr until ctx is done.
func Serve(ctx context.Context, log logger.Logger, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	l := log.With(logger.Fields{"module": "metrics"})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Errorf("metrics server shutdown: %v", err)
		}
	}()

	l.Infof("serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package metrics exposes run progress as Prometheus metrics and serves
// them over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stfn345/ats-ebp-validator/internal/report"
)

const shutdownTimeout = 5 * time.Second

// Metrics holds the Prometheus collectors of one validation run. It
// implements report.Observer.
type Metrics struct {
	registry   *prometheus.Registry
	boundaries *prometheus.CounterVec
	findings   *prometheus.CounterVec
	received   *prometheus.GaugeVec
	dropped    *prometheus.GaugeVec
	queueDepth *prometheus.GaugeVec
}

var _ report.Observer = (*Metrics)(nil)

// New creates and registers the run metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		boundaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ebpv_boundaries_total",
			Help: "Boundaries detected, by source and stream kind",
		}, []string{"source", "kind", "implicit"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ebpv_findings_total",
			Help: "Recorded failures, by source and finding kind",
		}, []string{"source", "kind"}),
		received: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ebpv_ingest_received_bytes",
			Help: "Bytes received on each live input",
		}, []string{"feed"}),
		dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ebpv_ingest_dropped_reads",
			Help: "Socket reads discarded because the ring buffer was full",
		}, []string{"feed"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ebpv_queue_depth",
			Help: "Segments waiting for cross-stream analysis",
		}, []string{"slot"}),
	}
	m.registry.MustRegister(m.boundaries, m.findings, m.received, m.dropped, m.queueDepth)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveBoundary counts a detected boundary.
func (m *Metrics) ObserveBoundary(ev report.BoundaryEvent) {
	kind := "audio"
	if ev.Video {
		kind = "video"
	}
	m.boundaries.WithLabelValues(strconv.Itoa(ev.Source), kind, strconv.FormatBool(ev.Implicit)).Inc()
}

// ObserveFinding counts a recorded failure.
func (m *Metrics) ObserveFinding(f report.Finding) {
	m.findings.WithLabelValues(strconv.Itoa(f.Source), f.Kind.String()).Inc()
}

// SetFeed records the transfer counters of a live input.
func (m *Metrics) SetFeed(feed string, bytes, dropped int64) {
	m.received.WithLabelValues(feed).Set(float64(bytes))
	m.dropped.WithLabelValues(feed).Set(float64(dropped))
}

// SetQueueDepth records the analysis queue length of a slot.
func (m *Metrics) SetQueueDepth(slot string, n int) {
	m.queueDepth.WithLabelValues(slot).Set(float64(n))
}

// Handler serves the registry. refresh, if non-nil, runs before each
// scrape to update gauges.
func (m *Metrics) Handler(refresh func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refresh != nil {
			refresh()
		}
		inner.ServeHTTP(w, r)
	})
}

// Router returns the HTTP routes: /metrics and /healthz.
func (m *Metrics) Router(refresh func()) chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler(refresh))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// Serve listens on addr and serves Router until ctx is cancelled. ready,
// if non-nil, receives the bound address once listening.
func (m *Metrics) Serve(ctx context.Context, addr string, refresh func(), ready func(net.Addr), log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "metrics")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           m.Router(refresh),
		ReadHeaderTimeout: shutdownTimeout,
	}
	if ready != nil {
		ready(ln.Addr())
	}
	log.Info("metrics endpoint listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	return nil
}

// Package metrics provides Prometheus metrics export for the chat pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports chat metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	streamDeltas   prometheus.Counter
	streamDuration prometheus.Histogram
	activeStreams  prometheus.Gauge
	titleRequests  *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for stream duration histograms (in seconds)
	DurationBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		DurationBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultConfig().DurationBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total number of chat turns by final status",
		},
		[]string{"status"},
	)

	e.streamDeltas = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "chat",
			Name:      "stream_deltas_total",
			Help:      "Total number of content deltas received from the provider",
		},
	)

	e.streamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sidekick",
			Subsystem: "chat",
			Name:      "stream_duration_seconds",
			Help:      "Duration of completion streams in seconds",
			Buckets:   cfg.DurationBuckets,
		},
	)

	e.activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Number of completion streams currently open",
		},
	)

	e.titleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "chat",
			Name:      "title_requests_total",
			Help:      "Total number of title generation requests by status",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.turns,
		e.streamDeltas,
		e.streamDuration,
		e.activeStreams,
		e.titleRequests,
	)

	return e
}

// RecordTurn records a finished turn with its final status.
func (e *Exporter) RecordTurn(status string, duration time.Duration) {
	e.turns.WithLabelValues(status).Inc()
	e.streamDuration.Observe(duration.Seconds())
}

// RecordDelta counts one received content delta.
func (e *Exporter) RecordDelta() {
	e.streamDeltas.Inc()
}

// StreamOpened marks a stream as active.
func (e *Exporter) StreamOpened() {
	e.activeStreams.Inc()
}

// StreamClosed marks a stream as finished.
func (e *Exporter) StreamClosed() {
	e.activeStreams.Dec()
}

// RecordTitleRequest records a title generation attempt.
func (e *Exporter) RecordTitleRequest(status string) {
	e.titleRequests.WithLabelValues(status).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// ABOUTME: Prometheus metrics for the relay connection and console HTTP traffic
// ABOUTME: Instance-based collectors registered against a caller-supplied registry

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline/console/internal/relay"
)

// Metrics holds every Prometheus collector the console exports.
type Metrics struct {
	registry *prometheus.Registry

	relayStatus     prometheus.Gauge
	framesIn        prometheus.Counter
	framesDropped   prometheus.Counter
	droppedSends    prometheus.Counter
	dials           prometheus.Counter
	retryAttempts   prometheus.Counter
	deliveriesTotal *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		relayStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hookline",
			Subsystem: "relay",
			Name:      "status",
			Help:      "Current relay connection status (0=idle 1=connecting 2=connected 3=disconnected 4=errored).",
		}),
		framesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hookline",
			Subsystem: "relay",
			Name:      "frames_in_total",
			Help:      "Frames received from the relay.",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hookline",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped because they failed to decode.",
		}),
		droppedSends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hookline",
			Subsystem: "relay",
			Name:      "dropped_sends_total",
			Help:      "Outbound messages dropped because the relay was not connected.",
		}),
		dials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hookline",
			Subsystem: "relay",
			Name:      "dials_total",
			Help:      "Connection attempts made to the relay.",
		}),
		retryAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hookline",
			Subsystem: "relay",
			Name:      "retry_attempts_total",
			Help:      "Scheduled reconnect attempts.",
		}),
		deliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookline",
			Subsystem: "deliveries",
			Name:      "recorded_total",
			Help:      "Webhook deliveries recorded, by status.",
		}, []string{"status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled by the console.",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hookline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStatus records a relay status transition.
func (m *Metrics) ObserveStatus(status relay.Status) {
	m.relayStatus.Set(float64(status))
	if status == relay.StatusConnecting {
		m.dials.Inc()
	}
}

// ObserveFrame records one inbound frame.
func (m *Metrics) ObserveFrame() {
	m.framesIn.Inc()
}

// SyncStats copies the relay manager's counters into the counters exposed
// here. Called periodically; prometheus counters only move forward, so the
// delta since the last sync is added.
func (m *Metrics) SyncStats(prev, cur relay.Stats) {
	m.framesDropped.Add(float64(cur.FramesDropped - prev.FramesDropped))
	m.droppedSends.Add(float64(cur.DroppedSends - prev.DroppedSends))
	// The retry counter resets on successful connects, so the delta can go
	// negative between syncs.
	if d := cur.RetryAttempts - prev.RetryAttempts; d > 0 {
		m.retryAttempts.Add(float64(d))
	}
}

// RecordDelivery counts one recorded delivery by status.
func (m *Metrics) RecordDelivery(status string) {
	m.deliveriesTotal.WithLabelValues(status).Inc()
}

// statusRecorder captures the response code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware wraps a handler and records request counts and durations.
// The path label uses the route pattern, not the raw URL, to keep
// cardinality bounded.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

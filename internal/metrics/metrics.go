// Package metrics exposes Prometheus collectors for the participation workflow.
// All recording methods are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clanportal"

// Seat transition results.
const (
	ResultOK       = "ok"
	ResultNoop     = "noop"
	ResultFull     = "capacity_exceeded"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics bundles the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	seatTransitions *prometheus.CounterVec
	counterDrift    prometheus.Counter
	feedSubscribers prometheus.Gauge
	feedBroadcasts  *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates a private registry with process and Go runtime collectors plus the domain collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		seatTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_transitions_total",
			Help:      "Capacity coordinator transitions by operation and result.",
		}, []string{"op", "result"}),
		counterDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_count_drift_total",
			Help:      "Absolute participants_count corrections applied by recount.",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Open live feed subscriptions on this instance.",
		}),
		feedBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_broadcasts_total",
			Help:      "Live feed snapshots delivered, by origin (local or redis).",
		}, []string{"origin"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Background jobs processed by type and result.",
		}, []string{"type", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.seatTransitions, m.counterDrift, m.feedSubscribers, m.feedBroadcasts, m.jobs, m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry (for tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SeatTransition records one coordinator transition.
func (m *Metrics) SeatTransition(op, result string) {
	if m == nil {
		return
	}
	m.seatTransitions.WithLabelValues(op, result).Inc()
}

// CounterDrift records how far a recount moved participants_count.
func (m *Metrics) CounterDrift(delta int) {
	if m == nil || delta == 0 {
		return
	}
	if delta < 0 {
		delta = -delta
	}
	m.counterDrift.Add(float64(delta))
}

// FeedSubscribed adjusts the open subscription gauge by delta.
func (m *Metrics) FeedSubscribed(delta int) {
	if m == nil {
		return
	}
	m.feedSubscribers.Add(float64(delta))
}

// FeedBroadcast records a snapshot fan-out.
func (m *Metrics) FeedBroadcast(origin string) {
	if m == nil {
		return
	}
	m.feedBroadcasts.WithLabelValues(origin).Inc()
}

// JobProcessed records a background job outcome.
func (m *Metrics) JobProcessed(jobType string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.jobs.WithLabelValues(jobType, result).Inc()
}

// Middleware observes request latency labelled by the matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

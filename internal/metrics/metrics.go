// Package metrics exposes Prometheus collectors for the board hub and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric on its own registry, so tests can build as
// many as they like.
type Collector struct {
	registry *prometheus.Registry

	sessions           prometheus.Gauge
	events             *prometheus.CounterVec
	denied             *prometheus.CounterVec
	reactionSuppressed prometheus.Counter
	snapshotFailures   *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_sessions",
			Help:      "Number of sessions currently connected to the hub",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Inbound events processed by the router",
		}, []string{"event"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_denied_total",
			Help:      "Privileged events rejected for non-admin sessions",
		}, []string{"event"}),
		reactionSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_suppressed_total",
			Help:      "Like toggles dropped by the debounce window",
		}),
		snapshotFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Failed persistence snapshot writes",
		}, []string{"key"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.sessions,
		c.events,
		c.denied,
		c.reactionSuppressed,
		c.snapshotFailures,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) EventHandled(event string) {
	c.events.WithLabelValues(event).Inc()
}

func (c *Collector) PermissionDenied(event string) {
	c.denied.WithLabelValues(event).Inc()
}

func (c *Collector) ReactionSuppressed() {
	c.reactionSuppressed.Inc()
}

func (c *Collector) SessionsChanged(count int) {
	c.sessions.Set(float64(count))
}

func (c *Collector) SnapshotFailed(key string) {
	c.snapshotFailures.WithLabelValues(key).Inc()
}

// ObserveHTTP records one finished request. route should be the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

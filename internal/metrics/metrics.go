// Package metrics exposes Prometheus collectors for the identity service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the subset of metrics the application layer reports.
// A nil *Collector is a valid no-op Recorder.
type Recorder interface {
	AuthEvent(event, outcome string)
}

// Collector holds the registered metric vectors.
type Collector struct {
	registry     *prometheus.Registry
	authEvents   *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	queryLatency *prometheus.HistogramVec
	slowQueries  prometheus.Counter
}

// NewCollector creates and registers all collectors on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buff_auth_events_total",
			Help: "Authentication events by event and outcome.",
		}, []string{"event", "outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buff_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buff_db_query_duration_seconds",
			Help:    "Database call latency by operation.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, 1},
		}, []string{"op"}),
		slowQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buff_db_slow_queries_total",
			Help: "Database calls slower than the configured threshold.",
		}),
	}
	reg.MustRegister(c.authEvents, c.httpLatency, c.queryLatency, c.slowQueries)
	return c
}

// AuthEvent counts one authentication event.
func (c *Collector) AuthEvent(event, outcome string) {
	if c == nil {
		return
	}
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpLatency.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveQuery records one database call.
func (c *Collector) ObserveQuery(op string, d time.Duration, slow bool) {
	if c == nil {
		return
	}
	c.queryLatency.WithLabelValues(op).Observe(d.Seconds())
	if slow {
		c.slowQueries.Inc()
	}
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

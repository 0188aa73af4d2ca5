// Package metrics exposes Prometheus metrics for the API on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "ledger"

// Collector holds the API metric vectors. A nil Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter
	ResourceWritesTotal *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the write rate limiter",
		}),
		ResourceWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resource_writes_total",
			Help:      "Successful writes per resource and operation",
		}, []string{"resource", "operation"}),
	}
	reg.MustRegister(c.HTTPRequestsTotal, c.HTTPRequestDuration, c.RateLimitedTotal, c.ResourceWritesTotal)
	return c
}

// RecordHTTPRequest counts a finished request. Requests no route matched
// share the "unmatched" label to keep cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, d time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordRateLimited() {
	if c == nil {
		return
	}
	c.RateLimitedTotal.Inc()
}

func (c *Collector) RecordResourceWrite(resource, operation string) {
	if c == nil {
		return
	}
	c.ResourceWritesTotal.WithLabelValues(resource, operation).Inc()
}

// Gauge registers a gauge read from fn at scrape time.
func (c *Collector) Gauge(name, help string, fn func() float64) {
	if c == nil {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// CounterFunc registers a counter read from fn at scrape time. fn must never
// decrease.
func (c *Collector) CounterFunc(name, help string, fn func() float64) {
	if c == nil {
		return
	}
	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

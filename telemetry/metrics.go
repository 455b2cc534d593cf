// Package telemetry is the gateway's passive metrics surface. Components
// observe into it at the points where pipeline state changes; it performs no
// logic of its own.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds every counter, gauge and histogram of the pipeline on its
// own registry, so tests can create instances freely.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    prometheus.Counter
	RequestsQueued   prometheus.Counter
	RequestsCacheHit prometheus.Counter
	RequestsErrors   prometheus.Counter

	QueueSize prometheus.Gauge
	InFlight  prometheus.Gauge

	ProcessingLatency prometheus.Histogram
}

// New creates and registers the pipeline metrics along with the standard Go
// runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of incoming analyze requests",
		}),
		RequestsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_queued",
			Help: "Requests accepted and placed into the queue",
		}),
		RequestsCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_cache_hit",
			Help: "Requests served from cache",
		}),
		RequestsErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_errors",
			Help: "Requests that resulted in error",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_size",
			Help: "Size of internal queue",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "in_flight_requests",
			Help: "Currently in-flight processing",
		}),
		ProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "processing_latency_seconds",
			Help:    "Time to process request (worker measured)",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestsQueued,
		m.RequestsCacheHit,
		m.RequestsErrors,
		m.QueueSize,
		m.InFlight,
		m.ProcessingLatency,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry exposes the underlying registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a fasthttp handler serving the prometheus text exposition.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}),
	)
}

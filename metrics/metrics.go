// Package metrics exposes Prometheus collectors for the prediction service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so that several collectors (one per test,
// for instance) never clash on the default one.
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	InFlight           prometheus.Gauge
	PredictionsTotal   *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	ModelLoaded        prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry:  registry,
		namespace: namespace,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "route"}),

		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "predictions_total",
			Help:      "Prediction attempts by outcome (high_risk, low_risk, invalid, unavailable, error).",
		}, []string{"outcome"}),

		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "validation_failures_total",
			Help:      "Rejected input fields by validation group.",
		}, []string{"group"}),

		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loaded",
			Help:      "1 when a model artifact is loaded, 0 otherwise.",
		}),
	}
}

func (c *Collector) ObservePrediction(outcome string) {
	c.PredictionsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveValidationFailure(group string) {
	c.ValidationFailures.WithLabelValues(group).Inc()
}

func (c *Collector) SetModelLoaded(loaded bool) {
	if loaded {
		c.ModelLoaded.Set(1)
		return
	}
	c.ModelLoaded.Set(0)
}

// TrackWizardSessions exposes count as the live session gauge. count is read
// at scrape time, so sessions dropped by expiry or eviction are never
// reported. Call it at most once per collector.
func (c *Collector) TrackWizardSessions(count func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: "wizard",
		Name:      "sessions",
		Help:      "Wizard sessions currently held in memory.",
	}, func() float64 { return float64(count()) }))
}

// ObserveRequest records one finished HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

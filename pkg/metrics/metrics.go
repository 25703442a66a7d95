// Package metrics provides Prometheus instrumentation for the admission
// layer: admission decisions, wait-queue depth, permission broker activity,
// and request durations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metric vectors for the admission layer.
type Collector struct {
	admissions   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	queueDepth   prometheus.GaugeFunc
	pendingPerms prometheus.GaugeFunc
	permissions  *prometheus.CounterVec
	storeErrors  prometheus.CounterFunc
}

type collectorConfig struct {
	namespace string
	registry  prometheus.Registerer
	buckets   []float64
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

// WithNamespace sets the Prometheus metric namespace.
func WithNamespace(ns string) CollectorOption {
	return func(c *collectorConfig) { c.namespace = ns }
}

// WithRegistry registers metrics with the given Registerer instead of
// prometheus.DefaultRegisterer.
func WithRegistry(r prometheus.Registerer) CollectorOption {
	return func(c *collectorConfig) { c.registry = r }
}

// WithBuckets sets custom histogram buckets for request duration.
func WithBuckets(b []float64) CollectorOption {
	return func(c *collectorConfig) { c.buckets = b }
}

var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// NewCollector creates a Collector and registers its metrics.
//
// Metrics registered:
//   - {ns}_admissions_total            counter   (outcome)
//   - {ns}_request_duration_seconds   histogram (endpoint_class)
//   - {ns}_queue_depth                gauge
//   - {ns}_permission_pending         gauge
//   - {ns}_permission_decisions_total counter   (decision, source)
//   - {ns}_store_errors_total         counter
//
// queueDepth, pendingPerms, and storeErrors are sampled lazily from the
// supplied functions at scrape time. Default namespace is "agentgate".
func NewCollector(queueSize, pendingCount, storeErrorCount func() int, opts ...CollectorOption) *Collector {
	cfg := &collectorConfig{
		namespace: "agentgate",
		registry:  prometheus.DefaultRegisterer,
		buckets:   defaultBuckets,
	}
	for _, o := range opts {
		o(cfg)
	}

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Name:      "admissions_total",
		Help:      "Total admission decisions partitioned by outcome.",
	}, []string{"outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Name:      "request_duration_seconds",
		Help:      "Duration of admitted requests in seconds.",
		Buckets:   cfg.buckets,
	}, []string{"endpoint_class"})

	queueDepth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: cfg.namespace,
		Name:      "queue_depth",
		Help:      "Number of requests parked in the wait queue.",
	}, func() float64 { return float64(queueSize()) })

	pendingPerms := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: cfg.namespace,
		Name:      "permission_pending",
		Help:      "Number of tool-use requests awaiting a decision.",
	}, func() float64 { return float64(pendingCount()) })

	permissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Name:      "permission_decisions_total",
		Help:      "Total permission outcomes partitioned by decision and source.",
	}, []string{"decision", "source"})

	storeErrors := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Name:      "store_errors_total",
		Help:      "Total store operations that failed.",
	}, func() float64 { return float64(storeErrorCount()) })

	cfg.registry.MustRegister(admissions, duration, queueDepth, pendingPerms, permissions, storeErrors)

	return &Collector{
		admissions:   admissions,
		duration:     duration,
		queueDepth:   queueDepth,
		pendingPerms: pendingPerms,
		permissions:  permissions,
		storeErrors:  storeErrors,
	}
}

// ObserveAdmission records one admission decision.
func (c *Collector) ObserveAdmission(outcome string) {
	c.admissions.WithLabelValues(outcome).Inc()
}

// ObserveRequestDuration records the duration of a finished request.
func (c *Collector) ObserveRequestDuration(endpointClass string, d time.Duration) {
	c.duration.WithLabelValues(endpointClass).Observe(d.Seconds())
}

// ObservePermission records one permission outcome. source is "rule",
// "respond", "timeout", or "cancel".
func (c *Collector) ObservePermission(decision, source string) {
	c.permissions.WithLabelValues(decision, source).Inc()
}

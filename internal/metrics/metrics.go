// Package metrics exposes ledger telemetry on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeCommitted = "committed"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Collector records ledger metrics.
type Collector struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	logLength   prometheus.Gauge
	liveLength  prometheus.Gauge
	shards      prometheus.Gauge
	totalSupply prometheus.Gauge
}

// NewCollector creates a collector registering under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "icrc_ledger"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Mutating ledger operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	c.latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing a mutating operation, queueing excluded",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		},
		[]string{"operation"},
	)

	c.logLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "log_length",
		Help:      "Number of transactions ever recorded",
	})
	c.liveLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_log_length",
		Help:      "Number of transactions in the live log",
	})
	c.shards = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "archive",
		Name:      "shards",
		Help:      "Number of sealed archive shards",
	})
	c.totalSupply = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "total_supply",
		Help:      "Sum of all balances",
	})

	c.registry.MustRegister(
		c.operations,
		c.latency,
		c.logLength,
		c.liveLength,
		c.shards,
		c.totalSupply,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one mutating operation.
func (c *Collector) ObserveOperation(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.latency.WithLabelValues(operation).Observe(d.Seconds())
}

// SetState publishes the ledger size gauges.
func (c *Collector) SetState(logLength, liveLength uint64, shards int, totalSupply uint64) {
	if c == nil {
		return
	}
	c.logLength.Set(float64(logLength))
	c.liveLength.Set(float64(liveLength))
	c.shards.Set(float64(shards))
	c.totalSupply.Set(float64(totalSupply))
}

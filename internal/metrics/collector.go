// Package metrics exposes compliance check metrics in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/config"
)

// Cache lookup outcomes for RecordCacheLookup.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Collector owns the service's metrics and the registry they are served from.
type Collector struct {
	registry *prometheus.Registry

	checksTotal     *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	checkDuration   *prometheus.HistogramVec
	cacheRequests   *prometheus.CounterVec
	persistFailures prometheus.Counter
	wsClients       prometheus.Gauge
}

// NewCollector registers all metrics on registry, or on a fresh registry
// when registry is nil.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "sentinel"
	}

	c := &Collector{
		registry: registry,
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Compliance checks by platform and risk level.",
		}, []string{"platform", "risk"}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Violations found by type.",
		}, []string{"type"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Time spent running the compliance engine.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"source"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Check records that could not be saved.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected live event subscribers.",
		}),
	}

	registry.MustRegister(
		c.checksTotal,
		c.violationsTotal,
		c.checkDuration,
		c.cacheRequests,
		c.persistFailures,
		c.wsClients,
	)

	return c
}

// RecordCheck records one finished check. source is "api" or "batch".
func (c *Collector) RecordCheck(source, platform string, result compliance.Result, duration time.Duration) {
	c.checksTotal.WithLabelValues(platform, string(result.RiskLevel)).Inc()
	for _, v := range result.Violations {
		c.violationsTotal.WithLabelValues(v.Type.String()).Inc()
	}
	c.checkDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache lookup with outcome CacheHit, CacheMiss or CacheError.
func (c *Collector) RecordCacheLookup(outcome string) {
	c.cacheRequests.WithLabelValues(outcome).Inc()
}

// RecordPersistFailure counts a record that failed to save.
func (c *Collector) RecordPersistFailure() {
	c.persistFailures.Inc()
}

// SetWebSocketClients sets the connected client gauge.
func (c *Collector) SetWebSocketClients(n int) {
	c.wsClients.Set(float64(n))
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Package http provides the HTTP transport adapter for the enforcement data plane.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the enforcement data plane.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	DecisionsTotal    *prometheus.CounterVec
	EmbeddingDuration prometheus.Histogram
	TelemetryDrops    prometheus.Counter
	ActiveRules       prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boundaryplane",
				Name:      "requests_total",
				Help:      "Total number of enforcement requests processed",
			},
			[]string{"method", "status"}, // method=POST, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "boundaryplane",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boundaryplane",
				Name:      "decisions_total",
				Help:      "Total enforcement decisions by outcome",
			},
			[]string{"outcome"}, // outcome=allow/block/modify
		),
		EmbeddingDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "boundaryplane",
				Name:      "embedding_request_duration_seconds",
				Help:      "Duration of intent embedding requests",
				Buckets:   prometheus.DefBuckets,
			},
		),
		TelemetryDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "boundaryplane",
				Name:      "telemetry_drops_total",
				Help:      "Total telemetry records dropped due to backpressure",
			},
		),
		ActiveRules: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "boundaryplane",
				Name:      "active_rules",
				Help:      "Number of anchor rules currently loaded",
			},
		),
	}
}

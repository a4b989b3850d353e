// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Collection metrics
	SamplesCollected *prometheus.CounterVec
	CollectionErrors *prometheus.CounterVec
	RelayFetchErrors *prometheus.CounterVec

	// Scoring metrics
	ScoringCycles       *prometheus.CounterVec
	ScoringDuration     prometheus.Histogram
	OverallScore        prometheus.Gauge
	ConfidenceLevel     prometheus.Gauge
	AnomaliesDetected   *prometheus.CounterVec
	ComponentScoreGauge *prometheus.GaugeVec

	// Broadcast metrics
	WSClientsConnected prometheus.Gauge
	MessagesPublished  prometheus.Counter
	MessagesDropped    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCollection prometheus.Gauge
	LastSuccessfulScore      prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ethpulse"
	}

	return &Metrics{
		SamplesCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "samples_collected_total",
			Help:      "Total number of samples collected by kind",
		}, []string{"kind"}),
		CollectionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "collection_errors_total",
			Help:      "Total number of collection errors by kind",
		}, []string{"kind"}),
		RelayFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "relay_fetch_errors_total",
			Help:      "Total number of relay fetch errors by relay",
		}, []string{"relay"}),

		ScoringCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "cycles_total",
			Help:      "Total number of scoring cycles by status",
		}, []string{"status"}),
		ScoringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "cycle_duration_seconds",
			Help:      "Scoring cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OverallScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "overall_score",
			Help:      "Most recent overall network health score",
		}),
		ConfidenceLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "confidence_level",
			Help:      "Most recent scoring confidence level",
		}),
		AnomaliesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "anomalies_detected_total",
			Help:      "Total number of anomalies detected by metric and severity",
		}, []string{"metric", "severity"}),
		ComponentScoreGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "component_score",
			Help:      "Most recent per-component health score",
		}, []string{"component"}),

		WSClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "ws_clients_connected",
			Help:      "Number of connected WebSocket clients",
		}),
		MessagesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to subscribers",
		}),
		MessagesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped due to slow clients",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulCollection: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_collection_timestamp",
			Help:      "Unix timestamp of last successful collection cycle",
		}),
		LastSuccessfulScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_score_timestamp",
			Help:      "Unix timestamp of last successful scoring cycle",
		}),
	}
}

// RecordScore updates the score gauges from a completed cycle.
func (m *Metrics) RecordScore(overall, confidence float64, components map[string]float64) {
	m.OverallScore.Set(overall)
	m.ConfidenceLevel.Set(confidence)
	for name, score := range components {
		m.ComponentScoreGauge.WithLabelValues(name).Set(score)
	}
}

// RecordRelayError increments the relay fetch error counter.
func (m *Metrics) RecordRelayError(relay string) {
	m.RelayFetchErrors.WithLabelValues(relay).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

package vectorstore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsWritten counts vectors written, by engine.
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repoindex",
			Subsystem: "vectorstore",
			Name:      "records_written_total",
			Help:      "Total number of chunk vectors written",
		},
		[]string{"engine"},
	)

	// WritesTotal counts Store calls.
	// Labels: engine, result (ok, dimension_mismatch, provider_mismatch, invalid_vector, error)
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repoindex",
			Subsystem: "vectorstore",
			Name:      "writes_total",
			Help:      "Total number of batch writes by result",
		},
		[]string{"engine", "result"},
	)

	// DimensionMismatches counts rejected writes and lookups whose vector
	// length disagreed with the collection.
	DimensionMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repoindex",
			Subsystem: "vectorstore",
			Name:      "dimension_mismatches_total",
			Help:      "Total number of embedding dimension mismatches",
		},
	)

	// CollectionsGauge tracks the number of indexed repositories.
	CollectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "repoindex",
			Subsystem: "vectorstore",
			Name:      "collections",
			Help:      "Number of repository collections in the manifest",
		},
		[]string{"engine"},
	)

	// CollectionsByStatus tracks collections by health status.
	// Labels: status (healthy, empty, inconsistent)
	CollectionsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "repoindex",
			Subsystem: "vectorstore",
			Name:      "collections_by_status",
			Help:      "Collections by health status at the last health check",
		},
		[]string{"status"},
	)

	// HealthStatus indicates current health status (1=healthy, 0=degraded).
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "repoindex",
			Subsystem: "vectorstore",
			Name:      "health_status",
			Help:      "Current health status (1=healthy, 0=degraded)",
		},
	)

	// SearchDuration tracks nearest-neighbour query latency.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repoindex",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of search operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"engine"},
	)
)

func writeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrProviderMismatch):
		return "provider_mismatch"
	case errors.Is(err, ErrZeroVector), errors.Is(err, ErrInvalidVector):
		return "invalid_vector"
	default:
		return "error"
	}
}

func recordWrite(engine string, err error) {
	WritesTotal.WithLabelValues(engine, writeResult(err)).Inc()
}

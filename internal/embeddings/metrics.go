package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/repoindex/internal/embeddings"

// Metrics records gateway calls. A nil *Metrics records nothing.
type Metrics struct {
	latency metric.Float64Histogram
	texts   metric.Int64Histogram
	failed  metric.Int64Counter
}

// Call describes one gateway request, which may span several backend batches.
type Call struct {
	Provider  string
	Operation string
	Texts     int
	Elapsed   time.Duration
	Err       error
}

func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{}
	var errLatency, errTexts, errFailed error
	m.latency, errLatency = meter.Float64Histogram("repoindex.embedding.duration_seconds",
		metric.WithDescription("Embedding request latency by provider tag and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 10, 30))
	m.texts, errTexts = meter.Int64Histogram("repoindex.embedding.texts",
		metric.WithDescription("Texts per embedding request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 16, 64, 256, 1024, 4096))
	m.failed, errFailed = meter.Int64Counter("repoindex.embedding.errors_total",
		metric.WithDescription("Failed embedding requests by provider tag and operation"),
		metric.WithUnit("{error}"))

	if err := errors.Join(errLatency, errTexts, errFailed); err != nil && logger != nil {
		logger.Warn("embedding instruments unavailable", zap.Error(err))
	}
	return m
}

func (m *Metrics) Record(ctx context.Context, c Call) {
	if m == nil {
		return
	}
	set := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("provider", c.Provider),
		attribute.String("operation", c.Operation),
	))
	if m.latency != nil {
		m.latency.Record(ctx, c.Elapsed.Seconds(), set)
	}
	if m.texts != nil && c.Texts > 0 {
		m.texts.Record(ctx, int64(c.Texts), set)
	}
	if m.failed != nil && c.Err != nil {
		m.failed.Add(ctx, 1, set)
	}
}

package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_Record(t *testing.T) {
	rec := telemetry.NewRecorder()
	m := newMetrics(rec.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.Record(ctx, Call{Provider: "openai", Operation: "embed_batch", Texts: 10, Elapsed: 100 * time.Millisecond})
	m.Record(ctx, Call{Provider: "local", Operation: "embed", Texts: 1, Elapsed: 50 * time.Millisecond})
	m.Record(ctx, Call{Provider: "openai", Operation: "embed_batch", Texts: 5, Elapsed: 25 * time.Millisecond, Err: errors.New("boom")})

	data, err := rec.Collect(ctx)
	require.NoError(t, err)

	hist, ok := data["repoindex.embedding.duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok, "duration histogram missing")
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
	assert.Len(t, hist.DataPoints, 2, "one series per provider/operation pair")

	texts, ok := data["repoindex.embedding.texts"].(metricdata.Histogram[int64])
	require.True(t, ok, "texts histogram missing")
	var sum int64
	for _, dp := range texts.DataPoints {
		sum += dp.Sum
	}
	assert.Equal(t, int64(16), sum)

	failed, err := rec.Int64Sum(ctx, "repoindex.embedding.errors_total", attribute.String("provider", "openai"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Record(context.Background(), Call{Provider: "local", Operation: "embed", Texts: 1, Elapsed: time.Millisecond})
	})
}

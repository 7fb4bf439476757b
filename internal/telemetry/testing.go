package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Recorder keeps spans and metrics in memory. Components under test take
// its Tracer or Meter instead of the global providers.
type Recorder struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &Recorder{
		spans:  spans,
		reader: reader,
		tp:     sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

func (r *Recorder) Tracer(name string) oteltrace.Tracer { return r.tp.Tracer(name) }

func (r *Recorder) Meter(name string) metric.Meter { return r.mp.Meter(name) }

// Span returns the most recently ended span called name, or nil.
func (r *Recorder) Span(name string) sdktrace.ReadOnlySpan {
	ended := r.spans.Ended()
	for i := len(ended) - 1; i >= 0; i-- {
		if ended[i].Name() == name {
			return ended[i]
		}
	}
	return nil
}

// SpanNames lists ended spans in the order they ended.
func (r *Recorder) SpanNames() []string {
	ended := r.spans.Ended()
	names := make([]string, len(ended))
	for i, s := range ended {
		names[i] = s.Name()
	}
	return names
}

// SpanAttr returns the attribute key of span.
func SpanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// Collect reads every instrument, keyed by instrument name.
func (r *Recorder) Collect(ctx context.Context) (map[string]metricdata.Aggregation, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out, nil
}

// Int64Sum adds up the data points of the int64 counter name whose
// attributes contain every pair in attrs.
func (r *Recorder) Int64Sum(ctx context.Context, name string, attrs ...attribute.KeyValue) (int64, error) {
	data, err := r.Collect(ctx)
	if err != nil {
		return 0, err
	}
	sum, ok := data[name].(metricdata.Sum[int64])
	if !ok {
		return 0, fmt.Errorf("no int64 counter %q", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if hasAll(dp.Attributes, attrs) {
			total += dp.Value
		}
	}
	return total, nil
}

func hasAll(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}

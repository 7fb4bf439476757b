package http

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/repoindex/internal/http"

var (
	latencyBuckets = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5}
	sizeBuckets    = []float64{128, 1 << 10, 8 << 10, 64 << 10, 512 << 10, 4 << 20}
)

// requestMetrics instruments the echo server. Instruments that failed to
// register stay nil and are skipped.
type requestMetrics struct {
	total    metric.Int64Counter
	latency  metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

func globalRequestMetrics(logger *zap.Logger) *requestMetrics {
	return newRequestMetrics(otel.Meter(meterName), logger)
}

func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	var (
		m    requestMetrics
		err  error
		errs []error
	)
	m.total, err = meter.Int64Counter("repoindex.http.requests_total",
		metric.WithDescription("HTTP requests by method, endpoint and status"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)
	m.latency, err = meter.Float64Histogram("repoindex.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	errs = append(errs, err)
	m.size, err = meter.Int64Histogram("repoindex.http.response_size_bytes",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	errs = append(errs, err)
	m.inFlight, err = meter.Int64UpDownCounter("repoindex.http.active_requests",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil && logger != nil {
		logger.Warn("some http instruments are unavailable", zap.Error(err))
	}
	return &m
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			set := metric.WithAttributeSet(attribute.NewSet(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", routeOf(c)),
				attribute.Int("status", c.Response().Status),
			))
			if m.total != nil {
				m.total.Add(ctx, 1, set)
			}
			if m.latency != nil {
				m.latency.Record(ctx, elapsed, set)
			}
			if m.size != nil {
				m.size.Record(ctx, c.Response().Size, set)
			}
			return err
		}
	}
}

// routeOf labels by registered route so raw URLs never become label values.
// Unmatched requests share "/".
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "/"
}

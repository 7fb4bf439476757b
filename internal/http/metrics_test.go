package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/repoindex/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestRequestMetrics_Middleware(t *testing.T) {
	rec := telemetry.NewRecorder()
	m := newRequestMetrics(rec.Meter(meterName), zap.NewNop())

	e := echo.New()
	e.Use(m.middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	ctx := context.Background()
	data, err := rec.Collect(ctx)
	require.NoError(t, err)
	for _, name := range []string{
		"repoindex.http.requests_total",
		"repoindex.http.request_duration_seconds",
		"repoindex.http.response_size_bytes",
		"repoindex.http.active_requests",
	} {
		assert.Contains(t, data, name)
	}

	n, err := rec.Int64Sum(ctx, "repoindex.http.requests_total", attribute.String("endpoint", "/health"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRequestMetrics_NilLogger(t *testing.T) {
	rec := telemetry.NewRecorder()
	m := newRequestMetrics(rec.Meter(meterName), nil)

	e := echo.New()
	e.Use(m.middleware())
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/no/such/page", nil))

	n, err := rec.Int64Sum(context.Background(), "repoindex.http.requests_total",
		attribute.String("method", http.MethodGet))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

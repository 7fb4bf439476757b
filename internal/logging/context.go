package logging

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type runCtxKey struct{}
type repoCtxKey struct{}
type providerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if repo := RepoFromContext(ctx); repo != "" {
		fields = append(fields, zap.String("repo", repo))
	}
	if provider := ProviderFromContext(ctx); provider != "" {
		fields = append(fields, zap.String("provider", provider))
	}

	return fields
}

// NewRunID returns a fresh identifier for one indexing or search run.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID adds the run identifier to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run identifier, or "".
func RunIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(runCtxKey{}).(string)
	return v
}

// WithRepo adds the repository name ("owner/repo") to context.
func WithRepo(ctx context.Context, repo string) context.Context {
	return context.WithValue(ctx, repoCtxKey{}, repo)
}

// RepoFromContext returns the repository name, or "".
func RepoFromContext(ctx context.Context) string {
	v, _ := ctx.Value(repoCtxKey{}).(string)
	return v
}

// WithProvider adds the embedding provider tag to context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerCtxKey{}, provider)
}

// ProviderFromContext returns the embedding provider tag, or "".
func ProviderFromContext(ctx context.Context) string {
	v, _ := ctx.Value(providerCtxKey{}).(string)
	return v
}

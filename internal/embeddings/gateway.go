package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Backend is one embedding implementation.
type Backend interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// Result is one embedded text.
type Result struct {
	Vector   []float32
	Provider string
}

var errVectorCount = errors.New("backend returned wrong number of vectors")

// Gateway routes embedding requests to the backend of the requested provider.
type Gateway struct {
	backends    map[Provider]Backend
	batchSize   int
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	metrics     *Metrics
	tracer      trace.Tracer
	logger      *zap.Logger

	// sharedClaude is set when claude requests use the local backend.
	sharedClaude bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBackend replaces the backend for p. Overriding ProviderLocal also
// changes what claude requests use unless claude is overridden too.
func WithBackend(p Provider, b Backend) Option {
	return func(g *Gateway) {
		g.backends[p] = b
	}
}

type queryKey struct{}

// ForQuery marks texts embedded under ctx as search queries. Backends with
// separate query and document modes use it; others ignore it.
func ForQuery(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryKey{}, true)
}

// IsQuery reports whether ctx was marked by ForQuery.
func IsQuery(ctx context.Context) bool {
	q, _ := ctx.Value(queryKey{}).(bool)
	return q
}

// WithLogger sets the gateway logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New builds a Gateway with the default backends configured from cfg.
// Backends connect lazily, so a provider that is never requested never
// loads a model or dials out.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	ec := cfg.Embeddings
	if ec.BatchSize <= 0 || ec.Concurrency <= 0 {
		return nil, fmt.Errorf("embeddings batch_size and concurrency must be positive")
	}
	if ec.RateLimit < 0 {
		return nil, fmt.Errorf("embeddings rate_limit cannot be negative")
	}

	g := &Gateway{
		backends: map[Provider]Backend{
			ProviderLocal: NewLocalBackend(LocalConfig{
				Model:    ec.LocalModel,
				CacheDir: ec.CacheDir,
			}),
			ProviderOpenAI: NewOpenAIBackend(OpenAIConfig{
				APIKey: cfg.OpenAI.APIKey,
				Model:  ec.OpenAIModel,
			}),
			ProviderGemini: NewGeminiBackend(GeminiConfig{
				APIKey: cfg.Gemini.APIKey,
				Model:  ec.GeminiModel,
			}),
		},
		batchSize:   ec.BatchSize,
		concurrency: ec.Concurrency,
		timeout:     ec.Timeout.Duration(),
		tracer:      otel.Tracer(instrumentationName),
		logger:      zap.NewNop(),
	}
	if g.timeout <= 0 {
		g.timeout = 30 * time.Second
	}
	if ec.RateLimit > 0 {
		burst := int(ec.RateLimit)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(ec.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(g)
	}
	if _, ok := g.backends[ProviderClaude]; !ok {
		g.backends[ProviderClaude] = g.backends[ProviderLocal]
		g.sharedClaude = true
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(g.logger)
	}
	return g, nil
}

// Embed embeds a single text.
func (g *Gateway) Embed(ctx context.Context, text string, provider Provider) (Result, error) {
	results, err := g.embed(ctx, "embed", []string{text}, provider)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// EmbedBatch embeds texts in batches, several at a time, with one provider.
// Results are in input order. The first failure cancels the remaining
// batches.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, provider Provider) ([]Result, error) {
	return g.embed(ctx, "embed_batch", texts, provider)
}

func (g *Gateway) embed(ctx context.Context, op string, texts []string, provider Provider) ([]Result, error) {
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
	}
	backend := g.backends[provider]
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend for %s", ErrUnsupportedProvider, provider)
	}
	tag := provider.Tag()

	ctx, span := g.tracer.Start(ctx, "embeddings."+op, trace.WithAttributes(
		attribute.String("embedding.provider", tag),
		attribute.String("embedding.backend", backend.Name()),
		attribute.Int("embedding.texts", len(texts)),
	))
	defer span.End()

	begin := time.Now()
	vectors := make([][]float32, len(texts))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		eg.Go(func() error {
			vecs, err := g.call(egctx, op, provider, backend, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	err := eg.Wait()
	g.metrics.Record(ctx, Call{Provider: tag, Operation: op, Texts: len(texts), Elapsed: time.Since(begin), Err: err})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("embedding failed",
			zap.String("provider", tag),
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return nil, err
	}

	results := make([]Result, len(vectors))
	for i, v := range vectors {
		results[i] = Result{Vector: v, Provider: tag}
	}
	g.logger.Debug("embedded texts",
		zap.String("provider", tag),
		zap.Int("texts", len(texts)),
		zap.Int("dimension", len(vectors[0])),
		zap.Duration("elapsed", time.Since(begin)),
	)
	return results, nil
}

// call runs one backend request under the rate limit and per-call timeout.
func (g *Gateway) call(ctx context.Context, op string, provider Provider, backend Backend, texts []string) ([][]float32, error) {
	if provider.Remote() && g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vecs, err := backend.Embed(callCtx, texts)
	if err != nil {
		return nil, &ProviderError{Provider: provider.Tag(), Op: op, Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &ProviderError{
			Provider: provider.Tag(),
			Op:       op,
			Err:      fmt.Errorf("%w: got %d for %d texts", errVectorCount, len(vecs), len(texts)),
		}
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, &ProviderError{
				Provider: provider.Tag(),
				Op:       op,
				Err:      fmt.Errorf("empty vector for text %d", i),
			}
		}
	}
	return vecs, nil
}

// Close releases backends that hold resources, such as a loaded ONNX model.
func (g *Gateway) Close() error {
	var errs []error
	for _, p := range Providers() {
		if p == ProviderClaude && g.sharedClaude {
			continue
		}
		if c, ok := g.backends[p].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

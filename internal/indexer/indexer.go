package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/assembler"
	"github.com/fyrsmithlabs/repoindex/internal/embeddings"
	"github.com/fyrsmithlabs/repoindex/internal/logging"
	"github.com/fyrsmithlabs/repoindex/internal/reranker"
	"github.com/fyrsmithlabs/repoindex/internal/source"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultStoreBatch is the number of chunks written per Store call.
const DefaultStoreBatch = 256

// rerankPool is how many candidates per requested hit a reranker sees.
const rerankPool = 3

var (
	// ErrMissingDependency indicates an Indexer built without a required
	// collaborator.
	ErrMissingDependency = errors.New("indexer dependency missing")

	// ErrNoSource indicates Index was called without a source.
	ErrNoSource = errors.New("source is required")
)

// Config wires an Indexer.
type Config struct {
	Assembler  *assembler.Assembler
	Embedder   Embedder
	Store      VectorStore
	StoreBatch int

	// Reranker, when set, reorders a wider candidate set before Search
	// truncates to topK.
	Reranker reranker.Reranker

	// Tracer defaults to the global provider's.
	Tracer trace.Tracer
	Logger *zap.Logger
}

// Indexer runs indexing and search for repositories.
type Indexer struct {
	assembler  *assembler.Assembler
	embedder   Embedder
	store      VectorStore
	storeBatch int
	reranker   reranker.Reranker
	tracer     trace.Tracer
	logger     *zap.Logger
}

// New creates an Indexer.
func New(cfg Config) (*Indexer, error) {
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("%w: assembler", ErrMissingDependency)
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrMissingDependency)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: vector store", ErrMissingDependency)
	}
	if cfg.StoreBatch < 0 {
		return nil, fmt.Errorf("store batch cannot be negative: %d", cfg.StoreBatch)
	}
	if cfg.StoreBatch == 0 {
		cfg.StoreBatch = DefaultStoreBatch
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("repoindex.indexer")
	}
	return &Indexer{
		assembler:  cfg.Assembler,
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		storeBatch: cfg.StoreBatch,
		reranker:   cfg.Reranker,
		tracer:     cfg.Tracer,
		logger:     cfg.Logger,
	}, nil
}

// Index fetches src, chunks it, embeds every chunk with provider and stores
// the vectors in repo's collection. All chunks of one run share a provider
// and dimension. A zero, non-finite or wrongly sized vector fails the run
// before anything is stored; a later storage failure keeps earlier batches.
func (ix *Indexer) Index(ctx context.Context, repo string, src source.Source, provider embeddings.Provider) (_ *Report, err error) {
	start := time.Now()
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	if _, err := vectorstore.CollectionName(repo); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrNoSource
	}

	report := &Report{
		RunID:    logging.NewRunID(),
		Repo:     repo,
		Source:   src.Name(),
		Provider: provider.Tag(),
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	ctx = logging.WithRepo(ctx, repo)
	ctx = logging.WithProvider(ctx, report.Provider)

	ctx, span := ix.tracer.Start(ctx, "indexer.Index")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo", repo),
		attribute.String("provider", report.Provider),
		attribute.String("source", report.Source),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	log := ix.logger.With(logging.ContextFields(ctx)...)
	log.Info("indexing started", zap.String("source", report.Source))

	listing, err := src.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", report.Source, err)
	}
	report.FilesFetched = len(listing.Files)
	report.FetchSkipped = len(listing.Skipped)
	for _, skipped := range listing.Skipped {
		log.Warn("file skipped by source", zap.String("path", skipped.Path), zap.Error(skipped.Err))
	}

	assembled, err := ix.assembler.Assemble(ctx, listing.Files)
	if err != nil {
		return nil, fmt.Errorf("assembling chunks: %w", err)
	}
	chunks := assembled.Chunks
	report.FilesKept = assembled.Report.FilesKept
	report.Skipped = assembled.Report.Skipped
	report.Chunks = len(chunks)
	report.ShortChunksDropped = assembled.Report.ShortChunksDropped
	report.SecretsRedacted = assembled.Report.SecretsRedacted
	report.Languages = assembled.Report.Languages

	if len(chunks) == 0 {
		report.Duration = time.Since(start)
		log.Info("nothing to index", zap.Int("files_fetched", report.FilesFetched))
		return report, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	results, err := ix.embedder.EmbedBatch(ctx, texts, provider)
	if err != nil {
		return nil, err
	}
	if len(results) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(results), len(chunks))
	}

	dim := len(results[0].Vector)
	for i, r := range results {
		if len(r.Vector) != dim {
			return nil, &vectorstore.DimensionError{Repo: repo, Stored: dim, Got: len(r.Vector)}
		}
		// Every vector is checked before the first batch is written.
		if _, err := vectorstore.Normalize(r.Vector); err != nil {
			return nil, fmt.Errorf("chunk %d of %s: %w", chunks[i].GlobalID, chunks[i].FilePath, err)
		}
		chunks[i].Embedding = r.Vector
	}
	report.Dimension = dim
	span.SetAttributes(attribute.Int("chunks", len(chunks)), attribute.Int("dim", dim))

	for lo := 0; lo < len(chunks); lo += ix.storeBatch {
		hi := min(lo+ix.storeBatch, len(chunks))
		if err := ix.store.Store(ctx, repo, report.Provider, chunks[lo:hi], dim); err != nil {
			return nil, fmt.Errorf("storing chunks %d-%d: %w", lo, hi-1, err)
		}
		if err := ix.store.Flush(ctx); err != nil {
			return nil, err
		}
		report.BatchesStored++
	}

	report.Duration = time.Since(start)
	log.Info("indexing complete",
		zap.Int("files_kept", report.FilesKept),
		zap.Int("chunks", report.Chunks),
		zap.Int("dim", dim),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// Search embeds query with provider and returns the topK nearest chunks of
// repo. The provider must be the one the repository was indexed with;
// any other gives vectorstore.ErrProviderMismatch.
func (ix *Indexer) Search(ctx context.Context, repo, query string, provider embeddings.Provider, topK int) (*SearchResult, error) {
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, embeddings.ErrEmptyInput
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", vectorstore.ErrInvalidTopK, topK)
	}

	result := &SearchResult{RunID: logging.NewRunID(), Repo: repo, Provider: provider.Tag()}
	ctx = logging.WithRunID(ctx, result.RunID)
	ctx = logging.WithRepo(ctx, repo)
	ctx = logging.WithProvider(ctx, result.Provider)

	ctx, span := ix.tracer.Start(ctx, "indexer.Search")
	defer span.End()
	span.SetAttributes(attribute.String("repo", repo), attribute.Int("top_k", topK))

	embedded, err := ix.embedder.Embed(embeddings.ForQuery(ctx), query, provider)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	k := topK
	if ix.reranker != nil {
		k = topK * rerankPool
	}
	hits, err := ix.store.Search(ctx, repo, result.Provider, embedded.Vector, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if ix.reranker != nil {
		if hits, err = ix.reranker.Rerank(ctx, query, hits, topK); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("reranking: %w", err)
		}
		span.SetAttributes(attribute.Bool("reranked", true))
	}
	result.Hits = hits

	ix.logger.Debug("search complete",
		append(logging.ContextFields(ctx), zap.Int("hits", len(hits)))...,
	)
	return result, nil
}

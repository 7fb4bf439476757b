package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("repoindex.vectorstore.chromem")

var errPrecomputedOnly = errors.New("chromem collections only accept precomputed embeddings")

// precomputedOnly stops chromem from falling back to its default OpenAI
// embedder when a collection is loaded from disk.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// chromemEngine stores collections in an embedded chromem-go database.
// Every document is gob-persisted when added.
type chromemEngine struct {
	db     *chromem.DB
	path   string
	logger *zap.Logger
}

func newChromemEngine(cfg Config, logger *zap.Logger) (*chromemEngine, error) {
	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	path = filepath.Join(path, "chromem")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem engine initialized",
		zap.String("path", path),
		zap.Bool("compress", cfg.Compress),
		zap.Int("collections", len(db.ListCollections())),
	)
	return &chromemEngine{db: db, path: path, logger: logger}, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (e *chromemEngine) Name() string { return EngineChromem }

func (e *chromemEngine) collection(name string) *chromem.Collection {
	return e.db.GetCollection(name, precomputedOnly)
}

func (e *chromemEngine) EnsureCollection(ctx context.Context, name string, dim int) error {
	_, span := chromemTracer.Start(ctx, "chromem.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dim", dim))

	meta := map[string]string{"embedding_dim": strconv.Itoa(dim)}
	if _, err := e.db.GetOrCreateCollection(name, meta, precomputedOnly); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

func (e *chromemEngine) Exists(_ context.Context, name string) (bool, error) {
	return e.collection(name) != nil, nil
}

func (e *chromemEngine) Add(ctx context.Context, name string, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "chromem.Add")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("records", len(records)))

	col := e.collection(name)
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: r.Vector,
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", name, err)
	}
	return nil
}

func (e *chromemEngine) Query(ctx context.Context, name string, vector []float32, k int) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "chromem.Query")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("k", k))

	col := e.collection(name)
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	// chromem requires nResults <= doc count.
	count := col.Count()
	if count == 0 {
		return []Match{}, nil
	}
	k = min(k, count)

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", name, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: r.Metadata,
		}
	}
	span.SetAttributes(attribute.Int("results", len(matches)))
	return matches, nil
}

func (e *chromemEngine) Count(_ context.Context, name string) (int, error) {
	col := e.collection(name)
	if col == nil {
		return 0, ErrCollectionNotFound
	}
	return col.Count(), nil
}

func (e *chromemEngine) Delete(_ context.Context, name string) error {
	if err := e.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (e *chromemEngine) Ping(context.Context) error {
	if _, err := os.Stat(e.path); err != nil {
		return fmt.Errorf("chromem directory: %w", err)
	}
	return nil
}

// Flush is a no-op: chromem writes each document file during Add.
func (e *chromemEngine) Flush(context.Context) error { return nil }

func (e *chromemEngine) Close() error {
	e.logger.Debug("chromem engine closed")
	return nil
}

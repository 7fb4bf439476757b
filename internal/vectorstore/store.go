package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/assembler"
	"github.com/fyrsmithlabs/repoindex/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("repoindex.vectorstore")

// Metadata keys attached to every stored chunk.
const (
	MetaRepoName   = "repo_name"
	MetaChunkID    = "chunk_id"
	MetaFilePath   = "file_path"
	MetaLocalIndex = "local_index"
)

// ManifestFile is the manifest database name inside Config.Path.
const ManifestFile = "manifest.db"

// Config configures a Store.
type Config struct {
	// Engine is "chromem" (default) or "qdrant".
	Engine string

	// Path holds the manifest and, for chromem, the collections.
	Path     string
	Compress bool

	QdrantHost     string
	QdrantPort     int
	QdrantTLS      bool
	MaxMessageSize int
}

// FromSettings converts the application's vector store section.
func FromSettings(vs config.VectorStoreConfig) Config {
	return Config{
		Engine:     vs.Engine,
		Path:       vs.Path,
		Compress:   vs.Compress,
		QdrantHost: vs.QdrantHost,
		QdrantPort: vs.QdrantPort,
		QdrantTLS:  vs.QdrantTLS,
	}
}

// Hit is one search result.
type Hit struct {
	ID         string  `json:"id"`
	ChunkID    int     `json:"chunk_id"`
	Score      float32 `json:"score"`
	Repo       string  `json:"repo_name"`
	FilePath   string  `json:"file_path"`
	LocalIndex int     `json:"local_index"`
	Content    string  `json:"content"`
}

// Collection is a handle to one repository's collection.
type Collection struct {
	Name string
	Info CollectionInfo

	// Exists is false for a repository that has not been written yet and
	// was requested without a dimension.
	Exists bool
}

// Store persists chunk vectors in one collection per repository and checks
// every write against the collection's recorded dimension and provider.
type Store struct {
	engine   Engine
	manifest *manifest
	logger   *zap.Logger

	// locks holds a *sync.Mutex per repository.
	locks sync.Map

	closeOnce sync.Once
	closeErr  error
}

// Open opens the engine and manifest selected by cfg.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}
	cfg.Path = path

	ctx := context.Background()
	engine, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	m, err := openManifest(ctx, filepath.Join(path, ManifestFile))
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	s := newStore(engine, m, logger)
	if infos, err := m.list(ctx); err == nil {
		CollectionsGauge.WithLabelValues(engine.Name()).Set(float64(len(infos)))
	}
	return s, nil
}

func newStore(engine Engine, m *manifest, logger *zap.Logger) *Store {
	return &Store{engine: engine, manifest: m, logger: logger}
}

// Engine returns the engine name.
func (s *Store) Engine() string {
	return s.engine.Name()
}

func (s *Store) repoLock(repo string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(repo, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GetCollection returns the collection for repo. With expectedDim > 0 the
// collection is created if missing, and an existing collection with another
// dimension gives a *DimensionError.
func (s *Store) GetCollection(ctx context.Context, repo string, expectedDim int) (*Collection, error) {
	name, err := CollectionName(repo)
	if err != nil {
		return nil, err
	}

	info, err := s.manifest.get(ctx, repo)
	switch {
	case errors.Is(err, ErrCollectionNotFound):
		if expectedDim <= 0 {
			return &Collection{Name: name, Info: CollectionInfo{Repo: repo, Collection: name}}, nil
		}
		mu := s.repoLock(repo)
		mu.Lock()
		defer mu.Unlock()

		if err := s.engine.EnsureCollection(ctx, name, expectedDim); err != nil {
			return nil, err
		}
		if info, err = s.manifest.reserve(ctx, repo, name, expectedDim); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if expectedDim > 0 && info.EmbeddingDim != expectedDim {
		DimensionMismatches.Inc()
		return nil, &DimensionError{Repo: repo, Stored: info.EmbeddingDim, Got: expectedDim}
	}
	return &Collection{Name: name, Info: *info, Exists: true}, nil
}

// Store writes chunks to repo's collection. Every chunk must carry an
// embedding of length dim. Vectors are L2-normalized before writing, and
// nothing is written if any vector is invalid or the dimension or provider
// disagrees with the collection. Writes to one repository are serialized.
func (s *Store) Store(ctx context.Context, repo, provider string, chunks []assembler.Chunk, dim int) (err error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Store")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo", repo),
		attribute.String("provider", provider),
		attribute.Int("chunks", len(chunks)),
		attribute.Int("dim", dim),
	)
	defer func() {
		recordWrite(s.engine.Name(), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	name, err := CollectionName(repo)
	if err != nil {
		return err
	}
	if provider == "" {
		return fmt.Errorf("%w: provider tag required", ErrInvalidConfig)
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dim)
	}
	if len(chunks) == 0 {
		return nil
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return &DimensionError{Repo: repo, Stored: dim, Got: len(c.Embedding)}
		}
		vec, err := Normalize(c.Embedding)
		if err != nil {
			return fmt.Errorf("chunk %d of %s: %w", c.GlobalID, c.FilePath, err)
		}
		records[i] = Record{
			ID:      DocumentID(repo, c.GlobalID),
			Vector:  vec,
			Content: c.Content,
			Metadata: map[string]string{
				MetaRepoName:   repo,
				MetaChunkID:    strconv.Itoa(c.GlobalID),
				MetaFilePath:   c.FilePath,
				MetaLocalIndex: strconv.Itoa(c.LocalIndex),
			},
		}
	}

	mu := s.repoLock(repo)
	mu.Lock()
	defer mu.Unlock()

	info, err := s.manifest.writeBatch(ctx, repo, name, provider, dim, func(ctx context.Context) (int, error) {
		if err := s.engine.EnsureCollection(ctx, name, dim); err != nil {
			return 0, err
		}
		if err := s.engine.Add(ctx, name, records); err != nil {
			return 0, err
		}
		return s.engine.Count(ctx, name)
	})
	if err != nil {
		if errors.Is(err, ErrDimensionMismatch) {
			DimensionMismatches.Inc()
		}
		return err
	}

	RecordsWritten.WithLabelValues(s.engine.Name()).Add(float64(len(records)))
	s.logger.Debug("stored chunks",
		zap.String("repo", repo),
		zap.String("collection", name),
		zap.Int("chunks", len(records)),
		zap.Int("doc_count", info.DocCount),
	)
	return nil
}

// Search returns the topK chunks nearest to query, which must come from the
// provider the collection was built with. A repository that was never
// written gives ErrCollectionNotFound.
func (s *Store) Search(ctx context.Context, repo, provider string, query []float32, topK int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo", repo),
		attribute.String("provider", provider),
		attribute.Int("top_k", topK),
	)

	start := time.Now()
	defer func() { SearchDuration.WithLabelValues(s.engine.Name()).Observe(time.Since(start).Seconds()) }()

	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if provider == "" {
		return nil, fmt.Errorf("%w: provider tag required", ErrInvalidConfig)
	}
	name, err := CollectionName(repo)
	if err != nil {
		return nil, err
	}

	info, err := s.manifest.get(ctx, repo)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			span.SetStatus(codes.Error, "collection not found")
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, repo)
		}
		return nil, err
	}
	// A row reserved by GetCollection has no provider until its first write.
	if info.Provider != "" && info.Provider != provider {
		return nil, fmt.Errorf("%w for %s: collection built with %q, query embedded with %q",
			ErrProviderMismatch, repo, info.Provider, provider)
	}
	if len(query) != info.EmbeddingDim {
		return nil, &DimensionError{Repo: repo, Stored: info.EmbeddingDim, Got: len(query)}
	}
	if info.DocCount == 0 {
		return []Hit{}, nil
	}

	vec, err := Normalize(query)
	if err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}

	matches, err := s.engine.Query(ctx, name, vec, min(topK, info.DocCount))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = hitFromMatch(m)
	}
	span.SetAttributes(attribute.Int("results", len(hits)))
	return hits, nil
}

func hitFromMatch(m Match) Hit {
	h := Hit{
		ID:       m.ID,
		Score:    m.Score,
		Repo:     m.Metadata[MetaRepoName],
		FilePath: m.Metadata[MetaFilePath],
		Content:  m.Content,
	}
	h.ChunkID, _ = strconv.Atoi(m.Metadata[MetaChunkID])
	h.LocalIndex, _ = strconv.Atoi(m.Metadata[MetaLocalIndex])
	if h.Repo == "" {
		if repo, id, err := parseDocumentID(m.ID); err == nil {
			h.Repo, h.ChunkID = repo, id
		}
	}
	return h
}

// Collections lists every indexed repository.
func (s *Store) Collections(ctx context.Context) ([]CollectionInfo, error) {
	return s.manifest.list(ctx)
}

// DeleteCollection removes repo's collection and manifest row.
func (s *Store) DeleteCollection(ctx context.Context, repo string) error {
	name, err := CollectionName(repo)
	if err != nil {
		return err
	}

	mu := s.repoLock(repo)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.manifest.get(ctx, repo); err != nil {
		return err
	}
	if err := s.engine.Delete(ctx, name); err != nil {
		return err
	}
	if err := s.manifest.delete(ctx, repo); err != nil {
		return err
	}
	s.logger.Info("deleted collection", zap.String("repo", repo), zap.String("collection", name))
	return nil
}

// Flush makes every completed write durable.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.engine.Flush(ctx); err != nil {
		return fmt.Errorf("flushing %s engine: %w", s.engine.Name(), err)
	}
	return s.manifest.checkpoint(ctx)
}

// Close flushes and releases the store. Later calls return the first
// result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.Flush(context.Background()); err != nil {
			errs = append(errs, err)
		}
		if err := s.engine.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.manifest.close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

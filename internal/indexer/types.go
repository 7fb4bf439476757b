package indexer

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/assembler"
	"github.com/fyrsmithlabs/repoindex/internal/embeddings"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
)

// Embedder embeds texts with an explicit provider.
type Embedder interface {
	Embed(ctx context.Context, text string, provider embeddings.Provider) (embeddings.Result, error)
	EmbedBatch(ctx context.Context, texts []string, provider embeddings.Provider) ([]embeddings.Result, error)
}

// VectorStore persists and searches chunk vectors.
type VectorStore interface {
	Store(ctx context.Context, repo, provider string, chunks []assembler.Chunk, dim int) error
	Search(ctx context.Context, repo, provider string, query []float32, topK int) ([]vectorstore.Hit, error)
	Flush(ctx context.Context) error
}

// Report summarises one Index run.
type Report struct {
	RunID    string `json:"run_id"`
	Repo     string `json:"repo_name"`
	Source   string `json:"source"`
	Provider string `json:"provider"`

	FilesFetched int            `json:"files_fetched"`
	FetchSkipped int            `json:"fetch_skipped"`
	FilesKept    int            `json:"files_kept"`
	Skipped      map[string]int `json:"skipped,omitempty"`

	Chunks             int            `json:"chunks"`
	ShortChunksDropped int            `json:"short_chunks_dropped"`
	SecretsRedacted    int            `json:"secrets_redacted"`
	Languages          map[string]int `json:"languages,omitempty"`

	Dimension     int           `json:"embedding_dim"`
	BatchesStored int           `json:"batches_stored"`
	Duration      time.Duration `json:"duration"`
}

// SearchResult is the answer to one query.
type SearchResult struct {
	RunID    string            `json:"run_id"`
	Repo     string            `json:"repo_name"`
	Provider string            `json:"provider"`
	Hits     []vectorstore.Hit `json:"hits"`
}

package vectorstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/repoindex/internal/assembler"
	"github.com/fyrsmithlabs/repoindex/internal/embeddings"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*vectorstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := vectorstore.Open(vectorstore.Config{Engine: vectorstore.EngineChromem, Path: dir}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func chunk(id int, path string, vec ...float32) assembler.Chunk {
	return assembler.Chunk{
		GlobalID:   id,
		LocalIndex: id % 2,
		FilePath:   path,
		Content:    fmt.Sprintf("chunk %d of %s", id, path),
		Embedding:  vec,
	}
}

func hashChunks(n, dim int) []assembler.Chunk {
	chunks := make([]assembler.Chunk, n)
	for i := range chunks {
		content := fmt.Sprintf("content %d", i)
		chunks[i] = assembler.Chunk{
			GlobalID:  i,
			FilePath:  "main.go",
			Content:   content,
			Embedding: embeddings.HashVector(content, dim),
		}
	}
	return chunks
}

func TestStore_StoreAndSearch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	chunks := []assembler.Chunk{
		chunk(0, "a.go", 2, 0, 0),
		chunk(1, "a.go", 0, 3, 0),
		chunk(2, "b.go", 0, 0, 4),
	}
	require.NoError(t, s.Store(ctx, "acme/widgets", "local", chunks, 3))

	hits, err := s.Search(ctx, "acme/widgets", "local", []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	top := hits[0]
	assert.Equal(t, "acme/widgets::0", top.ID)
	assert.Equal(t, 0, top.ChunkID)
	assert.Equal(t, "acme/widgets", top.Repo)
	assert.Equal(t, "a.go", top.FilePath)
	assert.Equal(t, 0, top.LocalIndex)
	assert.Equal(t, "chunk 0 of a.go", top.Content)
	assert.InDelta(t, 0.995, top.Score, 0.01)
	assert.Equal(t, "acme/widgets::1", hits[1].ID)
	assert.Equal(t, 1, hits[1].LocalIndex)
}

func TestStore_SearchCapsTopKAtCount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "r", "local", hashChunks(3, 16), 16))

	hits, err := s.Search(ctx, "r", "local", embeddings.HashVector("content 1", 16), 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Equal(t, "r::1", hits[0].ID)
}

func TestStore_ReplacesChunksWithSameID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "r", "local", hashChunks(4, 8), 8))
	require.NoError(t, s.Store(ctx, "r", "local", hashChunks(4, 8), 8))

	infos, err := s.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 4, infos[0].DocCount)
}

func TestStore_DimensionMismatchKeepsData(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "r", "local", hashChunks(5, 384), 384))

	err := s.Store(ctx, "r", "local", hashChunks(2, 768), 768)
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	var dimErr *vectorstore.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 384, dimErr.Stored)
	assert.Equal(t, 768, dimErr.Got)

	infos, err := s.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 384, infos[0].EmbeddingDim)
	assert.Equal(t, 5, infos[0].DocCount)

	hits, err := s.Search(ctx, "r", "local", embeddings.HashVector("content 0", 384), 5)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestStore_ChunkDimensionMustMatchDim(t *testing.T) {
	s, _ := newTestStore(t)

	chunks := []assembler.Chunk{chunk(0, "a.go", 1, 2, 3), chunk(1, "a.go", 1, 2)}
	err := s.Store(context.Background(), "r", "local", chunks, 3)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestStore_ProviderMismatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "r", "local", hashChunks(2, 8), 8))

	err := s.Store(ctx, "r", "openai", hashChunks(2, 8), 8)
	assert.ErrorIs(t, err, vectorstore.ErrProviderMismatch)

	err = s.Store(ctx, "r", "claude-fallback", hashChunks(2, 8), 8)
	assert.ErrorIs(t, err, vectorstore.ErrProviderMismatch)

	// Same width, different provider: the query is still refused.
	_, err = s.Search(ctx, "r", "openai", embeddings.HashVector("content 0", 8), 1)
	assert.ErrorIs(t, err, vectorstore.ErrProviderMismatch)

	hits, err := s.Search(ctx, "r", "local", embeddings.HashVector("content 0", 8), 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStore_RejectsInvalidVectors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.Store(ctx, "r", "local", []assembler.Chunk{chunk(0, "a.go", 1, 1), chunk(1, "a.go", 0, 0)}, 2)
	assert.ErrorIs(t, err, vectorstore.ErrZeroVector)

	// Nothing from the rejected batch was written.
	_, err = s.Search(ctx, "r", "local", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestStore_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	chunks := hashChunks(1, 4)

	assert.ErrorIs(t, s.Store(ctx, "", "local", chunks, 4), vectorstore.ErrInvalidRepoName)
	assert.ErrorIs(t, s.Store(ctx, "r", "", chunks, 4), vectorstore.ErrInvalidConfig)
	assert.ErrorIs(t, s.Store(ctx, "r", "local", chunks, 0), vectorstore.ErrDimensionMismatch)
	assert.NoError(t, s.Store(ctx, "r", "local", nil, 4))
}

func TestStore_SearchErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Search(ctx, "missing/repo", "local", []float32{1, 0}, 3)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	assert.Contains(t, err.Error(), "missing/repo")

	require.NoError(t, s.Store(ctx, "r", "local", hashChunks(2, 4), 4))

	_, err = s.Search(ctx, "r", "local", []float32{1, 0, 0, 0}, 0)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidTopK)

	_, err = s.Search(ctx, "r", "local", []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	_, err = s.Search(ctx, "r", "local", []float32{0, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrZeroVector)

	_, err = s.Search(ctx, "r", "", []float32{1, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestStore_GetCollection(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	col, err := s.GetCollection(ctx, "acme/widgets", 0)
	require.NoError(t, err)
	assert.False(t, col.Exists)
	assert.Equal(t, "repo__acme__widgets", col.Name)

	col, err = s.GetCollection(ctx, "acme/widgets", 4)
	require.NoError(t, err)
	assert.True(t, col.Exists)
	assert.Equal(t, 4, col.Info.EmbeddingDim)
	assert.Empty(t, col.Info.Provider)

	_, err = s.GetCollection(ctx, "acme/widgets", 8)
	var dimErr *vectorstore.DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Stored)

	// A reserved collection searches as empty.
	hits, err := s.Search(ctx, "acme/widgets", "local", []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Store(ctx, "acme/widgets", "local", hashChunks(2, 4), 4))
	col, err = s.GetCollection(ctx, "acme/widgets", 0)
	require.NoError(t, err)
	assert.Equal(t, "local", col.Info.Provider)
	assert.Equal(t, 2, col.Info.DocCount)

	_, err = s.GetCollection(ctx, " ", 4)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidRepoName)
}

func TestStore_CollectionsAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "zeta", "local", hashChunks(1, 4), 4))
	require.NoError(t, s.Store(ctx, "alpha/one", "openai", hashChunks(3, 6), 6))

	infos, err := s.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha/one", infos[0].Repo)
	assert.Equal(t, "repo__alpha__one", infos[0].Collection)
	assert.Equal(t, "openai", infos[0].Provider)
	assert.Equal(t, 3, infos[0].DocCount)
	assert.Equal(t, "zeta", infos[1].Repo)

	require.NoError(t, s.DeleteCollection(ctx, "alpha/one"))
	_, err = s.Search(ctx, "alpha/one", "openai", make([]float32, 6), 1)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	assert.ErrorIs(t, s.DeleteCollection(ctx, "alpha/one"), vectorstore.ErrCollectionNotFound)

	// After deletion the repository can be rebuilt with another dimension.
	require.NoError(t, s.Store(ctx, "alpha/one", "local", hashChunks(2, 4), 4))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := vectorstore.Config{Path: dir}

	s, err := vectorstore.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, "r", "local", hashChunks(3, 8), 8))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close())

	s, err = vectorstore.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	hits, err := s.Search(ctx, "r", "local", embeddings.HashVector("content 2", 8), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "r::2", hits[0].ID)

	err = s.Store(ctx, "r", "local", hashChunks(1, 16), 16)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s, err := vectorstore.Open(vectorstore.Config{Path: t.TempDir()}, nil)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			chunks := make([]assembler.Chunk, perWriter)
			for i := range chunks {
				id := w*perWriter + i
				chunks[i] = chunk(id, "f.go", embeddings.HashVector(fmt.Sprint(id), 8)...)
			}
			errs <- s.Store(ctx, "shared", "local", chunks, 8)
			errs <- s.Store(ctx, fmt.Sprintf("own-%d", w), "local", chunks, 8)
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	infos, err := s.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, writers+1)
	for _, info := range infos {
		if info.Repo == "shared" {
			assert.Equal(t, writers*perWriter, info.DocCount)
		} else {
			assert.Equal(t, perWriter, info.DocCount)
		}
	}
}

func TestStore_Health(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "full", "local", hashChunks(2, 4), 4))
	_, err := s.GetCollection(ctx, "reserved", 4)
	require.NoError(t, err)

	h, err := s.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.IsHealthy())
	assert.Equal(t, vectorstore.EngineChromem, h.Engine)
	assert.Equal(t, []string{"full"}, h.Healthy)
	assert.Equal(t, []string{"reserved"}, h.Empty)
	assert.Empty(t, h.Inconsistent)
}

func TestOpen_RejectsBadConfig(t *testing.T) {
	_, err := vectorstore.Open(vectorstore.Config{}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)

	_, err = vectorstore.Open(vectorstore.Config{Engine: "pinecone", Path: t.TempDir()}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestProcessStore(t *testing.T) {
	t.Cleanup(func() { _ = vectorstore.Shutdown() })

	_, err := vectorstore.Shared()
	require.ErrorIs(t, err, vectorstore.ErrNotInitialized)

	cfg := vectorstore.Config{Path: t.TempDir()}
	first, err := vectorstore.Init(cfg, zap.NewNop())
	require.NoError(t, err)
	second, err := vectorstore.Init(vectorstore.Config{Path: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, first, second)

	shared, err := vectorstore.Shared()
	require.NoError(t, err)
	assert.Same(t, first, shared)

	require.NoError(t, vectorstore.Shutdown())
	require.NoError(t, vectorstore.Shutdown())
	_, err = vectorstore.Shared()
	assert.ErrorIs(t, err, vectorstore.ErrNotInitialized)
}

func TestProcessStore_ConcurrentInit(t *testing.T) {
	t.Cleanup(func() { _ = vectorstore.Shutdown() })

	cfg := vectorstore.Config{Path: t.TempDir()}
	stores := make([]*vectorstore.Store, 16)
	var wg sync.WaitGroup
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := vectorstore.Init(cfg, zap.NewNop())
			assert.NoError(t, err)
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range stores {
		assert.Same(t, stores[0], s)
	}
}

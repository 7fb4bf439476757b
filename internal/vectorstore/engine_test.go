package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/assembler"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errAddFailed = errors.New("disk full")

// flakyEngine fails Add while failAdd is set. With hold set, Add announces
// itself on adding and waits for hold to be closed.
type flakyEngine struct {
	Engine
	failAdd atomic.Bool
	hold    chan struct{}
	adding  chan struct{}
}

func (e *flakyEngine) Add(ctx context.Context, name string, records []Record) error {
	if e.failAdd.Load() {
		return errAddFailed
	}
	if e.hold != nil {
		e.adding <- struct{}{}
		<-e.hold
	}
	return e.Engine.Add(ctx, name, records)
}

func newFlakyStore(t *testing.T) (*Store, *flakyEngine) {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	inner, err := newChromemEngine(Config{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	m, err := openManifest(ctx, filepath.Join(dir, ManifestFile))
	require.NoError(t, err)

	eng := &flakyEngine{Engine: inner}
	s := newStore(eng, m, zap.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	return s, eng
}

func testChunks(ids ...int) []assembler.Chunk {
	chunks := make([]assembler.Chunk, len(ids))
	for i, id := range ids {
		chunks[i] = assembler.Chunk{GlobalID: id, FilePath: "x.go", Content: "x", Embedding: []float32{1, float32(id), 2}}
	}
	return chunks
}

func TestStore_FailedFirstWriteLeavesNoManifestRow(t *testing.T) {
	s, eng := newFlakyStore(t)
	ctx := context.Background()

	eng.failAdd.Store(true)
	err := s.Store(ctx, "r", "local", testChunks(0, 1), 3)
	require.ErrorIs(t, err, errAddFailed)

	_, err = s.manifest.get(ctx, "r")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	// The dimension was not fixed by the failed write.
	eng.failAdd.Store(false)
	require.NoError(t, s.Store(ctx, "r", "openai", []assembler.Chunk{{GlobalID: 0, Embedding: []float32{1, 1}}}, 2))
}

func TestStore_FailedWriteKeepsDocCount(t *testing.T) {
	s, eng := newFlakyStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "r", "local", testChunks(0, 1), 3))

	eng.failAdd.Store(true)
	require.Error(t, s.Store(ctx, "r", "local", testChunks(2, 3, 4), 3))

	info, err := s.manifest.get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 2, info.DocCount)
	assert.Equal(t, "local", info.Provider)
}

func TestStore_SearchDuringWriteToAnotherRepo(t *testing.T) {
	s, eng := newFlakyStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "idle", "local", testChunks(0, 1), 3))

	eng.hold = make(chan struct{})
	eng.adding = make(chan struct{})
	written := make(chan error, 1)
	go func() {
		written <- s.Store(ctx, "busy", "local", testChunks(0), 3)
	}()
	<-eng.adding

	searchCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	hits, err := s.Search(searchCtx, "idle", "local", []float32{1, 0, 2}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	infos, err := s.Collections(searchCtx)
	require.NoError(t, err)
	assert.Len(t, infos, 1, "the open write is not visible yet")

	close(eng.hold)
	require.NoError(t, <-written)

	infos, err = s.Collections(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestStore_HealthReportsInconsistency(t *testing.T) {
	s, eng := newFlakyStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "r", "local", testChunks(0, 1), 3))
	name, err := CollectionName("r")
	require.NoError(t, err)
	require.NoError(t, eng.Delete(ctx, name))

	h, err := s.Health(ctx)
	require.NoError(t, err)
	assert.False(t, h.IsHealthy())
	assert.Equal(t, []string{"r"}, h.Inconsistent)
	assert.Contains(t, h.Details["r"], "missing")
}

func TestQdrantPayloadRoundTrip(t *testing.T) {
	r := Record{
		ID:      "acme/widgets::3",
		Content: "func main() {}",
		Metadata: map[string]string{
			MetaRepoName:   "acme/widgets",
			MetaChunkID:    "3",
			MetaFilePath:   "cmd/main.go",
			MetaLocalIndex: "0",
		},
	}
	point := &qdrant.ScoredPoint{
		Id:      qdrant.NewIDUUID(PointUUID(r.ID)),
		Score:   0.75,
		Payload: recordPayload(r),
	}

	m := matchFromPoint(point)
	assert.Equal(t, r.ID, m.ID)
	assert.Equal(t, r.Content, m.Content)
	assert.Equal(t, r.Metadata, m.Metadata)
	assert.InDelta(t, 0.75, m.Score, 1e-6)

	h := hitFromMatch(m)
	assert.Equal(t, 3, h.ChunkID)
	assert.Equal(t, "cmd/main.go", h.FilePath)
	assert.Equal(t, "acme/widgets", h.Repo)
}

func TestMatchFromPoint_IntegerPayloadAndMissingID(t *testing.T) {
	point := &qdrant.ScoredPoint{
		Id: qdrant.NewIDUUID("5b2c9c9e-1111-5222-8333-444455556666"),
		Payload: map[string]*qdrant.Value{
			MetaChunkID: qdrant.NewValueInt(9),
		},
	}
	m := matchFromPoint(point)
	assert.Equal(t, "5b2c9c9e-1111-5222-8333-444455556666", m.ID)
	assert.Equal(t, "9", m.Metadata[MetaChunkID])
}

func TestHitFromMatch_FallsBackToDocumentID(t *testing.T) {
	h := hitFromMatch(Match{ID: "org/repo::12", Metadata: map[string]string{}})
	assert.Equal(t, "org/repo", h.Repo)
	assert.Equal(t, 12, h.ChunkID)
}

func TestNewQdrantEngine_ValidatesConfig(t *testing.T) {
	_, err := newQdrantEngine(context.Background(), Config{QdrantPort: 6334}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = newQdrantEngine(context.Background(), Config{QdrantHost: "localhost", QdrantPort: 70000}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

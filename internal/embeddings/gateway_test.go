package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcBackend func(ctx context.Context, texts []string) ([][]float32, error)

func (f funcBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

func (f funcBackend) Name() string { return "func" }

func newTestGateway(t *testing.T, mutate func(*config.Config), opts ...Option) *Gateway {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	g, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		tag     string
		want    Provider
		wantErr error
	}{
		{tag: "local", want: ProviderLocal},
		{tag: "OpenAI", want: ProviderOpenAI},
		{tag: " gemini ", want: ProviderGemini},
		{tag: "claude", want: ProviderClaude},
		{tag: "", wantErr: ErrProviderRequired},
		{tag: "  ", wantErr: ErrProviderRequired},
		{tag: "cohere", wantErr: ErrUnsupportedProvider},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseProvider(tt.tag)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, ProviderUnset, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvider_Tag(t *testing.T) {
	assert.Equal(t, "local", ProviderLocal.Tag())
	assert.Equal(t, "openai", ProviderOpenAI.Tag())
	assert.Equal(t, "gemini", ProviderGemini.Tag())
	assert.Equal(t, "claude-fallback", ProviderClaude.Tag())
	assert.Equal(t, "claude", ProviderClaude.String())
	assert.Equal(t, "unset", ProviderUnset.String())
}

func TestGateway_EmbedLocal(t *testing.T) {
	g := newTestGateway(t, nil, WithBackend(ProviderLocal, NewHashBackend(384)))
	ctx := context.Background()

	first, err := g.Embed(ctx, "func main() {}", ProviderLocal)
	require.NoError(t, err)
	assert.Equal(t, "local", first.Provider)
	assert.Len(t, first.Vector, 384)

	second, err := g.Embed(ctx, "func main() {}", ProviderLocal)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGateway_ClaudeUsesLocalBackend(t *testing.T) {
	g := newTestGateway(t, nil, WithBackend(ProviderLocal, NewHashBackend(384)))
	ctx := context.Background()

	claude, err := g.Embed(ctx, "hello", ProviderClaude)
	require.NoError(t, err)
	local, err := g.Embed(ctx, "hello", ProviderLocal)
	require.NoError(t, err)

	assert.Equal(t, "claude-fallback", claude.Provider)
	assert.Equal(t, local.Vector, claude.Vector)
}

func TestGateway_ProviderValidation(t *testing.T) {
	g := newTestGateway(t, nil, WithBackend(ProviderLocal, NewHashBackend(8)))
	ctx := context.Background()

	_, err := g.Embed(ctx, "hello", ProviderUnset)
	assert.ErrorIs(t, err, ErrProviderRequired)

	_, err = g.Embed(ctx, "hello", Provider(99))
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestGateway_EmptyInput(t *testing.T) {
	backend := NewHashBackend(8)
	g := newTestGateway(t, nil, WithBackend(ProviderLocal, backend))
	ctx := context.Background()

	_, err := g.Embed(ctx, "", ProviderLocal)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = g.EmbedBatch(ctx, nil, ProviderLocal)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = g.EmbedBatch(ctx, []string{"a", " \n"}, ProviderLocal)
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.Zero(t, backend.Calls())
}

func TestGateway_MissingAPIKey(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	g := newTestGateway(t, nil,
		WithBackend(ProviderOpenAI, NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL + "/"})),
		WithBackend(ProviderGemini, NewGeminiBackend(GeminiConfig{BaseURL: server.URL + "/"})),
	)

	for _, p := range []Provider{ProviderOpenAI, ProviderGemini} {
		t.Run(p.String(), func(t *testing.T) {
			_, err := g.Embed(context.Background(), "hello", p)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingAPIKey)
			assert.ErrorIs(t, err, ErrEmbeddingFailed)

			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, p.Tag(), perr.Provider)
			assert.True(t, strings.HasPrefix(err.Error(), "embedding failed using provider "+p.Tag()+": "))
		})
	}
	assert.Zero(t, hits.Load())
}

func TestGateway_DefaultRemoteBackendsRequireKeys(t *testing.T) {
	g := newTestGateway(t, nil)

	_, err := g.Embed(context.Background(), "hello", ProviderOpenAI)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOpenAIBackend(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-large", body.Model)

		// Answer out of order to check the backend sorts by index.
		data := make([]map[string]any, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 3, 4},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  body.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		}))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/"})
	g := newTestGateway(t, nil, WithBackend(ProviderOpenAI, backend))

	results, err := g.EmbedBatch(context.Background(), []string{"a", "b", "c"}, ProviderOpenAI)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, "openai", r.Provider)
		assert.Equal(t, []float32{float32(i), 3, 4}, r.Vector, "vectors are returned unnormalised")
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestOpenAIBackend_ServerErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/"})
	g := newTestGateway(t, nil, WithBackend(ProviderOpenAI, backend))

	_, err := g.Embed(context.Background(), "hello", ProviderOpenAI)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, int64(1), hits.Load())
}

func TestGeminiBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "text-embedding-004")
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{
				{"values": []float64{0.5, 1}},
				{"values": []float64{2, 0.25}},
			},
		}))
	}))
	defer server.Close()

	backend := NewGeminiBackend(GeminiConfig{APIKey: "g-test", BaseURL: server.URL + "/"})
	g := newTestGateway(t, nil, WithBackend(ProviderGemini, backend))

	results, err := g.EmbedBatch(context.Background(), []string{"a", "b"}, ProviderGemini)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []float32{0.5, 1}, results[0].Vector)
	assert.Equal(t, []float32{2, 0.25}, results[1].Vector)
	assert.Equal(t, "gemini", results[1].Provider)
}

func TestGeminiBackend_TaskType(t *testing.T) {
	var tasks []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Requests []struct {
				TaskType string `json:"taskType"`
			} `json:"requests"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		for _, req := range body.Requests {
			tasks = append(tasks, req.TaskType)
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{{"values": []float64{1, 0}}},
		}))
	}))
	defer server.Close()

	backend := NewGeminiBackend(GeminiConfig{APIKey: "g-test", BaseURL: server.URL + "/"})
	g := newTestGateway(t, nil, WithBackend(ProviderGemini, backend))
	ctx := context.Background()

	_, err := g.Embed(ctx, "def parse(path):", ProviderGemini)
	require.NoError(t, err)
	_, err = g.Embed(ForQuery(ctx), "where is the config parsed", ProviderGemini)
	require.NoError(t, err)

	assert.Equal(t, []string{"RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY"}, tasks)
	assert.False(t, IsQuery(ctx))
}

func TestGeminiBackend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	backend := NewGeminiBackend(GeminiConfig{APIKey: "g-bad", BaseURL: server.URL + "/"})
	g := newTestGateway(t, nil, WithBackend(ProviderGemini, backend))

	_, err := g.Embed(context.Background(), "hello", ProviderGemini)
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "gemini", perr.Provider)
}

func TestGateway_EmbedBatchOrderAndBatching(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	backend := funcBackend(func(ctx context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		sizes = append(sizes, len(texts))
		mu.Unlock()
		return NewHashBackend(16).Embed(ctx, texts)
	})
	g := newTestGateway(t, func(c *config.Config) {
		c.Embeddings.BatchSize = 3
		c.Embeddings.Concurrency = 2
	}, WithBackend(ProviderLocal, backend))

	texts := []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"}
	results, err := g.EmbedBatch(context.Background(), texts, ProviderLocal)
	require.NoError(t, err)
	require.Len(t, results, len(texts))
	for i, r := range results {
		assert.Equal(t, HashVector(texts[i], 16), r.Vector, "result %d out of order", i)
	}
	assert.ElementsMatch(t, []int{3, 3, 3, 1}, sizes)
}

func TestGateway_WrongVectorCount(t *testing.T) {
	backend := funcBackend(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 2}}, nil
	})
	g := newTestGateway(t, nil, WithBackend(ProviderLocal, backend))

	_, err := g.EmbedBatch(context.Background(), []string{"a", "b"}, ProviderLocal)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.ErrorIs(t, err, errVectorCount)
}

func TestGateway_Timeout(t *testing.T) {
	backend := funcBackend(func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := newTestGateway(t, func(c *config.Config) {
		c.Embeddings.Timeout = config.Duration(20 * time.Millisecond)
	}, WithBackend(ProviderLocal, backend))

	start := time.Now()
	_, err := g.Embed(context.Background(), "hello", ProviderLocal)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGateway_FirstFailureWins(t *testing.T) {
	boom := errors.New("boom")
	backend := funcBackend(func(ctx context.Context, texts []string) ([][]float32, error) {
		if texts[0] == "bad" {
			return nil, boom
		}
		return NewHashBackend(4).Embed(ctx, texts)
	})
	g := newTestGateway(t, func(c *config.Config) {
		c.Embeddings.BatchSize = 1
	}, WithBackend(ProviderLocal, backend))

	_, err := g.EmbedBatch(context.Background(), []string{"ok", "bad", "ok"}, ProviderLocal)
	assert.ErrorIs(t, err, boom)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "embed_batch", perr.Op)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Embeddings.BatchSize = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestHashVector(t *testing.T) {
	a := HashVector("alpha", 20)
	assert.Len(t, a, 20)
	assert.Equal(t, a, HashVector("alpha", 20))
	assert.NotEqual(t, a, HashVector("beta", 20))
	for _, v := range a {
		assert.True(t, v >= -1 && v <= 1)
	}
}

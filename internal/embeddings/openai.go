package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIModel is the OpenAI embedding model.
const DefaultOpenAIModel = "text-embedding-3-large"

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey config.Secret
	Model  string

	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string

	HTTPClient *http.Client
}

// OpenAIBackend calls the OpenAI embeddings endpoint.
type OpenAIBackend struct {
	cfg OpenAIConfig

	once   sync.Once
	client openai.Client
}

// NewOpenAIBackend creates the backend. A missing key is reported on the
// first Embed call, before any request is made.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return &OpenAIBackend{cfg: cfg}
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string {
	return "openai:" + b.cfg.Model
}

// Embed implements Backend.
func (b *OpenAIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !b.cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}
	b.once.Do(b.connect)

	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(b.cfg.Model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", errVectorCount, len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = toFloat32(d.Embedding)
	}
	return vecs, nil
}

// connect builds the client. Retries are disabled so a failure surfaces
// immediately.
func (b *OpenAIBackend) connect() {
	opts := []option.RequestOption{
		option.WithAPIKey(b.cfg.APIKey.Value()),
		option.WithMaxRetries(0),
	}
	if b.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(b.cfg.BaseURL))
	}
	if b.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(b.cfg.HTTPClient))
	}
	b.client = openai.NewClient(opts...)
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

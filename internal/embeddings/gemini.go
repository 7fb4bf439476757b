package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the Gemini embedding model.
const DefaultGeminiModel = "text-embedding-004"

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey config.Secret
	Model  string

	// BaseURL overrides the Gemini API endpoint.
	BaseURL string

	HTTPClient *http.Client
}

// GeminiBackend calls the Gemini API embedContent method. Texts are embedded
// as retrieval documents, or as retrieval queries under ForQuery.
type GeminiBackend struct {
	cfg GeminiConfig

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiBackend creates the backend. A missing key is reported on the
// first Embed call, before any request is made.
func NewGeminiBackend(cfg GeminiConfig) *GeminiBackend {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	return &GeminiBackend{cfg: cfg}
}

// Name implements Backend.
func (b *GeminiBackend) Name() string {
	return "gemini:" + b.cfg.Model
}

// Embed implements Backend.
func (b *GeminiBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !b.cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	client, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	task := "RETRIEVAL_DOCUMENT"
	if IsQuery(ctx) {
		task = "RETRIEVAL_QUERY"
	}
	resp, err := client.Models.EmbedContent(ctx, b.cfg.Model, contents, &genai.EmbedContentConfig{
		TaskType: task,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", errVectorCount, len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("missing embedding for text %d", i)
		}
		vecs[i] = e.Values
	}
	return vecs, nil
}

func (b *GeminiBackend) connect(ctx context.Context) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:     b.cfg.APIKey.Value(),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: b.cfg.HTTPClient,
	}
	if b.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: b.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	b.client = client
	return client, nil
}

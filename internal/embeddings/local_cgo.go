//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

var fastembedModels = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
}

// LocalBackend embeds with a fastembed ONNX model. The model is loaded on
// first use.
type LocalBackend struct {
	cfg LocalConfig

	mu    sync.Mutex
	model *fastembed.FlagEmbedding
}

// NewLocalBackend creates a local backend without loading the model.
func NewLocalBackend(cfg LocalConfig) *LocalBackend {
	return &LocalBackend{cfg: cfg.withDefaults()}
}

// Name implements Backend.
func (b *LocalBackend) Name() string {
	return "fastembed:" + b.cfg.Model
}

// Embed implements Backend. Every text is embedded as a passage so that
// indexed chunks and queries share one vector space.
func (b *LocalBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(); err != nil {
		return nil, err
	}
	vecs, err := b.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("fastembed: %w", err)
	}
	return vecs, nil
}

func (b *LocalBackend) load() error {
	if b.model != nil {
		return nil
	}
	model, ok := fastembedModels[b.cfg.Model]
	if !ok {
		return fmt.Errorf("%w: unsupported local model %q", ErrUnsupportedProvider, b.cfg.Model)
	}
	showProgress := false
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             b.cfg.CacheDir,
		MaxLength:            b.cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return fmt.Errorf("loading local model %s: %w", b.cfg.Model, err)
	}
	b.model = m
	return nil
}

// Close releases the ONNX session if one was loaded.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.model == nil {
		return nil
	}
	err := b.model.Destroy()
	b.model = nil
	return err
}

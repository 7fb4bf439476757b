//go:build !cgo

package embeddings

import "context"

// LocalBackend is unavailable without cgo. Every call fails with
// ErrLocalUnavailable.
type LocalBackend struct {
	cfg LocalConfig
}

// NewLocalBackend creates the stub backend.
func NewLocalBackend(cfg LocalConfig) *LocalBackend {
	return &LocalBackend{cfg: cfg.withDefaults()}
}

// Name implements Backend.
func (b *LocalBackend) Name() string {
	return "fastembed:" + b.cfg.Model
}

// Embed implements Backend.
func (b *LocalBackend) Embed(context.Context, []string) ([][]float32, error) {
	return nil, ErrLocalUnavailable
}

// Close implements io.Closer.
func (b *LocalBackend) Close() error {
	return nil
}

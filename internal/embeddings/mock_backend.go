package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// HashBackend is a deterministic Backend for tests. Equal texts give equal
// vectors and no model or network is involved.
type HashBackend struct {
	Dim int

	calls atomic.Int64
}

// NewHashBackend creates a HashBackend producing dim-wide vectors.
func NewHashBackend(dim int) *HashBackend {
	return &HashBackend{Dim: dim}
}

// Name implements Backend.
func (b *HashBackend) Name() string {
	return fmt.Sprintf("hash:%d", b.Dim)
}

// Embed implements Backend.
func (b *HashBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.calls.Add(1)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = HashVector(text, b.Dim)
	}
	return out, nil
}

// Calls returns how many Embed calls were made.
func (b *HashBackend) Calls() int {
	return int(b.calls.Load())
}

// HashVector derives a dim-wide vector with components in [-1, 1] from text.
func HashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	var counter [4]byte
	for i := 0; i < dim; i += 8 {
		binary.BigEndian.PutUint32(counter[:], uint32(i))
		sum := sha256.Sum256(append(counter[:], text...))
		for j := 0; j < 8 && i+j < dim; j++ {
			u := binary.BigEndian.Uint32(sum[j*4:])
			vec[i+j] = float32(u)/float32(1<<31) - 1
		}
	}
	return vec
}

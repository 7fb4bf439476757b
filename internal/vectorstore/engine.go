package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Engine names.
const (
	EngineChromem = "chromem"
	EngineQdrant  = "qdrant"
)

// Record is one vector written to an engine.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Match is one nearest-neighbour result.
type Match struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// Engine is the vector database behind a Store. Vectors handed to an engine
// are already normalized.
type Engine interface {
	Name() string
	EnsureCollection(ctx context.Context, name string, dim int) error
	Exists(ctx context.Context, name string) (bool, error)
	Add(ctx context.Context, name string, records []Record) error
	Query(ctx context.Context, name string, vector []float32, k int) ([]Match, error)
	Count(ctx context.Context, name string) (int, error)
	Delete(ctx context.Context, name string) error
	// Ping reports whether the engine is reachable.
	Ping(ctx context.Context) error
	// Flush makes every completed Add durable.
	Flush(ctx context.Context) error
	Close() error
}

// newEngine opens the engine selected by cfg.
func newEngine(ctx context.Context, cfg Config, logger *zap.Logger) (Engine, error) {
	switch strings.ToLower(cfg.Engine) {
	case EngineChromem, "":
		return newChromemEngine(cfg, logger)
	case EngineQdrant:
		return newQdrantEngine(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q (valid: chromem, qdrant)", ErrInvalidConfig, cfg.Engine)
	}
}

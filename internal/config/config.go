// Package config provides configuration loading for repoindex.
//
// Configuration is assembled from an optional YAML file and process environment
// variables, then completed with defaults and validated.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete repoindex configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Assembler   AssemblerConfig   `koanf:"assembler"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Indexer     IndexerConfig     `koanf:"indexer"`
	Scrub       ScrubConfig       `koanf:"scrub"`
	Server      ServerConfig      `koanf:"server"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`

	// Provider credentials. These are read from the process environment
	// (OPENAI_API_KEY, GEMINI_API_KEY, ANTHROPIC_API_KEY, GITHUB_TOKEN).
	OpenAI    CredentialConfig `koanf:"openai"`
	Gemini    CredentialConfig `koanf:"gemini"`
	Anthropic CredentialConfig `koanf:"anthropic"`
	GitHub    GitHubConfig     `koanf:"github"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ChunkingConfig selects the chunking strategy and its sizes.
type ChunkingConfig struct {
	// Strategy is "boundary" (default) or "window".
	Strategy      string `koanf:"strategy"`
	TargetSize    int    `koanf:"target_size"`
	MinSize       int    `koanf:"min_size"`
	MaxSize       int    `koanf:"max_size"`
	WindowSize    int    `koanf:"window_size"`
	WindowOverlap int    `koanf:"window_overlap"`
}

// AssemblerConfig controls which files are chunked.
type AssemblerConfig struct {
	Extensions    []string `koanf:"extensions"`
	MaxFileChars  int      `koanf:"max_file_chars"`
	MinChunkChars int      `koanf:"min_chunk_chars"`
}

// EmbeddingsConfig controls the provider gateway.
type EmbeddingsConfig struct {
	BatchSize   int      `koanf:"batch_size"`
	Concurrency int      `koanf:"concurrency"`
	Timeout     Duration `koanf:"timeout"`
	// RateLimit is requests per second for remote providers. 0 disables limiting.
	RateLimit   float64 `koanf:"rate_limit"`
	LocalModel  string  `koanf:"local_model"`
	CacheDir    string  `koanf:"cache_dir"`
	OpenAIModel string  `koanf:"openai_model"`
	GeminiModel string  `koanf:"gemini_model"`
}

// VectorStoreConfig selects the vector engine.
type VectorStoreConfig struct {
	// Engine is "chromem" (default, embedded) or "qdrant".
	Engine     string `koanf:"engine"`
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	QdrantHost string `koanf:"qdrant_host"`
	QdrantPort int    `koanf:"qdrant_port"`
	QdrantTLS  bool   `koanf:"qdrant_tls"`
}

// IndexerConfig controls pipeline batching.
type IndexerConfig struct {
	StoreBatch int `koanf:"store_batch"`
}

// ScrubConfig enables secret redaction of chunk text.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// CredentialConfig holds a single provider API key.
type CredentialConfig struct {
	APIKey Secret `koanf:"api_key"`
}

// GitHubConfig holds the GitHub API token used by remote content sources.
type GitHubConfig struct {
	Token Secret `koanf:"token"`
}

// DefaultExtensions is the source-code extension allow-list.
var DefaultExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx",
	".java", ".go", ".rs", ".cpp", ".c",
	".h", ".hpp", ".cs",
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - the chunking strategy or sizes are inconsistent
//   - the vector engine is unknown
//   - the server port is not between 1 and 65535
func (c *Config) Validate() error {
	switch c.Chunking.Strategy {
	case "boundary":
		if c.Chunking.MinSize <= 0 || c.Chunking.MaxSize <= 0 {
			return errors.New("chunking sizes must be positive")
		}
		if c.Chunking.MinSize > c.Chunking.MaxSize {
			return fmt.Errorf("chunking min_size %d exceeds max_size %d", c.Chunking.MinSize, c.Chunking.MaxSize)
		}
		if c.Chunking.TargetSize < c.Chunking.MinSize || c.Chunking.TargetSize > c.Chunking.MaxSize {
			return fmt.Errorf("chunking target_size %d must be within [%d, %d]",
				c.Chunking.TargetSize, c.Chunking.MinSize, c.Chunking.MaxSize)
		}
	case "window":
		if c.Chunking.WindowSize <= 0 {
			return errors.New("chunking window_size must be positive")
		}
	default:
		return fmt.Errorf("unknown chunking strategy %q (want boundary or window)", c.Chunking.Strategy)
	}

	if c.Assembler.MaxFileChars <= 0 {
		return errors.New("assembler max_file_chars must be positive")
	}
	if len(c.Assembler.Extensions) == 0 {
		return errors.New("assembler extensions cannot be empty")
	}

	if c.Embeddings.BatchSize <= 0 || c.Embeddings.Concurrency <= 0 {
		return errors.New("embeddings batch_size and concurrency must be positive")
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings rate_limit cannot be negative: %v", c.Embeddings.RateLimit)
	}

	switch c.VectorStore.Engine {
	case "chromem":
	case "qdrant":
		if c.VectorStore.QdrantHost == "" {
			return errors.New("vectorstore qdrant_host is required for the qdrant engine")
		}
	default:
		return fmt.Errorf("unknown vectorstore engine %q (want chromem or qdrant)", c.VectorStore.Engine)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint required when telemetry is enabled")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "boundary"
	}
	if cfg.Chunking.TargetSize == 0 {
		cfg.Chunking.TargetSize = 850
	}
	if cfg.Chunking.MinSize == 0 {
		cfg.Chunking.MinSize = 700
	}
	if cfg.Chunking.MaxSize == 0 {
		cfg.Chunking.MaxSize = 1000
	}
	if cfg.Chunking.WindowSize == 0 {
		cfg.Chunking.WindowSize = 8000
	}
	if cfg.Chunking.WindowOverlap == 0 {
		cfg.Chunking.WindowOverlap = 200
	}

	if len(cfg.Assembler.Extensions) == 0 {
		cfg.Assembler.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Assembler.MaxFileChars == 0 {
		cfg.Assembler.MaxFileChars = 200_000
	}
	if cfg.Assembler.MinChunkChars == 0 {
		cfg.Assembler.MinChunkChars = 200
	}

	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 64
	}
	if cfg.Embeddings.Concurrency == 0 {
		cfg.Embeddings.Concurrency = 4
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}
	if cfg.Embeddings.LocalModel == "" {
		cfg.Embeddings.LocalModel = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = "~/.cache/repoindex/models"
	}
	if cfg.Embeddings.OpenAIModel == "" {
		cfg.Embeddings.OpenAIModel = "text-embedding-3-large"
	}
	if cfg.Embeddings.GeminiModel == "" {
		cfg.Embeddings.GeminiModel = "text-embedding-004"
	}

	if cfg.VectorStore.Engine == "" {
		cfg.VectorStore.Engine = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./.chroma_db"
	}
	if cfg.VectorStore.QdrantHost == "" {
		cfg.VectorStore.QdrantHost = "localhost"
	}
	if cfg.VectorStore.QdrantPort == 0 {
		cfg.VectorStore.QdrantPort = 6334
	}

	if cfg.Indexer.StoreBatch == 0 {
		cfg.Indexer.StoreBatch = 256
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "repoindex"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}
}

package embeddings

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultLocalModel is the model used by the local backend.
const DefaultLocalModel = "sentence-transformers/all-MiniLM-L6-v2"

// LocalConfig configures the local ONNX backend.
type LocalConfig struct {
	// Model is a fastembed model name. Empty uses DefaultLocalModel.
	Model string

	// CacheDir holds downloaded model files. A leading "~/" expands to the
	// home directory.
	CacheDir string

	// MaxLength is the maximum token sequence length. Defaults to 512.
	MaxLength int
}

// localModelDimensions lists the vector width of every supported local model.
var localModelDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
}

// LocalDimension returns the vector width of a local model.
func LocalDimension(model string) (int, bool) {
	if model == "" {
		model = DefaultLocalModel
	}
	dim, ok := localModelDimensions[model]
	return dim, ok
}

func (c LocalConfig) withDefaults() LocalConfig {
	if c.Model == "" {
		c.Model = DefaultLocalModel
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 512
	}
	c.CacheDir = expandHome(c.CacheDir)
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(".", "local_cache")
	}
	return c
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

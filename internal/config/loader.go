package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxFileBytes = 1 << 20

// envSections lists the sections an environment variable may set. Other
// variables in the environment are ignored.
var envSections = []string{
	"logging", "chunking", "assembler", "embeddings", "vectorstore", "indexer",
	"scrub", "server", "telemetry", "openai", "gemini", "anthropic", "github",
}

// CHROMA_PERSISTANT_DIR (sic) is what existing deployments already export.
var envAliases = map[string]string{
	"CHROMA_PERSISTANT_DIR": "vectorstore.path",
}

// DefaultPath is where LoadWithFile looks when no path is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".config", "repoindex", "config.yaml"), nil
}

// LoadWithFile layers defaults, the YAML file at path and the environment,
// in increasing precedence, then validates the result. An empty path means
// DefaultPath. A missing file is fine; a present one must be private to its
// owner (0600 or 0400) and at most 1 MiB.
//
// Environment variables split on the first underscore:
//
//	CHUNKING_MAX_SIZE  -> chunking.max_size
//	OPENAI_API_KEY     -> openai.api_key
//	GITHUB_TOKEN       -> github.token
func LoadWithFile(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	k := koanf.New(".")
	raw, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// readConfigFile returns nil, nil when path does not exist. Permissions and
// size are checked on the open descriptor, not the path.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := checkFileInfo(info); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return io.ReadAll(io.LimitReader(f, maxFileBytes))
}

func checkFileInfo(info fs.FileInfo) error {
	if perm := info.Mode().Perm(); runtime.GOOS != "windows" && perm != 0o600 && perm != 0o400 {
		return fmt.Errorf("insecure config file permissions %v, want 0600 or 0400", perm)
	}
	if info.Size() > maxFileBytes {
		return fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), maxFileBytes)
	}
	return nil
}

// envKey maps an environment variable to a config key, or "" to drop it.
func envKey(name string) string {
	if key, ok := envAliases[name]; ok {
		return key
	}
	section, field, ok := strings.Cut(strings.ToLower(name), "_")
	if !ok || field == "" {
		return ""
	}
	for _, s := range envSections {
		if s == section {
			return section + "." + field
		}
	}
	return ""
}

// Package ignore decides which repository paths are excluded from indexing,
// using gitignore semantics.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnoreFiles are read from the repository root, in order.
var DefaultIgnoreFiles = []string{".gitignore", ".repoindexignore"}

// DefaultPatterns are always applied, whether or not ignore files exist.
// Names without a slash match at any depth.
var DefaultPatterns = []string{
	".git",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	"__pycache__",
	".venv",
	".idea",
	".vscode",
	"*.min.js",
	"*.lock",
}

// Parser reads gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// DefaultPatterns are prepended to whatever the ignore files contain.
	DefaultPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, defaultPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:     ignoreFiles,
		DefaultPatterns: defaultPatterns,
	}
}

// Matcher reports whether a slash-separated, root-relative path is ignored.
type Matcher struct {
	patterns []string
	compiled *gitignore.GitIgnore
}

// ParseProject reads all ignore files from the project root and compiles
// them together with the default patterns. Missing files are skipped.
func (p *Parser) ParseProject(projectRoot string) (*Matcher, error) {
	patterns := append([]string{}, p.DefaultPatterns...)

	for _, ignoreFile := range p.IgnoreFiles {
		filePatterns, err := parseFile(filepath.Join(projectRoot, ignoreFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
	}

	return Compile(patterns...), nil
}

// Compile builds a matcher from raw gitignore lines.
func Compile(patterns ...string) *Matcher {
	patterns = deduplicate(patterns)
	return &Matcher{
		patterns: patterns,
		compiled: gitignore.CompileIgnoreLines(patterns...),
	}
}

// Match reports whether path is excluded. Directories should be passed with
// isDir set so that patterns ending in "/" apply to them.
func (m *Matcher) Match(path string, isDir bool) bool {
	if m == nil || m.compiled == nil {
		return false
	}
	path = filepath.ToSlash(path)
	if isDir && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return m.compiled.MatchesPath(path)
}

// Patterns returns the compiled pattern lines.
func (m *Matcher) Patterns() []string {
	return m.patterns
}

// parseFile reads a single gitignore-style file and returns its pattern lines.
func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}

// parseLine returns the pattern on a gitignore line, or "" for comments and
// blank lines.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	return result
}

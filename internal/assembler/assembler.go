// Package assembler turns a repository's files into globally numbered chunks.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/repoindex/internal/chunker"
	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/secrets"
	"github.com/fyrsmithlabs/repoindex/internal/source"
	"github.com/go-enry/go-enry/v2"
	"go.uber.org/zap"
)

// Reasons a file is not chunked.
var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrExtensionExcluded = errors.New("extension not in allow-list")
	ErrFileTooLarge      = errors.New("file exceeds max size")
)

// Chunk is one retrievable unit of a repository.
type Chunk struct {
	// GlobalID is unique within a run and counts up from 0 without gaps.
	GlobalID int
	// LocalIndex orders chunks within FilePath. It may have gaps.
	LocalIndex int
	FilePath   string
	Content    string
	// Language is detected for reporting only and is not persisted.
	Language string
	// Embedding is attached after assembly.
	Embedding []float32
}

// Report summarises one assembly run.
type Report struct {
	FilesSeen          int
	FilesKept          int
	Skipped            map[string]int
	ShortChunksDropped int
	SecretsRedacted    int
	Languages          map[string]int
}

// Result is the output of Assemble.
type Result struct {
	Chunks []Chunk
	Report Report
}

// Config configures an Assembler.
type Config struct {
	Extensions    []string
	MaxFileChars  int
	MinChunkChars int

	// Strategy splits file text. Nil uses boundary mode with default sizes.
	Strategy chunker.Strategy

	// Scrubber redacts secrets before chunking. Nil disables redaction.
	Scrubber secrets.Scrubber

	Logger *zap.Logger
}

// FromSettings builds a Config from the application configuration.
func FromSettings(cfg *config.Config, scrubber secrets.Scrubber, logger *zap.Logger) (Config, error) {
	strategy, err := chunker.New(chunker.Config{
		Strategy: cfg.Chunking.Strategy,
		Options: chunker.Options{
			TargetSize: cfg.Chunking.TargetSize,
			MinSize:    cfg.Chunking.MinSize,
			MaxSize:    cfg.Chunking.MaxSize,
		},
		WindowSize:    cfg.Chunking.WindowSize,
		WindowOverlap: cfg.Chunking.WindowOverlap,
	})
	if err != nil {
		return Config{}, err
	}
	return Config{
		Extensions:    cfg.Assembler.Extensions,
		MaxFileChars:  cfg.Assembler.MaxFileChars,
		MinChunkChars: cfg.Assembler.MinChunkChars,
		Strategy:      strategy,
		Scrubber:      scrubber,
		Logger:        logger,
	}, nil
}

// Assembler filters files, chunks them and stamps global IDs.
type Assembler struct {
	extensions    map[string]struct{}
	maxFileChars  int
	minChunkChars int
	strategy      chunker.Strategy
	scrubber      secrets.Scrubber
	logger        *zap.Logger
}

// New creates an Assembler. Zero values take the defaults.
func New(cfg Config) (*Assembler, error) {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = config.DefaultExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return nil, fmt.Errorf("invalid extension %q: must start with '.'", ext)
		}
		allowed[ext] = struct{}{}
	}

	a := &Assembler{
		extensions:    allowed,
		maxFileChars:  cfg.MaxFileChars,
		minChunkChars: cfg.MinChunkChars,
		strategy:      cfg.Strategy,
		scrubber:      cfg.Scrubber,
		logger:        cfg.Logger,
	}
	if a.maxFileChars <= 0 {
		a.maxFileChars = 200_000
	}
	if a.minChunkChars <= 0 {
		a.minChunkChars = 200
	}
	if a.strategy == nil {
		s, err := chunker.New(chunker.Config{Strategy: chunker.StrategyBoundary})
		if err != nil {
			return nil, err
		}
		a.strategy = s
	}
	if a.scrubber == nil {
		a.scrubber = secrets.NoopScrubber{}
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// Extension returns the text from the last '.' of the final path element,
// or "" when the name has no dot.
func Extension(filePath string) string {
	name := path.Base(filePath)
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i:]
}

// AllowsPath reports whether filePath has an allow-listed extension.
// Matching is exact and case-sensitive.
func (a *Assembler) AllowsPath(filePath string) bool {
	_, ok := a.extensions[Extension(filePath)]
	return ok
}

// Check returns the reason f would be skipped, or nil.
func (a *Assembler) Check(f source.File) error {
	if strings.TrimSpace(f.Content) == "" {
		return ErrEmptyFile
	}
	if !a.AllowsPath(f.Path) {
		return ErrExtensionExcluded
	}
	if utf8.RuneCountInString(f.Content) > a.maxFileChars {
		return ErrFileTooLarge
	}
	return nil
}

// Assemble chunks files in order. Global IDs run from 0 across all files.
func (a *Assembler) Assemble(ctx context.Context, files []source.File) (*Result, error) {
	result := &Result{
		Report: Report{
			Skipped:   make(map[string]int),
			Languages: make(map[string]int),
		},
	}
	dropShort := a.strategy.Name() == chunker.StrategyBoundary
	nextID := 0

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Report.FilesSeen++

		if err := a.Check(f); err != nil {
			result.Report.Skipped[err.Error()]++
			a.logger.Debug("file skipped", zap.String("path", f.Path), zap.String("reason", err.Error()))
			continue
		}
		result.Report.FilesKept++

		content := f.Content
		if a.scrubber.IsEnabled() {
			scrubbed := a.scrubber.Scrub(f.Path, content)
			if scrubbed.HasFindings() {
				result.Report.SecretsRedacted += len(scrubbed.Findings)
				a.logger.Info("secrets redacted",
					zap.String("path", f.Path),
					zap.Int("findings", len(scrubbed.Findings)),
				)
			}
			content = scrubbed.Scrubbed
		}

		language := enry.GetLanguage(path.Base(f.Path), []byte(content))

		for _, seg := range a.strategy.Split(content) {
			if dropShort && utf8.RuneCountInString(seg.Content) < a.minChunkChars {
				result.Report.ShortChunksDropped++
				continue
			}
			result.Chunks = append(result.Chunks, Chunk{
				GlobalID:   nextID,
				LocalIndex: seg.LocalIndex,
				FilePath:   f.Path,
				Content:    seg.Content,
				Language:   language,
			})
			result.Report.Languages[language]++
			nextID++
		}
	}

	a.logger.Debug("assembly complete",
		zap.Int("files_seen", result.Report.FilesSeen),
		zap.Int("files_kept", result.Report.FilesKept),
		zap.Int("chunks", len(result.Chunks)),
	)
	return result, nil
}

package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/repoindex/internal/ignore"
	"go.uber.org/zap"
)

// Dir reads files from a local checkout.
type Dir struct {
	Root string

	// MaxFileBytes skips larger files. Zero means DefaultMaxFileBytes.
	MaxFileBytes int64

	// Ignore builds the exclusion rules. Nil uses the default ignore files
	// and patterns.
	Ignore *ignore.Parser

	Logger *zap.Logger
}

// Name implements Source.
func (d *Dir) Name() string {
	return "dir:" + d.Root
}

// Files walks Root in lexical order.
func (d *Dir) Files(ctx context.Context) (*Listing, error) {
	info, err := os.Stat(d.Root)
	if err != nil {
		return nil, fmt.Errorf("reading source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", d.Root)
	}

	parser := d.Ignore
	if parser == nil {
		parser = ignore.NewParser(ignore.DefaultIgnoreFiles, ignore.DefaultPatterns)
	}
	matcher, err := parser.ParseProject(d.Root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	maxBytes := d.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	listing := &Listing{}
	name := d.Name()

	err = filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return walkErr
		}

		if walkErr != nil {
			listing.skip(name, rel, walkErr)
			logger.Warn("skipping unreadable path", zap.String("path", rel), zap.Error(walkErr))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || matcher.Match(rel, false) {
			return nil
		}

		fi, err := entry.Info()
		if err != nil {
			listing.skip(name, rel, err)
			return nil
		}
		if fi.Size() > maxBytes {
			listing.skip(name, rel, ErrTooLarge)
			logger.Debug("skipping large file", zap.String("path", rel), zap.Int64("bytes", fi.Size()))
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			listing.skip(name, rel, err)
			logger.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		if !isText(data) {
			listing.skip(name, rel, ErrBinary)
			return nil
		}

		listing.Files = append(listing.Files, File{Path: rel, Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", d.Root, err)
	}

	logger.Debug("directory source read",
		zap.String("root", d.Root),
		zap.Int("files", len(listing.Files)),
		zap.Int("skipped", len(listing.Skipped)),
	)
	return listing, nil
}

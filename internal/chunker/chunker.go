// Package chunker splits one file's text into ordered, retrieval-sized segments.
//
// Two strategies exist. Boundary mode is the default: it accumulates whole
// lines and prefers to cut at function, class or top-level block boundaries.
// Window mode slides a fixed-size character window with overlap. Both are
// pure and deterministic.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Default sizes, in characters.
const (
	DefaultTargetSize    = 850
	DefaultMinSize       = 700
	DefaultMaxSize       = 1000
	DefaultWindowSize    = 8000
	DefaultWindowOverlap = 200
)

// Strategy names accepted by New.
const (
	StrategyBoundary = "boundary"
	StrategyWindow   = "window"
)

// ErrInvalidOptions is returned for inconsistent chunk sizes.
var ErrInvalidOptions = errors.New("invalid chunker options")

// Segment is one chunk of one file. LocalIndex values increase within a
// file but may have gaps where an empty segment was discarded.
type Segment struct {
	LocalIndex int
	Content    string
}

// Strategy turns a file's text into segments.
type Strategy interface {
	Split(text string) []Segment
	// Name returns the strategy name.
	Name() string
}

// Config selects and sizes a strategy.
type Config struct {
	Strategy      string
	Options       Options
	WindowSize    int
	WindowOverlap int
}

// New builds the configured splitter.
func New(cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyBoundary, "":
		opts := cfg.Options
		if opts == (Options{}) {
			opts = DefaultOptions()
		}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		return boundaryStrategy{opts: opts}, nil
	case StrategyWindow:
		return windowStrategy{size: cfg.WindowSize, overlap: cfg.WindowOverlap}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidOptions, cfg.Strategy)
	}
}

type boundaryStrategy struct {
	opts Options
}

func (b boundaryStrategy) Split(text string) []Segment { return Chunk(text, b.opts) }
func (b boundaryStrategy) Name() string                { return StrategyBoundary }

type windowStrategy struct {
	size, overlap int
}

func (w windowStrategy) Split(text string) []Segment { return Window(text, w.size, w.overlap) }
func (w windowStrategy) Name() string                { return StrategyWindow }

// normalizeNewlines converts CRLF and lone CR line endings to LF.
func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

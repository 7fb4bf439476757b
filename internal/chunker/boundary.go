package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Options sizes boundary-mode chunks, in characters.
type Options struct {
	TargetSize int
	MinSize    int
	MaxSize    int
}

// DefaultOptions returns the 850/700/1000 sizing.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Validate checks that the sizes are positive and ordered.
func (o Options) Validate() error {
	if o.MinSize <= 0 || o.MaxSize <= 0 || o.TargetSize <= 0 {
		return fmt.Errorf("%w: sizes must be positive (min=%d target=%d max=%d)",
			ErrInvalidOptions, o.MinSize, o.TargetSize, o.MaxSize)
	}
	if o.MinSize > o.MaxSize {
		return fmt.Errorf("%w: min %d exceeds max %d", ErrInvalidOptions, o.MinSize, o.MaxSize)
	}
	if o.TargetSize < o.MinSize || o.TargetSize > o.MaxSize {
		return fmt.Errorf("%w: target %d outside [%d, %d]", ErrInvalidOptions, o.TargetSize, o.MinSize, o.MaxSize)
	}
	return nil
}

// Chunk splits text into line-aligned segments.
//
// Lines accumulate into a buffer. The buffer is flushed once its length is
// within [MinSize, MaxSize] and the line just added is a strong boundary, or
// once it reaches MaxSize. A line that would push a non-empty buffer past
// MaxSize flushes the buffer first, so a segment only exceeds MaxSize when a
// single line is longer than MaxSize on its own. Lines are never split.
//
// Every flush consumes a local index. Segments that are blank after trimming
// are dropped, leaving a gap in the index sequence.
func Chunk(text string, opts Options) []Segment {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}

	lines := strings.Split(normalizeNewlines(text), "\n")

	var (
		segments []Segment
		buf      []string
		bufLen   int
		next     int
		depth    int
		indents  = indentStack{0}
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		if content != "" {
			segments = append(segments, Segment{LocalIndex: next, Content: content})
		}
		next++
		buf = buf[:0]
		bufLen = 0
	}

	for _, line := range lines {
		lineLen := utf8.RuneCountInString(line) + 1

		if len(buf) > 0 && bufLen+lineLen > opts.MaxSize {
			flush()
		}

		buf = append(buf, line)
		bufLen += lineLen

		indents.track(line)

		prevDepth := depth
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			depth = 0
		}

		atBoundary := bufLen >= opts.MinSize && bufLen <= opts.MaxSize && isStrongBoundary(line, prevDepth, indents.level())
		if atBoundary || bufLen >= opts.MaxSize {
			flush()
		}
	}
	flush()

	return segments
}

// isStrongBoundary reports whether a chunk may end on line. prevDepth is the
// brace depth before the line was counted; indentLevel is the nesting of the
// line within indentation-scoped blocks.
func isStrongBoundary(line string, prevDepth, indentLevel int) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "def "), strings.HasPrefix(trimmed, "class "):
		return true
	case strings.HasPrefix(trimmed, "if __name__"):
		return indentLevel == 0
	case trimmed == "}" && prevDepth == 1:
		return true
	}
	return false
}

// indentStack tracks nested indentation widths for indentation-scoped code.
type indentStack []int

func (s *indentStack) track(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	indent := utf8.RuneCountInString(line) - utf8.RuneCountInString(strings.TrimLeft(line, " \t"))
	top := (*s)[len(*s)-1]
	switch {
	case indent > top:
		*s = append(*s, indent)
	case indent < top:
		for len(*s) > 1 && (*s)[len(*s)-1] > indent {
			*s = (*s)[:len(*s)-1]
		}
	}
}

func (s indentStack) level() int { return len(s) - 1 }

// Package source supplies (path, content) pairs for a repository or a pull
// request's changed files.
//
// A file that cannot be fetched or decoded is skipped and recorded in the
// listing; only failures that make the whole source unreadable are returned
// as errors.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// DefaultMaxFileBytes bounds how much of a single file a source will read.
const DefaultMaxFileBytes = 1 << 20

// File is one source file. Path is slash-separated and relative to the
// repository root.
type File struct {
	Path    string
	Content string
}

// Listing is the result of reading a source.
type Listing struct {
	Files   []File
	Skipped []*FetchError
}

// Source produces the files of one repository snapshot.
type Source interface {
	Files(ctx context.Context) (*Listing, error)
	// Name describes the source for logs.
	Name() string
}

// FetchError records a file that was skipped.
type FetchError struct {
	Source string
	Path   string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetching %s: %v", e.Source, e.Path, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var (
	// ErrBinary marks content that is not valid UTF-8 text.
	ErrBinary = errors.New("binary or non-UTF-8 content")

	// ErrTooLarge marks a file above the byte cap.
	ErrTooLarge = errors.New("file exceeds size cap")
)

// isText reports whether b looks like UTF-8 text.
func isText(b []byte) bool {
	return bytes.IndexByte(b, 0) < 0 && utf8.Valid(b)
}

func (l *Listing) skip(source, path string, err error) {
	l.Skipped = append(l.Skipped, &FetchError{Source: source, Path: path, Err: err})
}

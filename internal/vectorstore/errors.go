package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrCollectionNotFound indicates a repository that was never indexed.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidRepoName indicates an empty repository name.
	ErrInvalidRepoName = errors.New("invalid repository name")

	// ErrDimensionMismatch indicates vectors whose length differs from the
	// collection's recorded embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrProviderMismatch indicates a write from a different embedding
	// provider than the one the collection was built with.
	ErrProviderMismatch = errors.New("embedding provider mismatch")

	// ErrZeroVector indicates a vector with zero L2 norm.
	ErrZeroVector = errors.New("zero vector cannot be normalized")

	// ErrInvalidVector indicates a vector containing NaN or Inf.
	ErrInvalidVector = errors.New("vector contains NaN or Inf")

	// ErrInvalidTopK indicates a non-positive result count.
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrNotInitialized is returned by Shared before Init.
	ErrNotInitialized = errors.New("vector store not initialized")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the engine could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector engine")
)

// DimensionError reports a dimension mismatch for one repository.
type DimensionError struct {
	Repo   string
	Stored int
	Got    int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%v for %s: collection has %d, got %d", ErrDimensionMismatch, e.Repo, e.Stored, e.Got)
}

// Is matches ErrDimensionMismatch.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

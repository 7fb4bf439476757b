package embeddings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderRequired indicates a request without a provider.
	ErrProviderRequired = errors.New("embedding provider is required")

	// ErrUnsupportedProvider indicates an unknown provider tag.
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrMissingAPIKey indicates a remote provider without credentials.
	ErrMissingAPIKey = errors.New("api key not configured")

	// ErrEmbeddingFailed is matched by every *ProviderError.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrLocalUnavailable indicates a binary built without cgo, which the
	// ONNX runtime needs.
	ErrLocalUnavailable = errors.New("local embeddings unavailable: binary built without cgo")
)

// Provider names an embedding backend.
type Provider int

const (
	ProviderUnset Provider = iota
	ProviderLocal
	ProviderOpenAI
	ProviderGemini
	ProviderClaude
)

// ClaudeFallbackTag is the result tag for claude requests, which are served
// locally.
const ClaudeFallbackTag = "claude-fallback"

var providerNames = map[Provider]string{
	ProviderLocal:  "local",
	ProviderOpenAI: "openai",
	ProviderGemini: "gemini",
	ProviderClaude: "claude",
}

// Providers lists every selectable provider in declaration order.
func Providers() []Provider {
	return []Provider{ProviderLocal, ProviderOpenAI, ProviderGemini, ProviderClaude}
}

// ParseProvider converts a user supplied tag into a Provider.
// Matching ignores case and surrounding space.
func ParseProvider(tag string) (Provider, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return ProviderUnset, ErrProviderRequired
	}
	for p, name := range providerNames {
		if name == tag {
			return p, nil
		}
	}
	return ProviderUnset, fmt.Errorf("%w: %q", ErrUnsupportedProvider, tag)
}

// String returns the provider's request tag.
func (p Provider) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	if p == ProviderUnset {
		return "unset"
	}
	return fmt.Sprintf("provider(%d)", int(p))
}

// Tag returns the provider recorded on results. It differs from String only
// for claude.
func (p Provider) Tag() string {
	if p == ProviderClaude {
		return ClaudeFallbackTag
	}
	return p.String()
}

// Remote reports whether the provider calls a network API.
func (p Provider) Remote() bool {
	return p == ProviderOpenAI || p == ProviderGemini
}

// Validate returns ErrProviderRequired or ErrUnsupportedProvider for
// anything that is not a selectable provider.
func (p Provider) Validate() error {
	if p == ProviderUnset {
		return ErrProviderRequired
	}
	if _, ok := providerNames[p]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProvider, p)
	}
	return nil
}

// ProviderError reports a backend failure.
type ProviderError struct {
	// Provider is the result tag of the failing provider.
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding failed using provider %s: %v", e.Provider, e.Err)
}

// Unwrap exposes both the cause and ErrEmbeddingFailed to errors.Is.
func (e *ProviderError) Unwrap() []error {
	return []error{e.Err, ErrEmbeddingFailed}
}

// Package embeddings turns text into vectors through an explicitly chosen
// provider.
//
// The Gateway dispatches each request to the Backend registered for its
// Provider. There is no default provider: callers must name one, and the
// gateway never retries or falls back to another provider on failure.
//
// Supported providers:
//
//   - local: fastembed-go running all-MiniLM-L6-v2 through ONNX (cgo builds only)
//   - openai: text-embedding-3-large via openai-go
//   - gemini: text-embedding-004 via google.golang.org/genai
//   - claude: served by the local backend and tagged "claude-fallback"
//
// Vectors are returned as the backend produced them. Normalisation is the
// vector store's job.
package embeddings

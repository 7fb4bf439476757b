// Package vectorstore persists chunk vectors in one collection per
// repository.
//
// A Store pairs an Engine (embedded chromem-go or a Qdrant server) with a
// SQLite manifest. The manifest records each repository's embedding
// dimension and provider on first write; later writes that disagree are
// rejected before anything reaches the engine. Vectors are L2-normalized
// on the way in, and every write to one repository is serialized.
//
// Collection names are derived from repository names by an injective
// escape, so "facebook/react" lives in "repo__facebook__react".
//
// A process normally shares one Store through Init, Shared and Shutdown.
package vectorstore

// Package indexer runs the repository indexing pipeline: fetch files from a
// source, assemble chunks, embed them with one provider and store them in
// the repository's collection.
package indexer

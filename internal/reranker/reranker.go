// Package reranker reorders vector search hits using the query's terms.
package reranker

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
)

// DefaultWeight is the share of the blended score given to term overlap.
const DefaultWeight = 0.5

// Reranker reorders hits for a query and keeps at most topK of them.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []vectorstore.Hit, topK int) ([]vectorstore.Hit, error)
}

// Overlap blends each hit's similarity with the fraction of distinct query
// terms that appear in its content. Identifiers are split on case changes
// and underscores, so "parseConfig" matches a query for "parse config".
//
// The returned hits carry the blended score. Ties keep their vector order.
type Overlap struct {
	// Weight is in [0, 1]. Zero means DefaultWeight.
	Weight float32
}

// Rerank implements Reranker. A topK of zero or less keeps every hit.
func (o Overlap) Rerank(ctx context.Context, query string, hits []vectorstore.Hit, topK int) ([]vectorstore.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 || topK > len(hits) {
		topK = len(hits)
	}

	out := make([]vectorstore.Hit, len(hits))
	copy(out, hits)

	terms := distinct(Tokenize(query))
	if len(terms) == 0 {
		return out[:topK], nil
	}

	w := o.Weight
	if w <= 0 || w > 1 {
		w = DefaultWeight
	}
	for i := range out {
		overlap := termOverlap(terms, Tokenize(out[i].Content))
		out[i].Score = (1-w)*out[i].Score + w*overlap
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out[:topK], nil
}

// termOverlap is the fraction of terms present in tokens.
func termOverlap(terms, tokens []string) float32 {
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	matched := 0
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			matched++
		}
	}
	return float32(matched) / float32(len(terms))
}

func distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

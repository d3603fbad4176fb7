package rag

import (
	"context"
	"fmt"
	"strings"
)

// Gate wraps the similarity index and decides coverage against a configured
// threshold.
type Gate struct {
	embedder  Embedder
	index     SimilarityIndex
	topK      int
	threshold float64
}

// NewGate builds the retrieval gate. topK and threshold fall back to 5 and
// 0.7 when unset.
func NewGate(embedder Embedder, index SimilarityIndex, topK int, threshold float64) *Gate {
	if topK <= 0 {
		topK = 5
	}
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Gate{embedder: embedder, index: index, topK: topK, threshold: threshold}
}

// Evaluate embeds the question, fetches the top-K nearest fragments, and
// compares the best score against the threshold. Fragments come back
// unmodified in index order regardless of coverage. Embedding and index
// failures are not retried here; they short-circuit the whole query.
func (g *Gate) Evaluate(ctx context.Context, queryText string) (CoverageDecision, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return CoverageDecision{}, nil
	}

	vectors, err := g.embedder.CreateEmbedding(ctx, []string{queryText})
	if err != nil {
		return CoverageDecision{}, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(vectors) == 0 {
		return CoverageDecision{}, fmt.Errorf("%w: provider returned no vectors", ErrEmbeddingUnavailable)
	}

	fragments, err := g.index.Search(ctx, vectors[0], g.topK)
	if err != nil {
		return CoverageDecision{}, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	var maxSimilarity float64
	for _, f := range fragments {
		if f.Similarity > maxSimilarity {
			maxSimilarity = f.Similarity
		}
	}

	return CoverageDecision{
		Covered:       maxSimilarity >= g.threshold,
		Fragments:     fragments,
		MaxSimilarity: maxSimilarity,
	}, nil
}

// Threshold exposes the configured cutoff for observability endpoints.
func (g *Gate) Threshold() float64 { return g.threshold }

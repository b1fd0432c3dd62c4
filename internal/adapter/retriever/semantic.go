// Package retriever finds the chunks most relevant to a query.
package retriever

import (
	"context"
	"fmt"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// SemanticRetriever ranks chunks by cosine similarity between the query
// embedding and the stored chunk vectors.
type SemanticRetriever struct {
	vectorStore port.VectorStore
	embedder    port.Embedder
	chunkStore  port.IndexStore
	threshold   float64
	useThresh   bool
}

func NewSemanticRetriever(
	vectorStore port.VectorStore,
	embedder port.Embedder,
	chunkStore port.IndexStore,
) *SemanticRetriever {
	return &SemanticRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
		chunkStore:  chunkStore,
	}
}

// WithScoreThreshold drops results scoring below threshold.
func (r *SemanticRetriever) WithScoreThreshold(threshold float64) *SemanticRetriever {
	r.threshold = threshold
	r.useThresh = true
	return r
}

func (r *SemanticRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	const op = "retriever.semantic"

	if r.vectorStore == nil || r.embedder == nil {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "semantic search not available: embeddings not configured")
	}
	if k <= 0 {
		return nil, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, domain.E(domain.KindEmbedding, op, fmt.Errorf("failed to embed query: %w", err))
	}
	if len(embeddings) == 0 {
		return nil, domain.Errorf(domain.KindEmbedding, op, "embedding returned empty result")
	}

	results, err := r.vectorStore.Search(ctx, embeddings[0], k)
	if err != nil {
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("vector search failed: %w", err))
	}

	return r.load(results), nil
}

// load resolves vector hits to chunks, skipping hits whose chunk is gone.
func (r *SemanticRetriever) load(results []port.VectorResult) []domain.ScoredChunk {
	chunks := make([]domain.ScoredChunk, 0, len(results))
	for _, result := range results {
		if r.useThresh && result.Score < r.threshold {
			continue
		}
		chunk, err := r.chunkStore.GetChunk(result.ID)
		if err != nil {
			continue
		}
		chunks = append(chunks, domain.ScoredChunk{
			Chunk: chunk,
			Score: result.Score,
		})
	}
	return chunks
}

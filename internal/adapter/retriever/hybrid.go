package retriever

import (
	"context"
	"log/slog"
	"sort"

	"taxrag/internal/domain"
)

// HybridRetriever fuses BM25 and vector similarity rankings with reciprocal
// rank fusion.
type HybridRetriever struct {
	bm25       *BM25Retriever
	semantic   *SemanticRetriever
	rrfK       int
	bm25Weight float64
	logger     *slog.Logger
}

func NewHybridRetriever(bm25 *BM25Retriever, semantic *SemanticRetriever, rrfK int, bm25Weight float64, logger *slog.Logger) *HybridRetriever {
	if rrfK <= 0 {
		rrfK = 60
	}
	if bm25Weight < 0 || bm25Weight > 1 {
		bm25Weight = 0.5
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HybridRetriever{
		bm25:       bm25,
		semantic:   semantic,
		rrfK:       rrfK,
		bm25Weight: bm25Weight,
		logger:     logger,
	}
}

// Search falls back to whichever side still works when the other fails.
func (r *HybridRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if r.semantic == nil {
		return r.bm25.Search(ctx, query, k)
	}

	candidateK := max(k*3, 20)

	bm25Results, bm25Err := r.bm25.Search(ctx, query, candidateK)
	vectorResults, vecErr := r.semantic.Search(ctx, query, candidateK)

	switch {
	case bm25Err != nil && vecErr != nil:
		return nil, vecErr
	case bm25Err != nil:
		r.logger.Warn("BM25 search failed, using vector results only", slog.String("error", bm25Err.Error()))
		return truncate(vectorResults, k), nil
	case vecErr != nil:
		r.logger.Warn("Vector search failed, using BM25 results only", slog.String("error", vecErr.Error()))
		return truncate(bm25Results, k), nil
	}

	return truncate(r.rrfFuse(bm25Results, vectorResults), k), nil
}

// rrfFuse scores each chunk as Σ weight/(rrfK + rank) over the lists it appears in.
func (r *HybridRetriever) rrfFuse(bm25Results, vectorResults []domain.ScoredChunk) []domain.ScoredChunk {
	rrfScores := make(map[string]float64)
	chunkMap := make(map[string]domain.Chunk)

	for rank, result := range bm25Results {
		rrfScores[result.Chunk.ID] += r.bm25Weight / float64(r.rrfK+rank+1)
		chunkMap[result.Chunk.ID] = result.Chunk
	}

	vectorWeight := 1.0 - r.bm25Weight
	for rank, result := range vectorResults {
		rrfScores[result.Chunk.ID] += vectorWeight / float64(r.rrfK+rank+1)
		if _, exists := chunkMap[result.Chunk.ID]; !exists {
			chunkMap[result.Chunk.ID] = result.Chunk
		}
	}

	fused := make([]domain.ScoredChunk, 0, len(rrfScores))
	for id, score := range rrfScores {
		fused = append(fused, domain.ScoredChunk{Chunk: chunkMap[id], Score: score})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})

	return fused
}

func truncate(results []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(results) > k {
		return results[:k]
	}
	return results
}

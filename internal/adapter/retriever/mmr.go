package retriever

import (
	"context"
	"math"
	"slices"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// MMRReranker implements Maximal Marginal Relevance for result diversification.
type MMRReranker struct {
	lambda       float64
	dedupJaccard float64
}

// samePagePenalty is the redundancy of a chunk whose page already has a
// selected chunk. Neighbouring chunks of one page share the splitter overlap
// and usually restate the same rule.
const samePagePenalty = 0.5

func NewMMRReranker(lambda, dedupJaccard float64) *MMRReranker {
	return &MMRReranker{
		lambda:       lambda,
		dedupJaccard: dedupJaccard,
	}
}

// Rerank picks up to k candidates greedily by
// MMR(c) = λ * relevance(c) - (1-λ) * redundancy(c, selected).
// Relevance is the retrieval score scaled by the best score in the pool.
// Redundancy is the highest token overlap with a selected chunk, raised to
// samePagePenalty when a selected chunk comes from the same page.
func (r *MMRReranker) Rerank(candidates []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	k = min(k, len(candidates))

	top := 0.0
	for _, c := range candidates {
		top = max(top, c.Score)
	}
	if top == 0 {
		top = 1
	}

	selected := make([]domain.ScoredChunk, 0, k)
	remaining := slices.Clone(candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)

		for i, c := range remaining {
			overlap := maxOverlap(c, selected)
			// the same paragraph reprinted in another publication
			if overlap > r.dedupJaccard {
				continue
			}
			redundancy := overlap
			if sharesPage(c, selected) {
				redundancy = max(redundancy, samePagePenalty)
			}

			if mmr := r.lambda*(c.Score/top) - (1-r.lambda)*redundancy; mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		// everything left duplicates a selected chunk
		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = slices.Delete(remaining, bestIdx, bestIdx+1)
	}

	return selected
}

func maxOverlap(c domain.ScoredChunk, selected []domain.ScoredChunk) float64 {
	best := 0.0
	for _, s := range selected {
		best = max(best, jaccardSimilarity(c.Chunk.Tokens, s.Chunk.Tokens))
	}
	return best
}

// sharesPage reports whether a selected chunk was split from the same page
// document. Chunks without a document ID never match.
func sharesPage(c domain.ScoredChunk, selected []domain.ScoredChunk) bool {
	if c.Chunk.DocID == "" {
		return false
	}
	for _, s := range selected {
		if s.Chunk.DocID == c.Chunk.DocID {
			return true
		}
	}
	return false
}

// MMRRetriever over-fetches from a base retriever and diversifies the pool.
type MMRRetriever struct {
	base     port.Retriever
	reranker *MMRReranker
	fetchK   int
}

func NewMMRRetriever(base port.Retriever, reranker *MMRReranker, fetchK int) *MMRRetriever {
	return &MMRRetriever{base: base, reranker: reranker, fetchK: fetchK}
}

func (r *MMRRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	candidates, err := r.base.Search(ctx, query, max(r.fetchK, k))
	if err != nil {
		return nil, err
	}
	return r.reranker.Rerank(candidates, k), nil
}

// jaccardSimilarity is |A∩B| / |A∪B| over the distinct tokens of a and b.
// Two empty chunks count as identical.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == len(b) {
			return 1
		}
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	union := len(setA)
	shared := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := setA[t]; ok {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

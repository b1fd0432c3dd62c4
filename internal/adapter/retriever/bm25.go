package retriever

import (
	"context"
	"math"
	"sort"

	"taxrag/internal/adapter/analyzer"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// BM25Retriever scores chunks lexically from the postings in the index store.
type BM25Retriever struct {
	store     port.IndexStore
	tokenizer *analyzer.Tokenizer
	k1        float64
	b         float64
}

func NewBM25Retriever(store port.IndexStore, tokenizer *analyzer.Tokenizer, k1, b float64) *BM25Retriever {
	return &BM25Retriever{
		store:     store,
		tokenizer: tokenizer,
		k1:        k1,
		b:         b,
	}
}

func (r *BM25Retriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	queryTokens := r.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 || k <= 0 {
		return nil, nil
	}

	stats, err := r.store.GetStats()
	if err != nil {
		return nil, domain.E(domain.KindStorage, "retriever.bm25", err)
	}
	if stats.TotalChunks == 0 {
		return nil, nil
	}
	avgDl := stats.AvgChunkLen
	if avgDl <= 0 {
		avgDl = 1
	}

	seen := make(map[string]struct{}, len(queryTokens))
	chunkScores := make(map[string]float64)
	chunks := make(map[string]domain.Chunk)
	N := float64(stats.TotalChunks)

	for _, term := range queryTokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, err := r.store.GetPostings(term)
		if err != nil {
			continue
		}

		n := float64(len(postings))
		idf := math.Log((N-n+0.5)/(n+0.5) + 1)

		for _, posting := range postings {
			chunk, ok := chunks[posting.ChunkID]
			if !ok {
				chunk, err = r.store.GetChunk(posting.ChunkID)
				if err != nil {
					continue
				}
				chunks[posting.ChunkID] = chunk
			}

			dl := float64(len(chunk.Tokens))
			tf := float64(posting.TF)
			chunkScores[posting.ChunkID] += idf * (tf * (r.k1 + 1)) / (tf + r.k1*(1-r.b+r.b*dl/avgDl))
		}
	}

	results := make([]domain.ScoredChunk, 0, len(chunkScores))
	for chunkID, score := range chunkScores {
		results = append(results, domain.ScoredChunk{Chunk: chunks[chunkID], Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// TermFrequencies counts tokens for building postings.
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"taxrag/internal/adapter/analyzer"
)

// MockEmbedder hashes tokens into a fixed-size bag-of-words vector. Texts that
// share vocabulary land close together, which is enough for offline runs and
// retrieval tests.
type MockEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension, tokenizer: analyzer.NewTokenizer(true)}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		for _, tok := range e.tokenizer.Tokenize(text) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[h.Sum32()%uint32(e.dimension)]++
		}
		normalize(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

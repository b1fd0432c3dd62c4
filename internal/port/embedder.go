package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores and searches embedding vectors.
type VectorStore interface {
	// Upsert adds or updates vectors in the store.
	Upsert(ctx context.Context, items []VectorItem) error

	// Search finds the k nearest vectors to the query.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)

	// Delete removes vectors by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of vectors in the store.
	Count(ctx context.Context) (int, error)

	// Reset removes every vector.
	Reset(ctx context.Context) error
}

// VectorItem represents a vector to be stored.
type VectorItem struct {
	ID       string            // Unique identifier (chunk ID)
	Vector   []float32         // Embedding vector
	Metadata map[string]string // Optional metadata (source, page)
}

// VectorResult represents a search result.
type VectorResult struct {
	ID       string            // Chunk ID
	Score    float64           // Cosine similarity (higher is better)
	Metadata map[string]string // Stored metadata
}

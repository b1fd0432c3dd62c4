package port

import "taxrag/internal/domain"

// IndexStore holds documents, chunk text and lexical postings.
type IndexStore interface {
	GetDoc(id string) (domain.Document, error)

	ListDocs() ([]domain.Document, error)

	GetChunk(id string) (domain.Chunk, error)

	GetChunksByDoc(docID string) ([]domain.Chunk, error)

	GetPostings(term string) ([]domain.Posting, error)

	GetStats() (domain.Stats, error)

	UpdateStats(stats domain.Stats) error

	BatchIndex(docs []IndexedDoc) error

	Clear() error
}

type IndexedDoc struct {
	Doc      domain.Document
	Chunks   []domain.Chunk
	Postings map[string]map[string]int
}

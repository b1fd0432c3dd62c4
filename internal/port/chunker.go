package port

import "taxrag/internal/domain"

// Splitter turns page documents into overlapping chunks.
type Splitter interface {
	SplitDocuments(docs []domain.Document) []domain.Chunk
}

// DocumentParser extracts page documents from a file on disk.
type DocumentParser interface {
	Parse(path, source string) ([]domain.Document, error)
}

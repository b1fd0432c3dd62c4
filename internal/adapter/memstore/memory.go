// Package memstore keeps the index and vectors in process memory. It backs
// tests and throwaway runs.
package memstore

import (
	"sort"
	"sync"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]domain.Document
	chunks    map[string]domain.Chunk
	docChunks map[string][]string
	postings  map[string][]domain.Posting
	stats     domain.Stats
}

var _ port.IndexStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.docs = make(map[string]domain.Document)
	s.chunks = make(map[string]domain.Chunk)
	s.docChunks = make(map[string][]string)
	s.postings = make(map[string][]domain.Posting)
	s.stats = domain.Stats{}
}

func (s *MemoryStore) GetDoc(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, domain.Errorf(domain.KindNotFound, "memstore.get_doc", "document not found: %s", id)
	}
	return doc, nil
}

// ListDocs returns documents ordered by ID.
func (s *MemoryStore) ListDocs() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) GetChunk(id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, domain.Errorf(domain.KindNotFound, "memstore.get_chunk", "chunk not found: %s", id)
	}
	return chunk, nil
}

func (s *MemoryStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunkIDs := s.docChunks[docID]
	chunks := make([]domain.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := s.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (s *MemoryStore) GetPostings(term string) ([]domain.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Posting(nil), s.postings[term]...), nil
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *MemoryStore) UpdateStats(stats domain.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	return nil
}

func (s *MemoryStore) BatchIndex(docs []port.IndexedDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range docs {
		s.docs[d.Doc.ID] = d.Doc

		for _, chunk := range d.Chunks {
			s.chunks[chunk.ID] = chunk
			s.docChunks[chunk.DocID] = append(s.docChunks[chunk.DocID], chunk.ID)
		}

		for term, chunkPostings := range d.Postings {
			for chunkID, tf := range chunkPostings {
				s.postings[term] = append(s.postings[term], domain.Posting{
					ChunkID: chunkID,
					TF:      tf,
				})
			}
		}
	}

	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

var bucketVectors = []byte("vectors")

// BoltVectorStore implements VectorStore on bbolt with an in-memory copy of
// every vector. Search is brute force cosine similarity.
type BoltVectorStore struct {
	db        *bbolt.DB
	dimension int
	mu        sync.RWMutex
	vectors   map[string]vectorEntry
}

var _ port.VectorStore = (*BoltVectorStore)(nil)

type vectorEntry struct {
	vector   []float32
	metadata map[string]string
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Metadata map[string]string `json:"m,omitempty"`
}

func NewBoltVectorStore(db *bbolt.DB, dimension int) (*BoltVectorStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		return nil, domain.E(domain.KindStorage, "store.vectors", fmt.Errorf("failed to create vectors bucket: %w", err))
	}

	store := &BoltVectorStore{
		db:        db,
		dimension: dimension,
		vectors:   make(map[string]vectorEntry),
	}

	if err := store.loadVectors(); err != nil {
		return nil, domain.E(domain.KindStorage, "store.vectors", fmt.Errorf("failed to load vectors: %w", err))
	}

	return store, nil
}

func (s *BoltVectorStore) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // skip corrupted entries
			}
			s.vectors[string(k)] = vectorEntry{
				vector:   stored.Vector,
				metadata: stored.Metadata,
			}
			return nil
		})
	})
}

func (s *BoltVectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]vectorEntry, len(items))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return fmt.Errorf("vectors bucket not found")
		}

		for _, item := range items {
			if len(item.Vector) != s.dimension {
				return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(item.Vector))
			}

			data, err := json.Marshal(storedVector{Vector: item.Vector, Metadata: item.Metadata})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(item.ID), data); err != nil {
				return err
			}
			staged[item.ID] = vectorEntry{vector: item.Vector, metadata: item.Metadata}
		}
		return nil
	})
	if err != nil {
		return domain.E(domain.KindStorage, "store.upsert", err)
	}

	for id, e := range staged {
		s.vectors[id] = e
	}
	return nil
}

// Search returns the k vectors most similar to query.
func (s *BoltVectorStore) Search(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dimension {
		return nil, domain.Errorf(domain.KindInvalidInput, "store.search",
			"query dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}

	if len(s.vectors) == 0 || k <= 0 {
		return nil, nil
	}

	results := make([]port.VectorResult, 0, len(s.vectors))
	for id, entry := range s.vectors {
		results = append(results, port.VectorResult{
			ID:       id,
			Score:    CosineSimilarity(query, entry.vector),
			Metadata: entry.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *BoltVectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.E(domain.KindStorage, "store.delete", err)
	}
	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

func (s *BoltVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// Reset drops every stored vector.
func (s *BoltVectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketVectors); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketVectors)
		return err
	})
	if err != nil {
		return domain.E(domain.KindStorage, "store.reset", err)
	}
	s.vectors = make(map[string]vectorEntry)
	return nil
}

// CosineSimilarity returns 0 for mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

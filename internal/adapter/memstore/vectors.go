package memstore

import (
	"context"
	"sort"
	"sync"

	"taxrag/internal/adapter/store"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// VectorStore is a brute-force in-memory port.VectorStore.
type VectorStore struct {
	mu        sync.RWMutex
	dimension int
	items     map[string]port.VectorItem
}

var _ port.VectorStore = (*VectorStore)(nil)

func NewVectorStore(dimension int) *VectorStore {
	return &VectorStore{dimension: dimension, items: make(map[string]port.VectorItem)}
}

func (v *VectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, item := range items {
		if len(item.Vector) != v.dimension {
			return domain.Errorf(domain.KindStorage, "memstore.upsert",
				"vector dimension mismatch: expected %d, got %d", v.dimension, len(item.Vector))
		}
	}
	for _, item := range items {
		v.items[item.ID] = item
	}
	return nil
}

func (v *VectorStore) Search(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.dimension {
		return nil, domain.Errorf(domain.KindInvalidInput, "memstore.search",
			"query dimension mismatch: expected %d, got %d", v.dimension, len(query))
	}

	results := make([]port.VectorResult, 0, len(v.items))
	for id, item := range v.items {
		results = append(results, port.VectorResult{
			ID:       id,
			Score:    store.CosineSimilarity(query, item.Vector),
			Metadata: item.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:max(k, 0)]
	}
	return results, nil
}

func (v *VectorStore) Delete(ctx context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.items, id)
	}
	return nil
}

func (v *VectorStore) Count(ctx context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.items), nil
}

func (v *VectorStore) Reset(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = make(map[string]port.VectorItem)
	return nil
}

// Package store persists the document index and chunk vectors in bbolt.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

var (
	bucketDocs      = []byte("docs")
	bucketChunks    = []byte("chunks")
	bucketBlobs     = []byte("blobs")
	bucketTerms     = []byte("terms")
	bucketStats     = []byte("stats")
	bucketDocChunks = []byte("doc_chunks")
	keyStats        = []byte("corpus_stats")
)

// indexBuckets are emptied by Clear. The stats bucket is handled separately
// because it also holds schema info.
var indexBuckets = [][]byte{bucketDocs, bucketChunks, bucketBlobs, bucketTerms, bucketDocChunks}

type BoltStore struct {
	db *bbolt.DB
}

var _ port.IndexStore = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, domain.E(domain.KindStorage, "store.open", fmt.Errorf("failed to open bolt db: %w", err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range append(indexBuckets, bucketStats) {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, domain.E(domain.KindStorage, "store.open", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

type docMeta struct {
	Source    string `json:"source"`
	Path      string `json:"path"`
	Title     string `json:"title,omitempty"`
	Page      int    `json:"page"`
	PageCount int    `json:"page_count,omitempty"`
	FetchedAt int64  `json:"fetched_at,omitempty"`
}

type chunkMeta struct {
	DocID  string   `json:"doc_id"`
	Source string   `json:"source"`
	Page   int      `json:"page"`
	Index  int      `json:"index"`
	Tokens []string `json:"tokens"`
}

func newDocMeta(doc domain.Document) docMeta {
	m := docMeta{
		Source:    doc.Source,
		Path:      doc.Path,
		Title:     doc.Title,
		Page:      doc.Page,
		PageCount: doc.PageCount,
	}
	if !doc.FetchedAt.IsZero() {
		m.FetchedAt = doc.FetchedAt.Unix()
	}
	return m
}

func (m docMeta) document(id string) domain.Document {
	doc := domain.Document{
		ID:        id,
		Source:    m.Source,
		Path:      m.Path,
		Title:     m.Title,
		Page:      m.Page,
		PageCount: m.PageCount,
	}
	if m.FetchedAt > 0 {
		doc.FetchedAt = time.Unix(m.FetchedAt, 0)
	}
	return doc
}

func (m chunkMeta) chunk(id string, text []byte) domain.Chunk {
	return domain.Chunk{
		ID:     id,
		DocID:  m.DocID,
		Source: m.Source,
		Page:   m.Page,
		Index:  m.Index,
		Tokens: m.Tokens,
		Text:   string(text),
	}
}

func (s *BoltStore) GetDoc(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return domain.Errorf(domain.KindNotFound, "store.get_doc", "document not found: %s", id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = meta.document(id)
		return nil
	})
	return doc, err
}

func (s *BoltStore) ListDocs() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			docs = append(docs, meta.document(string(k)))
			return nil
		})
	})
	return docs, err
}

func (s *BoltStore) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return domain.Errorf(domain.KindNotFound, "store.get_chunk", "chunk not found: %s", id)
		}
		var meta chunkMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		chunk = meta.chunk(id, tx.Bucket(bucketBlobs).Get([]byte(id)))
		return nil
	})
	return chunk, err
}

func (s *BoltStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocChunks).Get([]byte(docID))
		if data == nil {
			return nil
		}
		var chunkIDs []string
		if err := json.Unmarshal(data, &chunkIDs); err != nil {
			return err
		}
		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)
		for _, id := range chunkIDs {
			data := chunkBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			var meta chunkMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				continue
			}
			chunks = append(chunks, meta.chunk(id, blobBucket.Get([]byte(id))))
		}
		return nil
	})
	return chunks, err
}

func (s *BoltStore) GetPostings(term string) ([]domain.Posting, error) {
	var postings []domain.Posting
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTerms).Get([]byte(term))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &postings)
	})
	return postings, err
}

func (s *BoltStore) GetStats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStats).Get(keyStats)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	return stats, err
}

func (s *BoltStore) UpdateStats(stats domain.Stats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketStats).Put(keyStats, data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// BatchIndex writes documents, chunks and postings in a single transaction.
func (s *BoltStore) BatchIndex(docs []port.IndexedDoc) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docsBucket := tx.Bucket(bucketDocs)
		chunksBucket := tx.Bucket(bucketChunks)
		blobsBucket := tx.Bucket(bucketBlobs)
		docChunksBucket := tx.Bucket(bucketDocChunks)
		termsBucket := tx.Bucket(bucketTerms)

		allPostings := make(map[string][]domain.Posting)

		for _, d := range docs {
			data, err := json.Marshal(newDocMeta(d.Doc))
			if err != nil {
				return err
			}
			if err := docsBucket.Put([]byte(d.Doc.ID), data); err != nil {
				return err
			}

			chunkIDs := make([]string, 0, len(d.Chunks))
			for _, chunk := range d.Chunks {
				data, err := json.Marshal(chunkMeta{
					DocID:  chunk.DocID,
					Source: chunk.Source,
					Page:   chunk.Page,
					Index:  chunk.Index,
					Tokens: chunk.Tokens,
				})
				if err != nil {
					return err
				}
				if err := chunksBucket.Put([]byte(chunk.ID), data); err != nil {
					return err
				}
				if err := blobsBucket.Put([]byte(chunk.ID), []byte(chunk.Text)); err != nil {
					return err
				}
				chunkIDs = append(chunkIDs, chunk.ID)
			}

			chunkIDsData, err := json.Marshal(chunkIDs)
			if err != nil {
				return err
			}
			if err := docChunksBucket.Put([]byte(d.Doc.ID), chunkIDsData); err != nil {
				return err
			}

			for term, chunkTFs := range d.Postings {
				for chunkID, tf := range chunkTFs {
					allPostings[term] = append(allPostings[term], domain.Posting{ChunkID: chunkID, TF: tf})
				}
			}
		}

		for term, newPostings := range allPostings {
			var existing []domain.Posting
			if data := termsBucket.Get([]byte(term)); data != nil {
				if err := json.Unmarshal(data, &existing); err != nil {
					return fmt.Errorf("corrupt postings for %q: %w", term, err)
				}
			}
			existing = append(existing, newPostings...)
			data, err := json.Marshal(existing)
			if err != nil {
				return err
			}
			if err := termsBucket.Put([]byte(term), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// Clear removes all indexed data and corpus stats. Schema info survives.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range indexBuckets {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketStats).Delete(keyStats)
	})
}

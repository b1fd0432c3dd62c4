package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"taxrag/config"
	"taxrag/internal/domain"
)

// CurrentSchemaVersion is bumped on breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
	keyEmbedding     = []byte("embedding")
)

// SchemaInfo stores schema version, configuration hash and the embedding
// model the vectors were produced with.
type SchemaInfo struct {
	Version        int    `json:"version"`
	ConfigHash     string `json:"config_hash"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
}

type embeddingInfo struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)
		if b == nil {
			return nil
		}

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				return fmt.Errorf("corrupt schema version: %w", err)
			}
		}
		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}
		if embData := b.Get(keyEmbedding); embData != nil {
			var emb embeddingInfo
			if err := json.Unmarshal(embData, &emb); err == nil {
				info.EmbeddingModel = emb.Model
				info.Dimension = emb.Dimension
			}
		}
		return nil
	})
	return &info, err
}

func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		embData, err := json.Marshal(embeddingInfo{Model: info.EmbeddingModel, Dimension: info.Dimension})
		if err != nil {
			return err
		}
		if err := b.Put(keyEmbedding, embData); err != nil {
			return err
		}
		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the settings that shape the stored index. A change
// means the index should be rebuilt.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
		EmbProvider  string `json:"emb_provider"`
		EmbModel     string `json:"emb_model"`
		EmbDimension int    `json:"emb_dimension"`
	}{
		ChunkSize:    cfg.Data.ChunkSize,
		ChunkOverlap: cfg.Data.ChunkOverlap,
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
		EmbDimension: cfg.Embedding.EmbeddingDimension(),
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

func (s *BoltStore) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if info.ConfigHash != "" && info.ConfigHash != ComputeConfigHash(cfg) {
		result.NeedsRebuild = true
		result.Reason = "index configuration changed"
	}

	return result, nil
}

// Migrate runs pending schema migrations and records the current config.
func (s *BoltStore) Migrate(cfg *config.Config) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return s.SetSchemaInfo(&SchemaInfo{
		Version:        CurrentSchemaVersion,
		ConfigHash:     ComputeConfigHash(cfg),
		EmbeddingModel: cfg.Embedding.Model,
		Dimension:      cfg.Embedding.EmbeddingDimension(),
	})
}

func (s *BoltStore) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		return s.db.Update(func(tx *bbolt.Tx) error {
			for _, b := range indexBuckets {
				if _, err := tx.CreateBucketIfNotExists(b); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return nil
	}
}

// RecordEmbedding stores the embedding model and dimension cfg selects,
// leaving the schema version and config hash alone. It is called as soon as
// the old vectors are dropped so a run that fails part way never leaves the
// previous model on record.
func (s *BoltStore) RecordEmbedding(cfg *config.Config) error {
	data, err := json.Marshal(embeddingInfo{Model: cfg.Embedding.Model, Dimension: cfg.Embedding.EmbeddingDimension()})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStats).Put(keyEmbedding, data)
	})
}

// CheckEmbedding returns an error when the stored vectors were produced by a
// different embedding model or dimension than cfg selects. An index with no
// recorded model passes.
func (s *BoltStore) CheckEmbedding(cfg *config.Config) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return domain.E(domain.KindStorage, "store.check_embedding", err)
	}
	if info.EmbeddingModel == "" {
		return nil
	}
	if info.EmbeddingModel != cfg.Embedding.Model || info.Dimension != cfg.Embedding.EmbeddingDimension() {
		return domain.Errorf(domain.KindInvalidInput, "store.check_embedding",
			"index was built with embedding model %s (dimension %d), configured %s (dimension %d); re-run index",
			info.EmbeddingModel, info.Dimension, cfg.Embedding.Model, cfg.Embedding.EmbeddingDimension())
	}
	return nil
}

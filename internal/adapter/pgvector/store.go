// Package pgvector stores chunk vectors in PostgreSQL using the pgvector
// extension.
package pgvector

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// Store implements port.VectorStore on a single table:
// (id text primary key, embedding vector(n), metadata jsonb).
type Store struct {
	pool      *pgxpool.Pool
	table     string // sanitized identifier
	dimension int
	logger    *slog.Logger
}

var _ port.VectorStore = (*Store)(nil)

// Connect opens a pool for dsn (DATABASE_URL when empty) and makes sure the
// extension and table exist.
func Connect(ctx context.Context, dsn, table string, dimension int, logger *slog.Logger) (*Store, error) {
	const op = "pgvector.connect"

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "vector_store.dsn is empty and DATABASE_URL is not set")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, op, fmt.Errorf("unable to parse dsn: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("unable to create pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Failed to connect to the database", slog.String("error", err.Error()))
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("failed to connect: %w", err))
	}

	s := &Store{
		pool:      pool,
		table:     TableIdentifier(table),
		dimension: dimension,
		logger:    logger,
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Connected to pgvector store",
		slog.String("table", s.table),
		slog.Int("dimension", dimension))
	return s, nil
}

// TableIdentifier quotes name for use in SQL. An empty name selects the
// default table.
func TableIdentifier(name string) string {
	if name == "" {
		name = "taxrag_vectors"
	}
	return pgx.Identifier{name}.Sanitize()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb
		)`, s.table, s.dimension),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			s.logger.Error("Failed to prepare schema", slog.String("error", err.Error()))
			return domain.E(domain.KindStorage, "pgvector.schema", err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, items []port.VectorItem) error {
	if len(items) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, embedding, metadata) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`, s.table)

	batch := &pgx.Batch{}
	for _, item := range items {
		if len(item.Vector) != s.dimension {
			return domain.Errorf(domain.KindStorage, "pgvector.upsert",
				"vector dimension mismatch: expected %d, got %d", s.dimension, len(item.Vector))
		}
		meta := item.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		batch.Queue(query, item.ID, pgvector.NewVector(item.Vector), meta)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		s.logger.Error("Failed to upsert vectors",
			slog.Int("count", len(items)),
			slog.String("error", err.Error()))
		return domain.E(domain.KindStorage, "pgvector.upsert", err)
	}
	return nil
}

// Search ranks by cosine distance; Score is 1 - distance.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if len(query) != s.dimension {
		return nil, domain.Errorf(domain.KindInvalidInput, "pgvector.search",
			"query dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1) AS score, metadata
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(query), k)
	if err != nil {
		return nil, domain.E(domain.KindStorage, "pgvector.search", err)
	}
	defer rows.Close()

	var results []port.VectorResult
	for rows.Next() {
		var r port.VectorResult
		if err := rows.Scan(&r.ID, &r.Score, &r.Metadata); err != nil {
			return nil, domain.E(domain.KindStorage, "pgvector.search", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindStorage, "pgvector.search", err)
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.table), ids)
	if err != nil {
		return domain.E(domain.KindStorage, "pgvector.delete", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, domain.E(domain.KindStorage, "pgvector.count", err)
	}
	return n, nil
}

func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", s.table)); err != nil {
		return domain.E(domain.KindStorage, "pgvector.reset", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

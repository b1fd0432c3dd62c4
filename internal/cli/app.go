package cli

import (
	"context"
	"fmt"
	"log/slog"

	"taxrag/config"
	"taxrag/internal/adapter/analyzer"
	"taxrag/internal/adapter/embedding"
	"taxrag/internal/adapter/history"
	"taxrag/internal/adapter/llm"
	"taxrag/internal/adapter/pgvector"
	"taxrag/internal/adapter/store"
	"taxrag/internal/port"
	"taxrag/internal/usecase"
)

// app holds the stores and embedder shared by every command.
type app struct {
	index    *store.BoltStore
	vectors  port.VectorStore
	embedder port.Embedder
	closers  []func()
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create data directories: %w", err)
	}

	st, err := store.NewBoltStore(cfg.IndexDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	a := &app{index: st}
	a.closers = append(a.closers, func() { st.Close() })

	a.embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	switch cfg.VectorStore.Backend {
	case "bolt", "":
		vs, err := store.NewBoltVectorStore(st.DB(), a.embedder.Dimension())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		a.vectors = vs
	case "postgres":
		pg, err := pgvector.Connect(ctx, cfg.VectorStore.DSN, cfg.VectorStore.Table, a.embedder.Dimension(), logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.vectors = pg
		a.closers = append(a.closers, pg.Close)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown vector store backend: %s", cfg.VectorStore.Backend)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// retriever checks that an index built with the configured embedding model
// exists and wires the configured search type over it.
func (a *app) retriever(cfg *config.Config) (*usecase.RetrieveUseCase, error) {
	stats, err := a.index.GetStats()
	if err != nil {
		return nil, err
	}
	if stats.TotalChunks == 0 {
		return nil, fmt.Errorf("no index found. Run 'taxrag index' first")
	}
	if !stats.Complete {
		logger.Warn("Index is incomplete, results may be missing documents",
			slog.Int("chunks", stats.TotalChunks),
			slog.Int("embedded", stats.Embedded))
	}
	if err := a.index.CheckEmbedding(cfg); err != nil {
		return nil, err
	}
	return usecase.NewRetrieveUseCase(cfg.Retrieve, a.index, a.vectors, a.embedder, analyzer.NewTokenizer(true), logger)
}

// historyStore is both session history and feedback storage.
type historyStore interface {
	port.HistoryStore
	port.FeedbackStore
	Close() error
}

func openHistory(cfg *config.Config) (historyStore, error) {
	switch cfg.Chat.HistoryBackend {
	case "memory", "":
		return history.NewMemoryStore(), nil
	case "sqlite":
		st, err := history.NewSQLiteStore(cfg.Chat.HistoryPath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s", cfg.Chat.HistoryBackend)
	}
}

func (a *app) chain(cfg *config.Config, hist port.HistoryStore) (*usecase.Chain, error) {
	ret, err := a.retriever(cfg)
	if err != nil {
		return nil, err
	}
	model, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	prompts, err := usecase.LoadPrompts(cfg.Chat.ContextualizePrompt, cfg.Chat.QAPrompt)
	if err != nil {
		return nil, err
	}
	return usecase.NewChain(model, ret, hist, prompts, usecase.ChainOptions{
		K:               cfg.Retrieve.K,
		MaxHistoryTurns: cfg.Chat.MaxHistoryTurns,
		Verbose:         verbose,
		Logger:          logger,
	}), nil
}

package usecase

import (
	"context"
	"log/slog"

	"taxrag/config"
	"taxrag/internal/adapter/analyzer"
	"taxrag/internal/adapter/cache"
	"taxrag/internal/adapter/retriever"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// RetrieveUseCase answers search requests with the retriever selected by
// the configured search type.
type RetrieveUseCase struct {
	retriever port.Retriever
	cache     *cache.QueryCache
	k         int
	logger    *slog.Logger
}

var _ port.Retriever = (*RetrieveUseCase)(nil)

// NewRetrieveUseCase wires the retriever for cfg.SearchType. An empty search
// type means similarity; an unknown one is InvalidInput.
func NewRetrieveUseCase(
	cfg config.RetrieveConfig,
	index port.IndexStore,
	vectors port.VectorStore,
	embedder port.Embedder,
	tokenizer *analyzer.Tokenizer,
	logger *slog.Logger,
) (*RetrieveUseCase, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	semantic := retriever.NewSemanticRetriever(vectors, embedder, index)

	var r port.Retriever
	switch cfg.SearchType {
	case config.SearchSimilarity, "":
		r = semantic
	case config.SearchMMR:
		r = retriever.NewMMRRetriever(semantic, retriever.NewMMRReranker(cfg.MMRLambda, cfg.DedupJaccard), cfg.FetchK)
	case config.SearchScoreThreshold:
		r = semantic.WithScoreThreshold(cfg.ScoreThreshold)
	case config.SearchHybrid:
		bm25 := retriever.NewBM25Retriever(index, tokenizer, cfg.K1, cfg.B)
		r = retriever.NewHybridRetriever(bm25, semantic, cfg.RRFK, cfg.BM25Weight, logger)
	default:
		return nil, domain.Errorf(domain.KindInvalidInput, "usecase.retrieve",
			"unknown search type %q (want %s, %s, %s or %s)", cfg.SearchType,
			config.SearchSimilarity, config.SearchMMR, config.SearchScoreThreshold, config.SearchHybrid)
	}

	u := &RetrieveUseCase{retriever: r, k: cfg.K, logger: logger}
	if u.k <= 0 {
		u.k = 5
	}
	if cfg.CacheSize > 0 {
		u.cache = cache.NewQueryCache(cfg.CacheSize, cfg.CacheTTL)
		u.retriever = cache.NewCachedRetriever(r, u.cache)
	}
	return u, nil
}

// Search returns the top k chunks; k <= 0 uses the configured default.
func (u *RetrieveUseCase) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = u.k
	}
	results, err := u.retriever.Search(ctx, query, k)
	if err != nil {
		u.logger.Error("Retrieval failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil, err
	}
	u.logger.Debug("Retrieved chunks",
		slog.String("query", query),
		slog.Int("k", k),
		slog.Int("results", len(results)))
	return results, nil
}

// Cache returns the result cache, or nil when caching is disabled.
func (u *RetrieveUseCase) Cache() *cache.QueryCache {
	return u.cache
}

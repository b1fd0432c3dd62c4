package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"taxrag/internal/adapter/analyzer"
	"taxrag/internal/adapter/cache"
	"taxrag/internal/adapter/fetcher"
	"taxrag/internal/adapter/retriever"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// SourceFetcher loads documents from remote URLs.
type SourceFetcher interface {
	FetchAll(ctx context.Context, urls []string) ([]domain.Document, []*fetcher.SourceError)
}

// Stage names reported to a ProgressFunc.
const (
	StageFetch = "fetch"
	StageSplit = "split"
	StageEmbed = "embed"
)

// ProgressFunc is called as each indexing stage advances.
type ProgressFunc func(stage string, done, total int)

// IndexOptions configures an IndexUseCase.
type IndexOptions struct {
	RawDir    string // scanned for local sources when a walker is set
	BatchSize int
	// OnReset runs after the old index is dropped and before any vector is
	// written. An error aborts the run.
	OnReset func() error
	Logger  *slog.Logger
}

// IndexUseCase builds the lexical index and the vector index from scratch.
type IndexUseCase struct {
	fetcher   SourceFetcher
	parser    port.DocumentParser
	walker    port.FileWalker
	splitter  port.Splitter
	tokenizer *analyzer.Tokenizer
	index     port.IndexStore
	vectors   port.VectorStore
	embedder  port.Embedder
	cache     *cache.QueryCache
	onReset   func() error
	rawDir    string
	batchSize int
	logger    *slog.Logger
}

func NewIndexUseCase(
	fetcher SourceFetcher,
	parser port.DocumentParser,
	walker port.FileWalker,
	splitter port.Splitter,
	tokenizer *analyzer.Tokenizer,
	index port.IndexStore,
	vectors port.VectorStore,
	embedder port.Embedder,
	opts IndexOptions,
) *IndexUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &IndexUseCase{
		fetcher:   fetcher,
		parser:    parser,
		walker:    walker,
		splitter:  splitter,
		tokenizer: tokenizer,
		index:     index,
		vectors:   vectors,
		embedder:  embedder,
		onReset:   opts.OnReset,
		rawDir:    opts.RawDir,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}
}

// WithCache registers a result cache to invalidate once the index is rebuilt.
func (u *IndexUseCase) WithCache(c *cache.QueryCache) *IndexUseCase {
	u.cache = c
	return u
}

// IndexResult summarizes an indexing run.
type IndexResult struct {
	Documents int
	Local     int // documents loaded from files under the raw directory
	Chunks    int
	Embedded  int
	Failed    []*fetcher.SourceError
}

// Index fetches every URL, adds local sources, splits, and writes both
// indexes. Existing index content is discarded first. A failed source is
// recorded in the result and does not stop the run; no documents at all is
// an InvalidInput error. If embedding fails part way the result is returned
// with the error and the stored stats stay incomplete.
func (u *IndexUseCase) Index(ctx context.Context, urls []string, progress ProgressFunc) (*IndexResult, error) {
	const op = "usecase.index"
	if progress == nil {
		progress = func(string, int, int) {}
	}
	result := &IndexResult{}

	progress(StageFetch, 0, len(urls))
	docs, failed := u.fetcher.FetchAll(ctx, urls)
	result.Failed = failed
	for _, f := range failed {
		u.logger.Error("Failed to load source",
			slog.String("url", f.URL),
			slog.String("kind", domain.KindOf(f.Err).String()),
			slog.String("error", f.Err.Error()))
	}
	progress(StageFetch, len(urls), len(urls))

	local, err := u.loadLocal(docs)
	if err != nil {
		return nil, err
	}
	result.Local = len(local)
	docs = dedupe(append(docs, local...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "no documents loaded from %d sources", len(urls))
	}
	result.Documents = len(docs)

	progress(StageSplit, 0, len(docs))
	chunks := u.splitter.SplitDocuments(docs)
	totalTokens := 0
	for i := range chunks {
		chunks[i].Tokens = u.tokenizer.Tokenize(chunks[i].Text)
		totalTokens += len(chunks[i].Tokens)
	}
	result.Chunks = len(chunks)
	progress(StageSplit, len(docs), len(docs))

	if err := u.index.Clear(); err != nil {
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("failed to clear index: %w", err))
	}
	if err := u.vectors.Reset(ctx); err != nil {
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("failed to reset vectors: %w", err))
	}
	if u.cache != nil {
		u.cache.Invalidate()
	}
	if u.onReset != nil {
		if err := u.onReset(); err != nil {
			return nil, domain.E(domain.KindStorage, op, fmt.Errorf("failed to record index metadata: %w", err))
		}
	}

	if err := u.index.BatchIndex(groupByDocument(docs, chunks)); err != nil {
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("failed to write index: %w", err))
	}

	stats := domain.Stats{
		TotalDocs:   len(docs),
		TotalChunks: len(chunks),
	}
	if len(chunks) > 0 {
		stats.AvgChunkLen = float64(totalTokens) / float64(len(chunks))
	}
	if err := u.index.UpdateStats(stats); err != nil {
		return nil, domain.E(domain.KindStorage, op, err)
	}

	embedded, embedErr := u.embed(ctx, chunks, progress)
	result.Embedded = embedded
	stats.Embedded = embedded
	if embedErr != nil {
		if err := u.index.UpdateStats(stats); err != nil {
			u.logger.Error("Failed to record partial stats", slog.String("error", err.Error()))
		}
		return result, embedErr
	}

	stats.Complete = true
	stats.BuiltAt = time.Now().UTC()
	if err := u.index.UpdateStats(stats); err != nil {
		return result, domain.E(domain.KindStorage, op, err)
	}

	u.logger.Info("Index built",
		slog.Int("documents", result.Documents),
		slog.Int("local", result.Local),
		slog.Int("chunks", result.Chunks),
		slog.Int("embedded", result.Embedded),
		slog.Int("failed_sources", len(result.Failed)))
	return result, nil
}

// loadLocal parses files under the raw directory that were not already
// loaded as downloads of a configured URL.
func (u *IndexUseCase) loadLocal(fetched []domain.Document) ([]domain.Document, error) {
	if u.walker == nil || u.rawDir == "" {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(fetched))
	for _, d := range fetched {
		if abs, err := filepath.Abs(d.Path); err == nil {
			seen[abs] = struct{}{}
		}
	}

	files, err := u.walker.Walk(u.rawDir)
	if err != nil {
		return nil, err
	}

	var docs []domain.Document
	for _, f := range files {
		if _, ok := seen[f.Path]; ok {
			continue
		}
		parsed, err := u.parser.Parse(f.Path, f.Path)
		if err != nil {
			u.logger.Warn("Skipping unreadable local source",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		now := time.Now()
		for i := range parsed {
			parsed[i].FetchedAt = now
		}
		docs = append(docs, parsed...)
	}
	return docs, nil
}

func (u *IndexUseCase) embed(ctx context.Context, chunks []domain.Chunk, progress ProgressFunc) (int, error) {
	const op = "usecase.embed"

	progress(StageEmbed, 0, len(chunks))
	done := 0
	for i := 0; i < len(chunks); i += u.batchSize {
		end := min(i+u.batchSize, len(chunks))
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vecs, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			u.logger.Error("Embedding batch failed",
				slog.Int("batch_start", i),
				slog.Int("embedded", done),
				slog.String("error", err.Error()))
			return done, domain.E(domain.KindEmbedding, op, err)
		}
		if len(vecs) != len(batch) {
			return done, domain.Errorf(domain.KindEmbedding, op, "got %d vectors for %d chunks", len(vecs), len(batch))
		}

		items := make([]port.VectorItem, len(batch))
		for j, c := range batch {
			items[j] = port.VectorItem{
				ID:     c.ID,
				Vector: vecs[j],
				Metadata: map[string]string{
					"source": c.Source,
					"page":   fmt.Sprint(c.Page),
				},
			}
		}
		if err := u.vectors.Upsert(ctx, items); err != nil {
			u.logger.Error("Failed to store vectors",
				slog.Int("batch_start", i),
				slog.String("error", err.Error()))
			return done, domain.E(domain.KindStorage, op, err)
		}

		done += len(batch)
		progress(StageEmbed, done, len(chunks))
	}
	return done, nil
}

// groupByDocument bundles each document with its chunks and their postings,
// keeping document order.
func groupByDocument(docs []domain.Document, chunks []domain.Chunk) []port.IndexedDoc {
	byDoc := make(map[string][]domain.Chunk, len(docs))
	for _, c := range chunks {
		byDoc[c.DocID] = append(byDoc[c.DocID], c)
	}

	out := make([]port.IndexedDoc, 0, len(docs))
	for _, d := range docs {
		docChunks := byDoc[d.ID]
		postings := make(map[string]map[string]int)
		for _, c := range docChunks {
			for term, n := range retriever.TermFrequencies(c.Tokens) {
				if postings[term] == nil {
					postings[term] = make(map[string]int)
				}
				postings[term][c.ID] = n
			}
		}
		d.Text = ""
		out = append(out, port.IndexedDoc{Doc: d, Chunks: docChunks, Postings: postings})
	}
	return out
}

// dedupe drops repeated documents, which arise when a URL is listed twice.
func dedupe(docs []domain.Document) []domain.Document {
	seen := make(map[string]struct{}, len(docs))
	out := docs[:0]
	for _, d := range docs {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}

package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"taxrag/internal/adapter/analyzer"
	"taxrag/internal/adapter/chunker"
	"taxrag/internal/adapter/embedding"
	"taxrag/internal/adapter/fetcher"
	"taxrag/internal/adapter/fs"
	"taxrag/internal/adapter/memstore"
	"taxrag/internal/adapter/parser"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

const (
	urlGuide = "https://www.irs.gov/pub/irs-pdf/i1040gi.pdf"
	urlPub17 = "https://www.irs.gov/pub/irs-pdf/p17.pdf"
)

var pages = map[string][]string{
	urlGuide: {
		"Most refunds are issued in less than 21 days. Use Where's My Refund to check your refund status.",
		"Attach Form W-2 to the front of your return if tax was withheld from your wages.",
	},
	urlPub17: {
		"Married couples filing jointly get a larger standard deduction than single filers.",
	},
}

// stubFetcher serves canned pages and fails every other URL.
type stubFetcher struct{}

func (stubFetcher) FetchAll(_ context.Context, urls []string) ([]domain.Document, []*fetcher.SourceError) {
	var docs []domain.Document
	var failed []*fetcher.SourceError
	for _, u := range urls {
		texts, ok := pages[u]
		if !ok {
			failed = append(failed, &fetcher.SourceError{URL: u, Err: domain.Errorf(domain.KindNetwork, "stub", "status 404")})
			continue
		}
		for i, text := range texts {
			docs = append(docs, domain.Document{
				ID:        parser.DocumentID(u, i+1),
				Source:    u,
				Path:      filepath.Join("raw", filepath.Base(u)),
				Page:      i + 1,
				PageCount: len(texts),
				Text:      text,
			})
		}
	}
	return docs, failed
}

type failingEmbedder struct{ dim int }

func (e failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}
func (e failingEmbedder) Dimension() int    { return e.dim }
func (e failingEmbedder) ModelName() string { return "failing" }

type env struct {
	rawDir   string
	index    *memstore.MemoryStore
	vectors  *memstore.VectorStore
	embedder *embedding.MockEmbedder
	tok      *analyzer.Tokenizer
	onReset  func() error
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return &env{
		rawDir:   filepath.Join(t.TempDir(), "raw"),
		index:    memstore.NewMemoryStore(),
		vectors:  memstore.NewVectorStore(128),
		embedder: embedding.NewMockEmbedder(128),
		tok:      analyzer.NewTokenizer(true),
	}
}

func (e *env) indexer(emb port.Embedder) *IndexUseCase {
	if emb == nil {
		emb = e.embedder
	}
	return NewIndexUseCase(
		stubFetcher{},
		parser.NewByExtension(nil),
		fs.NewWalker(nil, nil),
		chunker.NewRecursiveSplitter(120, 20, nil),
		e.tok,
		e.index,
		e.vectors,
		emb,
		IndexOptions{RawDir: e.rawDir, BatchSize: 2, OnReset: e.onReset},
	)
}

func (e *env) writeLocal(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.rawDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.rawDir, name), []byte(content), 0644))
}

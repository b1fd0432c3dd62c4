package retriever

import (
	"context"
	"testing"

	"taxrag/internal/adapter/analyzer"
	"taxrag/internal/adapter/embedding"
	"taxrag/internal/adapter/memstore"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

var corpus = []struct {
	id, source, text string
}{
	{"deduction", "p17.pdf", "The standard deduction for married filing jointly is larger than for single filers."},
	{"itemize", "p17.pdf", "You may itemize deductions such as mortgage interest and charitable contributions instead of the standard deduction."},
	{"refund", "i1040gi.pdf", "Most refunds are issued in less than 21 days. Use Where's My Refund to check refund status."},
	{"w2", "i1040gi.pdf", "Attach Form W-2 to the front of your return if tax was withheld from wages."},
	{"deadline", "i1040gi.pdf", "File your return by April 15. An extension gives you more time to file but not to pay."},
	{"hoh", "p17.pdf", "Head of household status requires that you paid more than half the cost of keeping up a home."},
}

type fixture struct {
	index    *memstore.MemoryStore
	vectors  *memstore.VectorStore
	embedder *embedding.MockEmbedder
	tok      *analyzer.Tokenizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		index:    memstore.NewMemoryStore(),
		vectors:  memstore.NewVectorStore(256),
		embedder: embedding.NewMockEmbedder(256),
		tok:      analyzer.NewTokenizer(true),
	}

	var docs []port.IndexedDoc
	totalTokens := 0
	for _, c := range corpus {
		tokens := f.tok.Tokenize(c.text)
		totalTokens += len(tokens)
		chunk := domain.Chunk{ID: c.id, DocID: "doc-" + c.id, Source: c.source, Page: 1, Tokens: tokens, Text: c.text}

		postings := make(map[string]map[string]int)
		for term, tf := range TermFrequencies(tokens) {
			postings[term] = map[string]int{c.id: tf}
		}
		docs = append(docs, port.IndexedDoc{
			Doc:      domain.Document{ID: chunk.DocID, Source: c.source, Page: 1},
			Chunks:   []domain.Chunk{chunk},
			Postings: postings,
		})

		vecs, err := f.embedder.Embed(ctx, []string{c.text})
		if err != nil {
			t.Fatal(err)
		}
		if err := f.vectors.Upsert(ctx, []port.VectorItem{{ID: c.id, Vector: vecs[0]}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.index.BatchIndex(docs); err != nil {
		t.Fatal(err)
	}
	if err := f.index.UpdateStats(domain.Stats{
		TotalDocs:   len(corpus),
		TotalChunks: len(corpus),
		AvgChunkLen: float64(totalTokens) / float64(len(corpus)),
	}); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) bm25() *BM25Retriever {
	return NewBM25Retriever(f.index, f.tok, 1.2, 0.75)
}

func (f *fixture) semantic() *SemanticRetriever {
	return NewSemanticRetriever(f.vectors, f.embedder, f.index)
}

func ids(results []domain.ScoredChunk) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ID
	}
	return out
}

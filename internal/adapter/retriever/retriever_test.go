package retriever

import (
	"context"
	"errors"
	"testing"

	"taxrag/internal/domain"
)

func TestBM25Scoring(t *testing.T) {
	f := newFixture(t)
	r := f.bm25()

	results, err := r.Search(context.Background(), "refund status", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].Chunk.ID != "refund" {
		t.Fatalf("expected refund chunk first, got %v", ids(results))
	}

	results, err = r.Search(context.Background(), "W-2 wages", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].Chunk.ID != "w2" {
		t.Errorf("expected w2 chunk first, got %v", ids(results))
	}
}

func TestBM25EmptyAndUnmatchedQueries(t *testing.T) {
	f := newFixture(t)
	r := f.bm25()

	for _, q := range []string{"", "the and of", "zzzznonexistent"} {
		results, err := r.Search(context.Background(), q, 5)
		if err != nil {
			t.Fatalf("%q: %v", q, err)
		}
		if len(results) != 0 {
			t.Errorf("%q: expected no results, got %v", q, ids(results))
		}
	}
}

func TestSemanticSearch(t *testing.T) {
	f := newFixture(t)

	results, err := f.semantic().Search(context.Background(), "April 15 deadline to file an extension", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "deadline" {
		t.Errorf("expected deadline first, got %v", ids(results))
	}
	if results[0].Chunk.Source != "i1040gi.pdf" {
		t.Errorf("chunk metadata lost: %+v", results[0].Chunk)
	}
}

func TestSemanticScoreThreshold(t *testing.T) {
	f := newFixture(t)

	all, err := f.semantic().Search(context.Background(), "standard deduction", len(corpus))
	if err != nil {
		t.Fatal(err)
	}
	filtered, err := f.semantic().WithScoreThreshold(0.3).Search(context.Background(), "standard deduction", len(corpus))
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) == 0 || len(filtered) >= len(all) {
		t.Errorf("threshold should drop some but not all results: %d of %d", len(filtered), len(all))
	}
	for _, r := range filtered {
		if r.Score < 0.3 {
			t.Errorf("result %s below threshold: %f", r.Chunk.ID, r.Score)
		}
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("boom")
}
func (failingEmbedder) Dimension() int    { return 256 }
func (failingEmbedder) ModelName() string { return "failing" }

func TestSemanticEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	r := NewSemanticRetriever(f.vectors, failingEmbedder{}, f.index)

	_, err := r.Search(context.Background(), "refund", 3)
	if !domain.IsKind(err, domain.KindEmbedding) {
		t.Errorf("expected embedding failure, got %v", err)
	}
}

func TestHybridFusesAndFallsBack(t *testing.T) {
	f := newFixture(t)

	h := NewHybridRetriever(f.bm25(), f.semantic(), 60, 0.5, nil)
	results, err := h.Search(context.Background(), "itemize mortgage interest", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].Chunk.ID != "itemize" {
		t.Errorf("expected itemize first, got %v", ids(results))
	}

	broken := NewHybridRetriever(f.bm25(), NewSemanticRetriever(f.vectors, failingEmbedder{}, f.index), 60, 0.5, nil)
	results, err = broken.Search(context.Background(), "itemize mortgage interest", 3)
	if err != nil {
		t.Fatalf("expected BM25 fallback, got %v", err)
	}
	if len(results) == 0 || results[0].Chunk.ID != "itemize" {
		t.Errorf("expected itemize from BM25 fallback, got %v", ids(results))
	}
}

func TestRRFFuseOrdering(t *testing.T) {
	h := NewHybridRetriever(nil, nil, 60, 0.5, nil)
	a := []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "x"}}, {Chunk: domain.Chunk{ID: "y"}}}
	b := []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "y"}}, {Chunk: domain.Chunk{ID: "z"}}}

	fused := h.rrfFuse(a, b)
	if got := ids(fused); len(got) != 3 || got[0] != "y" {
		t.Errorf("expected y (in both lists) first, got %v", got)
	}
}

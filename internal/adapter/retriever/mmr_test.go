package retriever

import (
	"context"
	"testing"

	"taxrag/internal/domain"
)

func scored(id string, score float64, tokens ...string) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{ID: id, Tokens: tokens}, Score: score}
}

func TestMMRReranking(t *testing.T) {
	reranker := NewMMRReranker(0.7, 0.9)

	candidates := []domain.ScoredChunk{
		scored("c1", 1.0, "standard", "deduction", "married", "jointly"),
		scored("c2", 0.9, "standard", "deduction", "married", "separately"),
		scored("c3", 0.8, "refund", "status", "days", "check"),
		scored("c4", 0.7, "standard", "deduction", "blind", "over"),
	}

	results := reranker.Rerank(candidates, 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("expected c1 first, got %s", results[0].Chunk.ID)
	}
	if results[1].Chunk.ID != "c3" {
		t.Errorf("expected diverse c3 second, got %v", ids(results))
	}
}

func TestMMRPrefersAnotherPage(t *testing.T) {
	reranker := NewMMRReranker(0.7, 0.9)

	onPage := func(c domain.ScoredChunk, doc string) domain.ScoredChunk {
		c.Chunk.DocID = doc
		return c
	}
	candidates := []domain.ScoredChunk{
		onPage(scored("a1", 1.0, "filing", "status", "single"), "i1040gi#1"),
		onPage(scored("a2", 0.95, "head", "household", "qualifying"), "i1040gi#1"),
		onPage(scored("b1", 0.8, "surviving", "spouse", "dependent"), "p17#2"),
	}

	results := reranker.Rerank(candidates, 3)
	if got := ids(results); len(got) != 3 || got[1] != "b1" || got[2] != "a2" {
		t.Errorf("expected a1, b1, a2, got %v", got)
	}
}

func TestMMRDeduplication(t *testing.T) {
	reranker := NewMMRReranker(0.5, 0.3)

	results := reranker.Rerank([]domain.ScoredChunk{
		scored("c1", 1.0, "form", "1040", "sr"),
		scored("c2", 0.9, "form", "1040", "sr"),
	}, 2)

	if len(results) != 1 || results[0].Chunk.ID != "c1" {
		t.Errorf("expected only c1 after dedup, got %v", ids(results))
	}
}

func TestMMREmptyCandidates(t *testing.T) {
	reranker := NewMMRReranker(0.7, 0.8)

	if results := reranker.Rerank(nil, 10); results != nil {
		t.Errorf("expected nil for empty candidates, got %v", results)
	}
	if results := reranker.Rerank([]domain.ScoredChunk{scored("a", 1)}, 0); results != nil {
		t.Errorf("expected nil for k=0, got %v", results)
	}
}

func TestMMRRetrieverOverFetches(t *testing.T) {
	f := newFixture(t)
	r := NewMMRRetriever(f.semantic(), NewMMRReranker(0.5, 0.9), 6)

	results, err := r.Search(context.Background(), "standard deduction itemize", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %v", ids(results))
	}
	if results[0].Chunk.ID == results[1].Chunk.ID {
		t.Error("duplicate results")
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{"identical", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 1.0},
		{"no overlap", []string{"a", "b", "c"}, []string{"d", "e", "f"}, 0.0},
		{"half overlap", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{"duplicates ignored", []string{"a", "a", "b"}, []string{"a", "b"}, 1.0},
		{"empty a", []string{}, []string{"a", "b"}, 0.0},
		{"both empty", []string{}, []string{}, 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := jaccardSimilarity(tc.a, tc.b); got-tc.expected > 0.001 || tc.expected-got > 0.001 {
				t.Errorf("jaccardSimilarity(%v, %v) = %f, expected %f", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

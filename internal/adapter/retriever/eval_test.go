package retriever

import (
	"context"
	"testing"

	"taxrag/internal/domain"
)

// Each query has exactly one relevant chunk in the fixture corpus.
var evalQueries = []struct {
	query    string
	relevant string
}{
	{"how long until I get my refund", "refund"},
	{"attach W-2 withheld wages", "w2"},
	{"April 15 extension to file", "deadline"},
	{"head of household home cost", "hoh"},
	{"mortgage interest charitable contributions itemize", "itemize"},
}

type searchFunc func(ctx context.Context, q string, k int) ([]domain.ScoredChunk, error)

func TestRetrievalQuality(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name      string
		search    searchFunc
		minMRR    float64
		minRecall float64
	}{
		{"bm25", f.bm25().Search, 0.9, 1.0},
		{"semantic", f.semantic().Search, 0.6, 0.8},
		{"hybrid", NewHybridRetriever(f.bm25(), f.semantic(), 60, 0.5, nil).Search, 0.8, 0.8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var mrr, recall float64
			for _, q := range evalQueries {
				results, err := tc.search(context.Background(), q.query, 3)
				if err != nil {
					t.Fatal(err)
				}
				got := ids(results)
				mrr += reciprocalRank(got, q.relevant)
				recall += recallAtK(got, []string{q.relevant})
			}
			mrr /= float64(len(evalQueries))
			recall /= float64(len(evalQueries))

			if mrr < tc.minMRR {
				t.Errorf("MRR = %.3f, want >= %.2f", mrr, tc.minMRR)
			}
			if recall < tc.minRecall {
				t.Errorf("recall@3 = %.3f, want >= %.2f", recall, tc.minRecall)
			}
		})
	}
}

// recallAtK is the fraction of relevant IDs present in retrieved.
func recallAtK(retrieved, relevant []string) float64 {
	if len(relevant) == 0 {
		return 0
	}
	found := make(map[string]bool, len(retrieved))
	for _, id := range retrieved {
		found[id] = true
	}
	hits := 0
	for _, id := range relevant {
		if found[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(relevant))
}

// reciprocalRank returns 1/rank of target, or 0 when absent.
func reciprocalRank(retrieved []string, target string) float64 {
	for i, id := range retrieved {
		if id == target {
			return 1 / float64(i+1)
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	if got := recallAtK([]string{"a", "x"}, []string{"a", "b"}); got != 0.5 {
		t.Errorf("recallAtK = %f", got)
	}
	if got := recallAtK(nil, nil); got != 0 {
		t.Errorf("recallAtK(nil) = %f", got)
	}
	if got := reciprocalRank([]string{"x", "y", "a"}, "a"); got < 0.333 || got > 0.334 {
		t.Errorf("reciprocalRank = %f", got)
	}
	if got := reciprocalRank([]string{"x"}, "a"); got != 0 {
		t.Errorf("reciprocalRank miss = %f", got)
	}
}

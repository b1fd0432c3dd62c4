package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxrag/internal/domain"
)

type store interface {
	Load(ctx context.Context, id string) ([]domain.Turn, error)
	Append(ctx context.Context, id string, turn domain.Turn) error
	Delete(ctx context.Context, id string) error
	SaveFeedback(ctx context.Context, fb domain.Feedback) error
	ListFeedback(ctx context.Context) ([]domain.Feedback, error)
}

func stores(t *testing.T) map[string]store {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestHistoryOrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			turns, err := s.Load(ctx, "unknown")
			require.NoError(t, err)
			assert.Empty(t, turns)

			at := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
			require.NoError(t, s.Append(ctx, "s1", domain.Turn{Question: "q1", Answer: "a1", At: at}))
			require.NoError(t, s.Append(ctx, "s2", domain.Turn{Question: "other", Answer: "x", At: at}))
			require.NoError(t, s.Append(ctx, "s1", domain.Turn{Question: "q2", Standalone: "q2 standalone", Answer: "a2", At: at}))

			turns, err = s.Load(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, turns, 2)
			assert.Equal(t, "q1", turns[0].Question)
			assert.Equal(t, "q2", turns[1].Question)
			assert.Equal(t, "q2 standalone", turns[1].Standalone)
			assert.True(t, at.Equal(turns[0].At), "got %v", turns[0].At)

			require.NoError(t, s.Delete(ctx, "s1"))
			turns, _ = s.Load(ctx, "s1")
			assert.Empty(t, turns)
			turns, _ = s.Load(ctx, "s2")
			assert.Len(t, turns, 1)

			assert.True(t, domain.IsKind(s.Append(ctx, "", domain.Turn{}), domain.KindInvalidInput))
		})
	}
}

func TestHistoryConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, s.Append(ctx, "busy", domain.Turn{Question: fmt.Sprintf("q%d", i), Answer: "a"}))
				}(i)
			}
			wg.Wait()

			turns, err := s.Load(ctx, "busy")
			require.NoError(t, err)
			assert.Len(t, turns, 20)
		})
	}
}

func TestFeedback(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fb := domain.Feedback{
				ID:        "f1",
				SessionID: "s1",
				Option:    "Spam",
				Message:   "When will I get my refund?",
				Answer:    "Within 21 days.",
				CreatedAt: time.Now(),
			}
			require.NoError(t, s.SaveFeedback(ctx, fb))

			got, err := s.ListFeedback(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "Spam", got[0].Option)
			assert.Equal(t, fb.Message, got[0].Message)
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "s1", domain.Turn{Question: "q", Answer: "a"}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	turns, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

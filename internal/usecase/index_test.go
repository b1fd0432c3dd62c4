package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxrag/internal/adapter/cache"
	"taxrag/internal/domain"
)

func TestIndexBuildsBothIndexes(t *testing.T) {
	e := newEnv(t)
	e.writeLocal(t, "faq.html", `<html><body><main><h1>Extensions</h1><p>An extension gives you more time to file, not more time to pay.</p></main></body></html>`)

	var stages []string
	progress := func(stage string, done, total int) {
		if done == total {
			stages = append(stages, stage)
		}
	}

	res, err := e.indexer(nil).Index(context.Background(), []string{urlGuide, urlPub17, "https://example.com/missing.pdf"}, progress)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Documents)
	assert.Equal(t, 1, res.Local)
	assert.GreaterOrEqual(t, res.Chunks, 4)
	assert.Equal(t, res.Chunks, res.Embedded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "https://example.com/missing.pdf", res.Failed[0].URL)
	assert.Contains(t, stages, StageFetch)
	assert.Contains(t, stages, StageSplit)
	assert.Contains(t, stages, StageEmbed)

	stats, err := e.index.GetStats()
	require.NoError(t, err)
	assert.True(t, stats.Complete)
	assert.Equal(t, res.Chunks, stats.TotalChunks)
	assert.Equal(t, res.Chunks, stats.Embedded)
	assert.Greater(t, stats.AvgChunkLen, 0.0)

	n, err := e.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, n)

	postings, err := e.index.GetPostings("refund")
	require.NoError(t, err)
	assert.NotEmpty(t, postings)
}

func TestIndexRebuildsFromScratch(t *testing.T) {
	e := newEnv(t)
	u := e.indexer(nil)
	ctx := context.Background()

	first, err := u.Index(ctx, []string{urlGuide, urlPub17}, nil)
	require.NoError(t, err)
	_, err = u.Index(ctx, []string{urlGuide}, nil)
	require.NoError(t, err)

	docs, err := e.index.ListDocs()
	require.NoError(t, err)
	for _, d := range docs {
		assert.Equal(t, urlGuide, d.Source)
	}

	n, err := e.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Less(t, n, first.Chunks)
}

func TestIndexDuplicateSources(t *testing.T) {
	e := newEnv(t)

	res, err := e.indexer(nil).Index(context.Background(), []string{urlPub17, urlPub17}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Documents)
}

func TestIndexNoDocuments(t *testing.T) {
	e := newEnv(t)

	_, err := e.indexer(nil).Index(context.Background(), []string{"https://example.com/gone.pdf"}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput), "%v", err)
}

func TestIndexEmbeddingFailureLeavesIncompleteStats(t *testing.T) {
	e := newEnv(t)

	res, err := e.indexer(failingEmbedder{dim: 128}).Index(context.Background(), []string{urlGuide}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindEmbedding), "%v", err)
	require.NotNil(t, res)
	assert.Zero(t, res.Embedded)

	stats, err := e.index.GetStats()
	require.NoError(t, err)
	assert.False(t, stats.Complete)
	assert.Positive(t, stats.TotalChunks)
}

func TestIndexInvalidatesCache(t *testing.T) {
	e := newEnv(t)
	c := cache.NewQueryCache(10, time.Minute)
	c.Put("refund", 5, []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "stale"}}})

	_, err := e.indexer(nil).WithCache(c).Index(context.Background(), []string{urlGuide}, nil)
	require.NoError(t, err)

	_, hit := c.Get("refund", 5)
	assert.False(t, hit)
}

func TestIndexResetHookRunsBeforeEmbedding(t *testing.T) {
	e := newEnv(t)
	vectorsAtReset := -1
	e.onReset = func() error {
		n, err := e.vectors.Count(context.Background())
		vectorsAtReset = n
		return err
	}

	// seed an earlier build so the hook can observe the reset
	_, err := e.indexer(nil).Index(context.Background(), []string{urlPub17}, nil)
	require.NoError(t, err)

	_, err = e.indexer(failingEmbedder{dim: 128}).Index(context.Background(), []string{urlGuide}, nil)
	require.Error(t, err)
	assert.Zero(t, vectorsAtReset, "hook must run after the old vectors are dropped")
}

func TestIndexResetHookErrorAborts(t *testing.T) {
	e := newEnv(t)
	e.onReset = func() error { return errors.New("disk full") }

	res, err := e.indexer(nil).Index(context.Background(), []string{urlGuide}, nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, domain.IsKind(err, domain.KindStorage), "%v", err)

	n, err := e.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxrag/config"
	"taxrag/internal/adapter/history"
	"taxrag/internal/adapter/llm"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

type fixedRetriever struct {
	chunks  []domain.ScoredChunk
	queries []string
}

func (r *fixedRetriever) Search(_ context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	r.queries = append(r.queries, query)
	return r.chunks[:min(k, len(r.chunks))], nil
}

func newTestChain(model port.LLM, maxTurns int) (*Chain, *history.MemoryStore, *fixedRetriever) {
	store := history.NewMemoryStore()
	r := &fixedRetriever{chunks: []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "a", Text: "Refunds are issued within 21 days."}},
		{Chunk: domain.Chunk{ID: "b", Text: "File by April 15."}},
	}}
	return NewChain(model, r, store, nil, ChainOptions{K: 5, MaxHistoryTurns: maxTurns}), store, r
}

func TestFirstQuestionSkipsRewrite(t *testing.T) {
	echo := llm.NewEchoLLM()
	chain, _, r := newTestChain(echo, 0)
	s := chain.NewSession()

	res, err := chain.Query(context.Background(), s.ID, "  When will I get my refund?  ")
	require.NoError(t, err)

	assert.Equal(t, "When will I get my refund?", res.Question)
	assert.Equal(t, res.Question, res.Standalone)
	assert.Equal(t, res.Standalone, res.Answer, "echo answers with the final user message")
	assert.Equal(t, []string{"When will I get my refund?"}, r.queries)
	require.Len(t, echo.Calls(), 1)
	assert.Len(t, res.Sources, 2)
}

func TestAnswerPromptLayout(t *testing.T) {
	echo := llm.NewEchoLLM()
	chain, _, _ := newTestChain(echo, 0)

	_, err := chain.Query(context.Background(), chain.NewSession().ID, "When will I get my refund?")
	require.NoError(t, err)

	msgs := echo.Calls()[0]
	require.Len(t, msgs, 3)
	assert.Equal(t, port.RoleUser, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "<context>\nRefunds are issued within 21 days.\n\nFile by April 15.\n</context>")
	assert.Contains(t, msgs[0].Content, "five sentences")
	assert.Equal(t, port.Message{Role: port.RoleAssistant, Content: "Okay."}, msgs[1])
	assert.Equal(t, port.Message{Role: port.RoleUser, Content: "When will I get my refund?"}, msgs[2])
}

func TestHistoryThreadsThroughRewrite(t *testing.T) {
	echo := llm.NewEchoLLM()
	chain, store, r := newTestChain(echo, 0)
	ctx := context.Background()
	s := chain.NewSession()

	_, err := chain.Query(ctx, s.ID, "What is the standard deduction?")
	require.NoError(t, err)
	_, err = chain.Query(ctx, s.ID, "And for married couples?")
	require.NoError(t, err)

	calls := echo.Calls()
	require.Len(t, calls, 3) // answer, rewrite, answer
	rewrite := calls[1]
	require.Len(t, rewrite, 5)
	assert.Contains(t, rewrite[0].Content, "standalone question")
	assert.Equal(t, "Okay.", rewrite[1].Content)
	assert.Equal(t, port.Message{Role: port.RoleUser, Content: "What is the standard deduction?"}, rewrite[2])
	assert.Equal(t, port.Message{Role: port.RoleAssistant, Content: "What is the standard deduction?"}, rewrite[3])
	assert.Equal(t, port.Message{Role: port.RoleUser, Content: "And for married couples?"}, rewrite[4])
	assert.Equal(t, "And for married couples?", r.queries[1])

	turns, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "What is the standard deduction?", turns[0].Question)
	assert.Equal(t, "And for married couples?", turns[1].Question)
}

func TestRewrittenQuestionDrivesRetrieval(t *testing.T) {
	model := llm.NewEchoLLM().WithReply(func(msgs []port.Message) (string, error) {
		if strings.Contains(msgs[0].Content, "standalone question") {
			return "  What is the standard deduction for married couples?\n", nil
		}
		return "It is larger than for single filers.", nil
	})
	chain, _, r := newTestChain(model, 0)
	ctx := context.Background()
	s := chain.NewSession()

	_, err := chain.Query(ctx, s.ID, "What is the standard deduction?")
	require.NoError(t, err)
	res, err := chain.Query(ctx, s.ID, "And for married couples?")
	require.NoError(t, err)

	assert.Equal(t, "What is the standard deduction for married couples?", res.Standalone)
	assert.Equal(t, res.Standalone, r.queries[1])
	assert.Equal(t, "It is larger than for single filers.", res.Answer)
}

func TestHistoryWindow(t *testing.T) {
	echo := llm.NewEchoLLM()
	chain, store, _ := newTestChain(echo, 2)
	ctx := context.Background()
	s := chain.NewSession()

	for i := range 4 {
		_, err := chain.Query(ctx, s.ID, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	calls := echo.Calls()
	lastRewrite := calls[len(calls)-2]
	assert.Len(t, lastRewrite, 3+2*2)
	assert.Equal(t, "question 1", lastRewrite[2].Content)

	turns, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, turns, 4, "the store keeps every turn")
}

func TestFailedQueryLeavesHistoryUntouched(t *testing.T) {
	model := llm.NewEchoLLM().WithReply(func([]port.Message) (string, error) {
		return "", errors.New("503 service unavailable")
	})
	chain, store, _ := newTestChain(model, 0)
	s := chain.NewSession()

	_, err := chain.Query(context.Background(), s.ID, "When is the deadline?")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindLLM), "%v", err)

	turns, err := store.Load(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSessionsAreIsolated(t *testing.T) {
	echo := llm.NewEchoLLM()
	chain, store, _ := newTestChain(echo, 0)
	ctx := context.Background()
	a, b := chain.NewSession(), chain.NewSession()
	require.NotEqual(t, a.ID, b.ID)

	_, err := chain.Query(ctx, a.ID, "first in a")
	require.NoError(t, err)
	_, err = chain.Query(ctx, b.ID, "first in b")
	require.NoError(t, err)

	assert.Len(t, echo.Calls(), 2, "neither session had history to rewrite against")
	turnsA, _ := store.Load(ctx, a.ID)
	turnsB, _ := store.Load(ctx, b.ID)
	assert.Len(t, turnsA, 1)
	assert.Len(t, turnsB, 1)
}

func TestQueryRejectsEmptyInput(t *testing.T) {
	chain, _, _ := newTestChain(llm.NewEchoLLM(), 0)

	_, err := chain.Query(context.Background(), chain.NewSession().ID, "   ")
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))

	_, err = chain.Query(context.Background(), "", "question")
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestVerboseLogsPrompts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	chain := NewChain(llm.NewEchoLLM(), &fixedRetriever{}, history.NewMemoryStore(), nil,
		ChainOptions{Verbose: true, Logger: logger})

	_, err := chain.Query(context.Background(), chain.NewSession().ID, "Do I need Form W-2?")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Prompt message")
	assert.Contains(t, buf.String(), "Do I need Form W-2?")
}

func TestChainEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.indexer(nil).Index(ctx, []string{urlGuide, urlPub17}, nil)
	require.NoError(t, err)

	cfg := config.DefaultConfig().Retrieve
	cfg.K = 1
	ret, err := NewRetrieveUseCase(cfg, e.index, e.vectors, e.embedder, e.tok, nil)
	require.NoError(t, err)

	echo := llm.NewEchoLLM()
	chain := NewChain(echo, ret, history.NewMemoryStore(), nil, ChainOptions{K: 1})
	res, err := chain.Query(ctx, chain.NewSession().ID, "How do I check my refund status?")
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Equal(t, urlGuide, res.Sources[0].Chunk.Source)
	assert.Contains(t, echo.Calls()[0][0].Content, "Where's My Refund")
}

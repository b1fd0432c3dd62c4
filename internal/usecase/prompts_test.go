package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxrag/internal/domain"
)

func TestDefaultPrompts(t *testing.T) {
	p, err := LoadPrompts("", "")
	require.NoError(t, err)

	assert.Contains(t, p.Contextualize(), "Do NOT answer the question")

	qa, err := p.QA(nil)
	require.NoError(t, err)
	assert.Contains(t, qa, "tax-related questions")
	assert.Contains(t, qa, "<context>\n\n</context>")
}

func TestPromptOverrides(t *testing.T) {
	p, err := LoadPrompts("Rewrite it.", "Docs: {{.Context}}")
	require.NoError(t, err)
	assert.Equal(t, "Rewrite it.", p.Contextualize())

	qa, err := p.QA([]domain.ScoredChunk{{Chunk: domain.Chunk{Text: "one"}}, {Chunk: domain.Chunk{Text: "two"}}})
	require.NoError(t, err)
	assert.Equal(t, "Docs: one\n\ntwo", qa)
}

func TestPromptOverrideNeedsContext(t *testing.T) {
	_, err := LoadPrompts("", "Answer briefly.")
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))

	_, err = LoadPrompts("", "{{.Context")
	assert.Error(t, err)
}

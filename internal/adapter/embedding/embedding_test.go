package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxrag/config"
	"taxrag/internal/domain"
)

func newEmbeddingServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := embeddingResponse{}
		// reply in reverse order to exercise index placement
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Embedding: []float32{float32(len(req.Input[i])), 1},
				Index:     i,
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedderBatches(t *testing.T) {
	var calls atomic.Int64
	srv := newEmbeddingServer(t, &calls)

	e := NewOpenAIEmbedder(OpenAIOptions{
		APIKey:    "test-key",
		Model:     config.ModelTextEmbedding3Small,
		BaseURL:   srv.URL,
		Dimension: 2,
		BatchSize: 2,
	})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	got, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), got[i][0])
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 2, e.Dimension())
	assert.Equal(t, config.ModelTextEmbedding3Small, e.ModelName())
}

func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder(OpenAIOptions{BaseURL: "http://127.0.0.1:0"})

	got, err := e.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpenAIEmbedderErrorStatus(t *testing.T) {
	var calls atomic.Int64
	srv := newEmbeddingServer(t, &calls)

	e := NewOpenAIEmbedder(OpenAIOptions{APIKey: "wrong", BaseURL: srv.URL})
	_, err := e.Embed(context.Background(), []string{"hello"})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindEmbedding))
	assert.Contains(t, err.Error(), "401")
}

func TestMockEmbedderSimilarity(t *testing.T) {
	e := NewMockEmbedder(128)
	vecs, err := e.Embed(context.Background(), []string{
		"standard deduction for married filing jointly",
		"married couples filing jointly get a larger standard deduction",
		"refund status for amended returns",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	assert.InDelta(t, 1.0, dot(vecs[0], vecs[0]), 1e-5)
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestNewFactory(t *testing.T) {
	t.Setenv("TAXRAG_TEST_EMBED_KEY", "")

	_, err := New(config.EmbeddingConfig{Provider: "openai", Model: config.ModelTextEmbedding3Small, APIKeyEnv: "TAXRAG_TEST_EMBED_KEY"}, nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))

	t.Setenv("TAXRAG_TEST_EMBED_KEY", "k")
	e, err := New(config.EmbeddingConfig{Provider: "jina", Model: config.ModelJinaEmbeddingsV3, APIKeyEnv: "TAXRAG_TEST_EMBED_KEY"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1024, e.Dimension())

	e, err = New(config.EmbeddingConfig{Provider: "ollama", Model: config.ModelNomicEmbedText}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimension())

	e, err = New(config.EmbeddingConfig{Provider: "mock", Dimension: 32}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", e.ModelName())

	e, err = New(config.EmbeddingConfig{Provider: "bedrock", Model: config.ModelTitanEmbeddingsV2, Region: "us-west-2"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &TitanEmbedder{}, e)
	assert.Equal(t, 1024, e.Dimension())

	_, err = New(config.EmbeddingConfig{Provider: "vertex"}, nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

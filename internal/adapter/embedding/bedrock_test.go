package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxrag/config"
	"taxrag/internal/domain"
)

// fakeInvoker returns a vector of the requested size whose first entry is
// the input length.
type fakeInvoker struct {
	requests []titanRequest
	models   []string
	size     int
	err      error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	var req titanRequest
	if err := json.Unmarshal(in.Body, &req); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)
	f.models = append(f.models, aws.ToString(in.ModelId))

	vec := make([]float32, f.size)
	vec[0] = float32(len(req.InputText))
	body, _ := json.Marshal(titanResponse{Embedding: vec, InputTextTokenCount: 3})
	return &bedrockruntime.InvokeModelOutput{Body: body, ContentType: aws.String("application/json")}, nil
}

func TestTitanEmbedderV2(t *testing.T) {
	fake := &fakeInvoker{size: 1024}
	e := NewTitanEmbedder(fake, config.ModelTitanEmbeddingsV2, 1024, nil, nil)

	vecs, err := e.Embed(context.Background(), []string{"refund", "standard deduction"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(len("refund")), vecs[0][0])
	assert.Equal(t, float32(len("standard deduction")), vecs[1][0])

	require.Len(t, fake.requests, 2)
	assert.Equal(t, 1024, fake.requests[0].Dimensions)
	assert.True(t, fake.requests[0].Normalize)
	assert.Equal(t, []string{config.ModelTitanEmbeddingsV2, config.ModelTitanEmbeddingsV2}, fake.models)
	assert.Equal(t, 1024, e.Dimension())
	assert.Equal(t, config.ModelTitanEmbeddingsV2, e.ModelName())
}

func TestTitanEmbedderV1OmitsSizing(t *testing.T) {
	fake := &fakeInvoker{size: 1536}
	e := NewTitanEmbedder(fake, config.ModelTitanEmbeddingsV1, 1536, nil, nil)

	_, err := e.Embed(context.Background(), []string{"refund"})
	require.NoError(t, err)
	assert.Zero(t, fake.requests[0].Dimensions)
	assert.False(t, fake.requests[0].Normalize)
}

func TestTitanEmbedderErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeInvoker
	}{
		{"request failure", &fakeInvoker{err: errors.New("ThrottlingException")}},
		{"wrong dimension", &fakeInvoker{size: 256}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewTitanEmbedder(tt.fake, config.ModelTitanEmbeddingsV2, 1024, nil, nil)
			_, err := e.Embed(context.Background(), []string{"refund"})
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindEmbedding), "%v", err)
		})
	}
}

package config

import "sort"

// Model identifiers known to the chatbot.
const (
	ModelDeepSeek7B          = "deepseek-llm-r1-distill-qwen-7b"
	ModelDeepSeekR1          = "deepseek.r1-v1:0"
	ModelTitanLite           = "amazon.titan-text-lite-v1"
	ModelTitanExpress        = "amazon.titan-text-express-v1"
	ModelTitanPremier        = "amazon.titan-text-premier-v1:0"
	ModelTitanEmbeddingsV1   = "amazon.titan-embed-text-v1"
	ModelTitanEmbeddingsV2   = "amazon.titan-embed-text-v2:0"
	ModelLlama3B             = "meta.llama3-2-3b-instruct-v1:0"
	ModelLlama70B            = "meta.llama3-3-70b-instruct-v1:0"
	ModelNovaMicro           = "amazon.nova-micro-v1:0"
	ModelGPT4oMini           = "gpt-4o-mini"
	ModelDeepSeekChat        = "deepseek-chat"
	ModelClaudeHaiku         = "claude-3-5-haiku-latest"
	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"
	ModelTextEmbeddingAda002 = "text-embedding-ada-002"
	ModelNomicEmbedText      = "nomic-embed-text"
	ModelMxbaiEmbedLarge     = "mxbai-embed-large"
	ModelJinaEmbeddingsV3    = "jina-embeddings-v3"
)

type ModelKind string

const (
	KindChat      ModelKind = "chat"
	KindEmbedding ModelKind = "embedding"
)

// ModelInfo describes a catalogue entry.
type ModelInfo struct {
	ID        string
	Kind      ModelKind
	Provider  string
	Dimension int // embedding models only
}

var catalogue = map[string]ModelInfo{
	ModelDeepSeek7B:          {ModelDeepSeek7B, KindChat, "bedrock", 0},
	ModelDeepSeekR1:          {ModelDeepSeekR1, KindChat, "bedrock", 0},
	ModelTitanLite:           {ModelTitanLite, KindChat, "bedrock", 0},
	ModelTitanExpress:        {ModelTitanExpress, KindChat, "bedrock", 0},
	ModelTitanPremier:        {ModelTitanPremier, KindChat, "bedrock", 0},
	ModelTitanEmbeddingsV1:   {ModelTitanEmbeddingsV1, KindEmbedding, "bedrock", 1536},
	ModelTitanEmbeddingsV2:   {ModelTitanEmbeddingsV2, KindEmbedding, "bedrock", 1024},
	ModelLlama3B:             {ModelLlama3B, KindChat, "bedrock", 0},
	ModelLlama70B:            {ModelLlama70B, KindChat, "bedrock", 0},
	ModelNovaMicro:           {ModelNovaMicro, KindChat, "bedrock", 0},
	ModelGPT4oMini:           {ModelGPT4oMini, KindChat, "openai", 0},
	ModelDeepSeekChat:        {ModelDeepSeekChat, KindChat, "deepseek", 0},
	ModelClaudeHaiku:         {ModelClaudeHaiku, KindChat, "anthropic", 0},
	ModelTextEmbedding3Small: {ModelTextEmbedding3Small, KindEmbedding, "openai", 1536},
	ModelTextEmbedding3Large: {ModelTextEmbedding3Large, KindEmbedding, "openai", 3072},
	ModelTextEmbeddingAda002: {ModelTextEmbeddingAda002, KindEmbedding, "openai", 1536},
	ModelNomicEmbedText:      {ModelNomicEmbedText, KindEmbedding, "ollama", 768},
	ModelMxbaiEmbedLarge:     {ModelMxbaiEmbedLarge, KindEmbedding, "ollama", 1024},
	ModelJinaEmbeddingsV3:    {ModelJinaEmbeddingsV3, KindEmbedding, "jina", 1024},
}

// LookupModel returns the catalogue entry for id.
func LookupModel(id string) (ModelInfo, bool) {
	info, ok := catalogue[id]
	return info, ok
}

// Models returns the catalogue sorted by kind then ID.
func Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(catalogue))
	for _, m := range catalogue {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// EmbeddingDimension resolves the vector size for the embedding config.
// An explicit dimension wins; otherwise the catalogue is consulted.
func (e EmbeddingConfig) EmbeddingDimension() int {
	if e.Dimension > 0 {
		return e.Dimension
	}
	if info, ok := LookupModel(e.Model); ok && info.Dimension > 0 {
		return info.Dimension
	}
	return 1536
}

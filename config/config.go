package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the tax chatbot.
type Config struct {
	Data        DataConfig        `yaml:"data"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieve    RetrieveConfig    `yaml:"retrieve"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chat        ChatConfig        `yaml:"chat"`
	Web         WebConfig         `yaml:"web"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DataConfig holds source and indexing configuration.
type DataConfig struct {
	RawDir           string        `yaml:"raw_dir"`
	DBDir            string        `yaml:"db_dir"`
	Sources          []string      `yaml:"sources"`
	LocalIncludes    []string      `yaml:"local_includes"` // globs under raw_dir indexed in addition to sources
	LocalExcludes    []string      `yaml:"local_excludes"`
	ChunkSize        int           `yaml:"chunk_size"`
	ChunkOverlap     int           `yaml:"chunk_overlap"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`    // "openai", "ollama", "jina", "bedrock", "mock"
	Model             string  `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv         string  `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string  `yaml:"base_url"`
	Region            string  `yaml:"region"` // bedrock only; default us-east-1
	Dimension         int     `yaml:"dimension"` // 0 = look up in the model catalogue
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
}

// LLMConfig holds chat model configuration.
type LLMConfig struct {
	Provider          string        `yaml:"provider"` // "openai", "ollama", "deepseek", "anthropic", "bedrock", "echo"
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	Region            string        `yaml:"region"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	SearchType     string        `yaml:"search_type"` // similarity, mmr, similarity_score_threshold, hybrid
	K              int           `yaml:"k"`
	FetchK         int           `yaml:"fetch_k"`
	MMRLambda      float64       `yaml:"mmr_lambda"`
	DedupJaccard   float64       `yaml:"dedup_jaccard"`
	ScoreThreshold float64       `yaml:"score_threshold"`
	RRFK           int           `yaml:"rrf_k"`
	BM25Weight     float64       `yaml:"bm25_weight"`
	K1             float64       `yaml:"bm25_k1"`
	B              float64       `yaml:"bm25_b"`
	CacheSize      int           `yaml:"cache_size"` // 0 disables the result cache
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// VectorStoreConfig selects where embeddings are persisted.
type VectorStoreConfig struct {
	Backend string `yaml:"backend"` // "bolt" or "postgres"
	DSN     string `yaml:"dsn"`     // postgres connection string; DATABASE_URL when empty
	Table   string `yaml:"table"`
}

// ChatConfig holds conversation configuration.
type ChatConfig struct {
	HistoryBackend      string `yaml:"history_backend"` // "memory" or "sqlite"
	HistoryPath         string `yaml:"history_path"`
	MaxHistoryTurns     int    `yaml:"max_history_turns"` // prompt window; 0 = unbounded
	ContextualizePrompt string `yaml:"contextualize_prompt"`
	QAPrompt            string `yaml:"qa_prompt"`
}

// WebConfig holds front end configuration.
type WebConfig struct {
	Host            string         `yaml:"host"`
	Port            int            `yaml:"port"`
	CharDelay       time.Duration  `yaml:"char_delay"`
	Thinking        ThinkingConfig `yaml:"thinking"`
	FlaggingOptions []string       `yaml:"flagging_options"`
	Title           string         `yaml:"title"`
	Description     string         `yaml:"description"`
	Examples        []string       `yaml:"examples"`
}

// ThinkingConfig controls the cosmetic progress phase of a web response.
type ThinkingConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Title    string        `yaml:"title"`
	Stages   []string      `yaml:"stages"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultSources are the IRS publications indexed when no sources are configured.
var DefaultSources = []string{
	"https://www.irs.gov/pub/irs-pdf/i1040gi.pdf",
	"https://www.irs.gov/pub/irs-pdf/p17.pdf",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			RawDir:           filepath.Join("data", "raw"),
			DBDir:            filepath.Join("data", "vector_db"),
			Sources:          append([]string(nil), DefaultSources...),
			LocalExcludes:    []string{"**/.*", "**/*.tmp"},
			ChunkSize:        1000,
			ChunkOverlap:     200,
			FetchConcurrency: 4,
			FetchTimeout:     2 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     ModelTextEmbedding3Small,
			APIKeyEnv: "OPENAI_API_KEY",
			BatchSize: 100,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       ModelGPT4oMini,
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Retrieve: RetrieveConfig{
			SearchType:   SearchSimilarity,
			K:            5,
			FetchK:       20,
			MMRLambda:    0.5,
			DedupJaccard: 0.9,
			RRFK:         60,
			BM25Weight:   0.5,
			K1:           1.2,
			B:            0.75,
			CacheSize:    100,
			CacheTTL:     5 * time.Minute,
		},
		VectorStore: VectorStoreConfig{
			Backend: "bolt",
			Table:   "taxrag_vectors",
		},
		Chat: ChatConfig{
			HistoryBackend:  "memory",
			HistoryPath:     filepath.Join("data", "sessions.db"),
			MaxHistoryTurns: 20,
		},
		Web: WebConfig{
			Host:      "0.0.0.0",
			Port:      7860,
			CharDelay: 2 * time.Millisecond,
			Thinking: ThinkingConfig{
				Enabled: true,
				Title:   "Thinking step-by-step",
				Stages: []string{
					"Thinking ...",
					"Thinking harder ...",
					"Thinking even harder ...",
				},
				MaxDelay: time.Second,
			},
			FlaggingOptions: []string{"Like", "Spam", "Inappropriate", "Other"},
			Title:           "RAG Chatbot for Tax Questions",
			Description:     "Ask questions about taxes! For informational purposes only, not tax advice.",
			Examples: []string{
				"What documents do I need to file my taxes?",
				"What are the benefits of filing married jointly?",
				"I filed the taxes, when will I get my refund?",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Search types accepted by retrieve.search_type.
const (
	SearchSimilarity     = "similarity"
	SearchMMR            = "mmr"
	SearchScoreThreshold = "similarity_score_threshold"
	SearchHybrid         = "hybrid"
)

// LoadEnv loads a dotenv file into the process environment. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for taxrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "taxrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".taxrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database inside the configured db dir.
func (c *Config) IndexDBPath() string {
	return filepath.Join(c.Data.DBDir, "index.db")
}

// EnsureDirs creates the raw and database directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Data.RawDir, c.Data.DBDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

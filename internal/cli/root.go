package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"taxrag/config"
	"taxrag/internal/logging"
)

var (
	cfgFile    string
	envFile    string
	verbose    bool
	embedModel string
	llmModel   string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taxrag",
	Short: "Retrieval-augmented chatbot for tax questions",
	Long: `taxrag indexes tax publications (IRS PDFs by default), then answers
questions about them through a conversational retrieval chain, either in the
terminal or through a small web front end.

Example usage:
  taxrag index                          # Download and index the configured sources
  taxrag chat                           # Ask questions in the terminal
  taxrag serve --port 7860              # Run the web front end
  taxrag search -q "standard deduction" # Inspect retrieval results`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}

		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			dir, werr := os.Getwd()
			if werr != nil {
				return fmt.Errorf("failed to get working directory: %w", werr)
			}
			cfg, err = config.LoadFromDir(dir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := applyModelOverrides(cfg, embedModel, llmModel); err != nil {
			return err
		}

		logger = logging.New(cfg.Logging, verbose)
		if cfg.Data.ChunkSize <= cfg.Data.ChunkOverlap {
			logger.Warn("Chunk size must be greater than chunk overlap",
				slog.Int("chunk_size", cfg.Data.ChunkSize),
				slog.Int("chunk_overlap", cfg.Data.ChunkOverlap))
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./taxrag.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with API keys")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging, including every prompt sent to the model")
	rootCmd.PersistentFlags().StringVar(&embedModel, "embed", "", "embedding model id (see 'taxrag models')")
	rootCmd.PersistentFlags().StringVar(&llmModel, "llm", "", "chat model id (see 'taxrag models')")
}

// applyModelOverrides points the embedding and chat configs at catalogue
// models. Unknown ids only replace the model name.
func applyModelOverrides(c *config.Config, embedID, llmID string) error {
	if embedID != "" {
		info, ok := config.LookupModel(embedID)
		if ok && info.Kind != config.KindEmbedding {
			return fmt.Errorf("%s is a %s model, not an embedding model", embedID, info.Kind)
		}
		c.Embedding.Model = embedID
		c.Embedding.Dimension = 0
		if ok && info.Provider != c.Embedding.Provider {
			c.Embedding.Provider = info.Provider
			c.Embedding.APIKeyEnv = ""
			c.Embedding.BaseURL = ""
		}
	}
	if llmID != "" {
		info, ok := config.LookupModel(llmID)
		if ok && info.Kind != config.KindChat {
			return fmt.Errorf("%s is a %s model, not a chat model", llmID, info.Kind)
		}
		c.LLM.Model = llmID
		if ok && info.Provider != c.LLM.Provider {
			c.LLM.Provider = info.Provider
			c.LLM.APIKeyEnv = ""
			c.LLM.BaseURL = ""
		}
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchText string
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Show the chunks retrieved for a query",
	Long: `Run retrieval alone, without the chat model, using the configured search
type.

Examples:
  taxrag search -q "standard deduction married filing jointly"
  taxrag search -q "refund status" -k 10 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

type searchResult struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ret, err := a.retriever(cfg)
	if err != nil {
		return err
	}

	chunks, err := ret.Search(ctx, searchText, searchTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := make([]searchResult, len(chunks))
	for i, c := range chunks {
		results[i] = searchResult{Source: c.Chunk.Source, Page: c.Chunk.Page, Score: c.Score, Text: c.Chunk.Text}
	}

	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results (%s search):\n\n", len(results), cfg.Retrieve.SearchType)
	for i, r := range results {
		preview := strings.Join(strings.Fields(r.Text), " ")
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		fmt.Fprintf(out, "%d. [%s %.3f] %s p.%d\n", i+1, rating(r.Score), r.Score, r.Source, r.Page)
		fmt.Fprintf(out, "   %s\n\n", preview)
	}
	return nil
}

// rating buckets cosine similarity for a quick read of retrieval quality.
// Fused hybrid scores are much smaller and always rate LOW.
func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}

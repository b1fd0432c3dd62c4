package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"taxrag/config"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known model ids for --embed and --llm",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tPROVIDER\tDIMENSION")
		for _, m := range config.Models() {
			dim := "-"
			if m.Dimension > 0 {
				dim = fmt.Sprint(m.Dimension)
			}
			marker := ""
			if m.ID == cfg.Embedding.Model || m.ID == cfg.LLM.Model {
				marker = " *"
			}
			fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", m.ID, marker, m.Kind, m.Provider, dim)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

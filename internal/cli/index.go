package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"taxrag/internal/adapter/analyzer"
	"taxrag/internal/adapter/chunker"
	"taxrag/internal/adapter/fetcher"
	"taxrag/internal/adapter/fs"
	"taxrag/internal/adapter/parser"
	"taxrag/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index [url...]",
	Short: "Download, split and embed the tax sources",
	Long: `Build the index from scratch. Sources come from the arguments, or from
data.sources in the config when none are given. PDF and HTML files placed
under data.raw_dir are indexed as well.

Examples:
  taxrag index
  taxrag index https://www.irs.gov/pub/irs-pdf/p501.pdf`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sources := args
	if len(sources) == 0 {
		sources = cfg.Data.Sources
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	migration, err := a.index.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	if migration.NeedsRebuild || migration.NeedsMigration {
		fmt.Fprintf(out, "Index schema: %s\n", migration.Reason)
	}

	p := parser.NewByExtension(logger)
	f := fetcher.New(fetcher.Options{
		RawDir:      cfg.Data.RawDir,
		Timeout:     cfg.Data.FetchTimeout,
		Concurrency: cfg.Data.FetchConcurrency,
	}, p, logger)

	indexUC := usecase.NewIndexUseCase(
		f,
		p,
		fs.NewWalker(cfg.Data.LocalIncludes, cfg.Data.LocalExcludes),
		chunker.NewRecursiveSplitter(cfg.Data.ChunkSize, cfg.Data.ChunkOverlap, logger),
		analyzer.NewTokenizer(true),
		a.index,
		a.vectors,
		a.embedder,
		usecase.IndexOptions{
			RawDir:    cfg.Data.RawDir,
			BatchSize: cfg.Embedding.BatchSize,
			OnReset:   func() error { return a.index.RecordEmbedding(cfg) },
			Logger:    logger,
		},
	)

	fmt.Fprintf(out, "Indexing %d sources with %s embeddings...\n", len(sources), a.embedder.ModelName())
	start := time.Now()
	progress := newProgress(cmd.ErrOrStderr())

	result, err := indexUC.Index(ctx, sources, progress.update)
	progress.finish()
	if result == nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	status := "complete"
	if err != nil {
		status = "incomplete"
	}
	fmt.Fprintf(out, "\nIndexing %s:\n", status)
	fmt.Fprintf(out, "  Documents:  %d (%d local)\n", result.Documents, result.Local)
	fmt.Fprintf(out, "  Chunks:     %d\n", result.Chunks)
	fmt.Fprintf(out, "  Embeddings: %d\n", result.Embedded)
	fmt.Fprintf(out, "  Elapsed:    %s\n", formatDuration(time.Since(start)))
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "\nFailed sources:\n")
		for _, fe := range result.Failed {
			fmt.Fprintf(out, "  - %s\n", fe)
		}
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if err := a.index.Migrate(cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}
	fmt.Fprintf(out, "\nIndex stored at: %s\n", cfg.IndexDBPath())
	return nil
}

// progress draws one bar per indexing stage.
type progress struct {
	w     io.Writer
	mu    sync.Mutex
	stage string
	bar   *progressbar.ProgressBar
	start time.Time
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w}
}

func (p *progress) update(stage string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stage != p.stage {
		if p.bar != nil {
			p.bar.Finish()
		}
		p.stage = stage
		p.start = time.Now()
		p.bar = progressbar.NewOptions(max(total, 1),
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%-9s[reset]", stage)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(p.w)
			}),
		)
	}

	p.bar.Set(done)
	if done > 0 && done < total {
		rate := float64(done) / time.Since(p.start).Seconds()
		if rate > 0 {
			eta := time.Duration(float64(total-done)/rate) * time.Second
			p.bar.Describe(fmt.Sprintf("[cyan]%-9s[reset] ETA: %s", stage, formatDuration(eta)))
		}
	}
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

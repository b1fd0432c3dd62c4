package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"taxrag/internal/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions in the terminal",
	Long: `Start a conversation over the index. Each question is answered in the
context of the previous ones. End the session with Ctrl-D or Ctrl-C.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hist, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer hist.Close()

	chain, err := a.chain(cfg, hist)
	if err != nil {
		return err
	}
	session := chain.NewSession()

	lines := readLines(ctx, cmd.InOrStdin())

	for {
		fmt.Fprint(out, "Enter your question: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		res, err := chain.Query(ctx, session.ID, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error (%s): %v\n\n", domain.KindOf(err), err)
			continue
		}
		fmt.Fprintf(out, "%s\n\n", res.Answer)
	}
}

// readLines delivers r line by line until EOF or until ctx is done, then
// closes the channel.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taxrag/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web chat front end",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if servePort > 0 {
		cfg.Web.Port = servePort
	}

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

	srv, err := server.New(chain, hist, cfg.Web, logger)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

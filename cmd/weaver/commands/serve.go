package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

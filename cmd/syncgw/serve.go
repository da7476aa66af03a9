package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Serve the gateway over HTTP",
	Long: `Serve the gateway, backing files and the change stream.

Endpoints:
  /v1/{entity}[/{id}]        query, insert, update, delete
  /v1/attachment/{id}/file   attachment content
  /files/{name}              capability-granted file access
  /ws                        change stream for one account
  /health                    liveness

Every /v1 request carries sync_adapter=true, account_name and account_type
query parameters and an X-Syncgw-Caller header.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("%s Serving %s on http://%s\n", renderAccent("▶"), cfg.DB.Path, cfg.HTTP.Addr)
		fmt.Println(renderMuted("Press Ctrl+C to stop"))

		if err := a.Run(ctx); err != nil {
			return err
		}
		fmt.Printf("%s Stopped\n", renderPass("✓"))
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	rootCmd.AddCommand(serveCmd)
}

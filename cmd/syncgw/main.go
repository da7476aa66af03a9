// Command syncgw serves the account-scoped sync gateway and its maintenance
// tasks.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrybook/syncgw/internal/app"
	"github.com/entrybook/syncgw/internal/config"
	"github.com/entrybook/syncgw/internal/logging"
)

var (
	v      = config.NewViper()
	cfg    *config.Config
	logger *slog.Logger
	logOut io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "syncgw",
	Short: "Account-scoped sync gateway for calendar and task entries",
	Long: `syncgw mediates every read and write of a local entry store for sync
clients. Requests are scoped to the caller's account; writes keep recurrence
instances, alarm triggers and attachment files consistent.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, file)
		if err != nil {
			return err
		}
		l, out, err := logging.New(loaded.Log)
		if err != nil {
			return err
		}
		cfg, logger, logOut = loaded, l, out
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logOut != nil {
			_ = logOut.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: syncgw.yaml in . or the data directory)")
	flags.String("data-dir", "", "directory holding the database and attachments")
	flags.String("db", "", "database path (default: <data-dir>/syncgw.db)")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("db.path", flags.Lookup("db"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance:"},
		&cobra.Group{ID: "backup", Title: "Backup:"},
	)
}

// openApp opens the configured store and wires the gateway.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.DB.Path, err)
	}
	return a, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

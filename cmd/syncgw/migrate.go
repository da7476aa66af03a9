package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrybook/syncgw/internal/store/db"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "maintenance",
	Short:   "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := db.OpenWithOptions(cfg.DB.Path, db.Options{
			BusyTimeout:  cfg.DB.BusyTimeout,
			MaxOpenConns: cfg.DB.MaxOpenConns,
		})
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(cmd.Context()); err != nil {
			return err
		}
		states, err := store.MigrationStatus(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s %s is up to date\n", renderPass("✓"), cfg.DB.Path)
		for _, s := range states {
			fmt.Printf("   %05d %s\n", s.Version, s.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

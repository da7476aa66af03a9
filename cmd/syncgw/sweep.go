package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:     "sweep",
	GroupID: "maintenance",
	Short:   "Remove attachment files no row references",
	Long: `Run one orphan sweep of the attachment directory.

Files younger than attachments.sweep_grace are kept. Expired file grants are
dropped as well. The server runs the same sweep in the background after
deletes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Janitor.SweepNow(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s Sweep complete\n", renderPass("✓"))
		fmt.Printf("   Scanned: %d\n", res.Scanned)
		fmt.Printf("   Removed: %d (%s)\n", res.Removed, formatBytes(res.Freed))
		if res.Young > 0 {
			fmt.Printf("   %s\n", renderMuted(fmt.Sprintf("Kept %d unreferenced files inside the grace period", res.Young)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

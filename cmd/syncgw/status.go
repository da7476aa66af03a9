package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/entrybook/syncgw/internal/app"
	"github.com/entrybook/syncgw/internal/config"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "maintenance",
	Short:   "Show store and attachment status",
	Long: `Display the state of the entry store.

Shows:
  - Database location and applied migrations
  - Row counts per table and generated recurrence instances
  - Backing file count and size`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		switch format {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(st)
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		case "text", "":
			printStatus(st)
			return nil
		default:
			return fmt.Errorf("unknown format %q", format)
		}
	},
}

func printStatus(st *app.Status) {
	fmt.Printf("\n%s syncgw status\n\n", renderAccent("●"))
	fmt.Printf("%s%s\n", renderLabel("Database:"), st.Database)
	if file := config.ConfigFile(v); file != "" {
		fmt.Printf("%s%s\n", renderLabel("Config:"), file)
	}

	fmt.Printf("\n%s\n", renderAccent("Migrations"))
	for _, m := range st.Migrations {
		mark := renderPass("✓")
		when := m.AppliedAt.Format("2006-01-02 15:04:05")
		if !m.Applied {
			mark, when = renderWarn("⚠"), "pending"
		}
		fmt.Printf("  %s %05d %s %s\n", mark, m.Version, m.Name, renderMuted(when))
	}

	fmt.Printf("\n%s\n", renderAccent("Tables"))
	for _, t := range st.Tables {
		fmt.Printf("  %s%d\n", renderLabel(string(t.Table)), t.Rows)
	}
	fmt.Printf("  %s%d\n", renderLabel("linked instances"), st.LinkedInstances)

	fmt.Printf("\n%s\n", renderAccent("Attachments"))
	fmt.Printf("  %s%s\n", renderLabel("directory"), st.AttachmentDir)
	fmt.Printf("  %s%d (%s)\n", renderLabel("files"), st.AttachmentFiles, formatBytes(st.AttachmentBytes))
	fmt.Println()
}

func formatBytes(n int64) string {
	switch {
	case n > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n > 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func init() {
	statusCmd.Flags().StringP("format", "f", "text", "output format: text, yaml or json")
	rootCmd.AddCommand(statusCmd)
}

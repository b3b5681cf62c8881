// ABOUTME: CLI command to export a child's data for parents
// ABOUTME: Writes profile, daily summaries and transcript as YAML or Markdown
package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportAs     string
	exportDays   int
)

// NewExportCmd creates export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <user_id>",
		Short: "Export a child's conversations and summaries",
		Long: `Export a child's profile, daily summaries and conversation transcript.

YAML keeps every field for backup or analysis. Markdown is a readable
report for parents. Without --output the export goes to stdout.`,
		Example: `  companion export maya
  companion export maya --as markdown --output maya.md --days 30`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&exportAs, "as", "yaml", "Export format: yaml or markdown")
	cmd.Flags().IntVar(&exportDays, "days", 7, "Number of days to include")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(exportDays, "days"); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -exportDays)
	data, err := a.store.Export(cmd.Context(), args[0], from, to)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}

	if exportOutput != "" {
		if err := data.ExportToFile(exportOutput, exportAs); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d turns and %d snapshots to %s\n",
				len(data.Turns), len(data.Snapshots), exportOutput)
		}
		return nil
	}

	switch exportAs {
	case "yaml", "yml":
		return data.WriteYAML(cmd.OutOrStdout())
	case "markdown", "md":
		return data.WriteMarkdown(cmd.OutOrStdout())
	default:
		return fmt.Errorf("unsupported export format %q", exportAs)
	}
}

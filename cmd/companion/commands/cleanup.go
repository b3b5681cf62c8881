// ABOUTME: CLI command to apply retention windows
// ABOUTME: Deletes old snapshots, turns and telemetry and evicts idle sessions
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCleanupCmd creates cleanup command
func NewCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete data past its retention window",
		Long: `Delete data past its retention window.

Snapshots and raw turns are kept for COMPANION_SNAPSHOT_RETENTION_DAYS
(default 30) and telemetry for COMPANION_TELEMETRY_RETENTION_DAYS
(default 90).`,
		Example: `  companion cleanup
  companion cleanup --format json`,
		RunE: runCleanup,
	}

	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.CleanupOldData(cmd.Context())
	if err != nil {
		return fmt.Errorf("cleaning up: %w", err)
	}

	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), report)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d snapshots, %d turns, %d events, %d daily records, %d session summaries\n",
			report.Memory.Snapshots, report.Memory.Turns,
			report.Telemetry.Events, report.Telemetry.Daily, report.Telemetry.Sessions)
	}
	return nil
}

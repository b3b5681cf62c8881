// ABOUTME: CLI command to report engine health
// ABOUTME: Provider availability, storage row counts and uptime
package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates status command
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show provider and storage status",
		Long: `Show which language, speech and moderation providers are configured
and how many rows each storage table holds.`,
		Example: `  companion status
  companion status --format json`,
		RunE: runStatus,
	}

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.engine.GetAgentStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("getting status: %w", err)
	}

	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), status)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "COMPONENT\tAVAILABLE\n")
	fmt.Fprintf(w, "---------\t---------\n")
	fmt.Fprintf(w, "provider\t%s\n", status.Provider)
	for _, name := range sortedKeys(status.Components) {
		fmt.Fprintf(w, "%s\t%t\n", name, status.Components[name])
	}
	_ = w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\nDatabase: %s\n", a.cfg.DBPath)
	w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, name := range sortedKeys(status.Storage) {
		fmt.Fprintf(w, "  %s\t%d\n", name, status.Storage[name])
	}
	return w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

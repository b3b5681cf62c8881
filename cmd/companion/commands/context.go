// ABOUTME: CLI command to show the memory context used to personalize replies
// ABOUTME: Folds recent daily snapshots for one child
package commands

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var contextDays int

// NewContextCmd creates context command
func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <user_id>",
		Short: "Show a child's recent memory context",
		Long: `Show the memory context folded from a child's recent daily snapshots.

This is what the companion remembers at the start of each turn:
preferences, favorite topics, achievements and mood patterns.`,
		Example: `  companion context maya
  companion context maya --days 14 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: runContext,
	}

	cmd.Flags().IntVar(&contextDays, "days", 7, "Lookback window in days")

	return cmd
}

func runContext(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(contextDays, "days"); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	mc, err := a.engine.GetMemoryContext(cmd.Context(), args[0], contextDays)
	if err != nil {
		return fmt.Errorf("getting memory context: %w", err)
	}

	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), mc)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FIELD\tVALUE\n")
	fmt.Fprintf(w, "-----\t-----\n")
	fmt.Fprintf(w, "Snapshots\t%d (last %d days)\n", mc.SnapshotCount, mc.LookbackDays)
	fmt.Fprintf(w, "Topics\t%s\n", orNone(strings.Join(mc.Topics, ", ")))
	fmt.Fprintf(w, "Achievements\t%s\n", truncate(orNone(strings.Join(mc.Achievements, ", ")), 60))
	fmt.Fprintf(w, "Moods\t%s\n", truncate(orNone(strings.Join(mc.MoodPatterns, ", ")), 60))
	_ = w.Flush()

	if len(mc.Preferences) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nPreferences:\n")
		keys := make([]string, 0, len(mc.Preferences))
		for k := range mc.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  • %s: %s\n", k, mc.Preferences[k])
		}
	}
	if len(mc.RecentSummaries) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nRecent days:\n")
		for _, s := range mc.RecentSummaries {
			fmt.Fprintf(cmd.OutOrStdout(), "  • %s\n", s)
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

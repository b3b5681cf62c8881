// ABOUTME: CLI command to generate daily memory snapshots
// ABOUTME: One child or every child active on the day, with the parent summary printed
package commands

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/companion-engine/internal/models"
)

var (
	snapshotDate string
	snapshotAll  bool
)

// NewSnapshotCmd creates snapshot command
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot [user_id]",
		Short: "Generate daily memory snapshots",
		Long: `Generate the daily memory snapshot for a child.

A snapshot summarizes one UTC day of conversation: topics, moods,
preferences, achievements, engagement and a short summary for parents.
Running it again for the same day replaces the stored snapshot.`,
		Example: `  companion snapshot maya
  companion snapshot maya --date 2026-03-09
  companion snapshot --all --date 2026-03-09`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSnapshot,
	}

	cmd.Flags().StringVar(&snapshotDate, "date", "", "Day as YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().BoolVar(&snapshotAll, "all", false, "Snapshot every child active on the day")

	return cmd
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	if snapshotAll == (len(args) == 1) {
		return fmt.Errorf("give exactly one of a user_id or --all")
	}
	day, err := parseDate(snapshotDate, time.Now().UTC())
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if snapshotAll {
		snaps, err := a.engine.GenerateAllDailySnapshots(cmd.Context(), day)
		if err != nil {
			return fmt.Errorf("generating snapshots: %w", err)
		}
		return printSnapshots(cmd, snaps)
	}

	snap, err := a.engine.GenerateDailySnapshot(cmd.Context(), args[0], day)
	if err != nil {
		return fmt.Errorf("generating snapshot: %w", err)
	}
	return printSnapshots(cmd, map[string]*models.MemorySnapshot{args[0]: snap})
}

func printSnapshots(cmd *cobra.Command, snaps map[string]*models.MemorySnapshot) error {
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), snaps)
	}
	if len(snaps) == 0 {
		if !quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations on that day.")
		}
		return nil
	}

	users := make([]string, 0, len(snaps))
	for u := range snaps {
		users = append(users, u)
	}
	sort.Strings(users)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "USER\tDATE\tTURNS\tMOOD\tTOPICS\n")
	fmt.Fprintf(w, "----\t----\t-----\t----\t------\n")
	for _, u := range users {
		s := snaps[u]
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			u, s.Date, s.TotalInteractions, s.Insights.DominantMood,
			truncate(strings.Join(s.TopicsDiscussed, ", "), 40))
	}
	_ = w.Flush()

	if len(users) == 1 && snaps[users[0]].ParentSummary != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", snaps[users[0]].ParentSummary)
	}
	return nil
}

// ABOUTME: CLI command to roll up daily telemetry
// ABOUTME: Totals, top features and the engagement trend over a date range
package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	analyticsFrom string
	analyticsTo   string
	analyticsUser string
)

// NewAnalyticsCmd creates analytics command
func NewAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarize usage telemetry",
		Long: `Summarize daily telemetry over a date range.

Shows event totals, the most used features, a per-day breakdown and
whether engagement is increasing, decreasing or stable.`,
		Example: `  companion analytics
  companion analytics --from 2026-03-01 --to 2026-03-14 --user maya`,
		RunE: runAnalytics,
	}

	cmd.Flags().StringVar(&analyticsFrom, "from", "", "First day as YYYY-MM-DD (default: 7 days before --to)")
	cmd.Flags().StringVar(&analyticsTo, "to", "", "Last day as YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().StringVar(&analyticsUser, "user", "", "Restrict to one child")

	return cmd
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	to, err := parseDate(analyticsTo, time.Now().UTC())
	if err != nil {
		return err
	}
	from, err := parseDate(analyticsFrom, to.AddDate(0, 0, -7))
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.GetAnalytics(cmd.Context(), from, to, analyticsUser)
	if err != nil {
		return fmt.Errorf("getting analytics: %w", err)
	}

	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), report)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analytics %s to %s", report.From, report.To)
	if report.UserID != "" {
		fmt.Fprintf(out, " for %s", report.UserID)
	}
	fmt.Fprintf(out, "\nEngagement trend: %s\n\n", report.Trend)

	names := make([]string, 0, len(report.Totals))
	for name := range report.Totals {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "EVENT\tCOUNT\n")
	fmt.Fprintf(w, "-----\t-----\n")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, report.Totals[name])
	}
	_ = w.Flush()

	if len(report.TopFeatures) > 0 {
		fmt.Fprintf(out, "\nTop features:\n")
		for _, f := range report.TopFeatures {
			fmt.Fprintf(out, "  • %s (%d)\n", f.Feature, f.Count)
		}
	}
	if verbose && len(report.Daily) > 0 {
		fmt.Fprintf(out, "\nDaily engagement:\n")
		for _, d := range report.Daily {
			fmt.Fprintf(out, "  %s  %.2f\n", d.Date, d.EngagementScore)
		}
	}
	return nil
}

// ABOUTME: CLI command to view and override a child's feature flags
// ABOUTME: Overrides are stored per user and apply from the next turn
package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/telemetry"
)

// NewFlagsCmd creates flags command
func NewFlagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags <user_id>",
		Short: "View and override feature flags",
		Long: `View a child's effective feature flags.

Flags resolve from the built-in defaults, then the child's overrides,
then any A/B test variant the child is assigned to.`,
		Example: `  companion flags maya
  companion flags set maya games_enabled=false voice_enabled=true`,
		Args: cobra.ExactArgs(1),
		RunE: runFlagsShow,
	}

	setCmd := &cobra.Command{
		Use:   "set <user_id> <flag>=<true|false>...",
		Short: "Override flags for a child",
		Long: `Override one or more flags for a child.

Known flags: ` + strings.Join(telemetry.FlagNames(), ", "),
		Example: `  companion flags set maya games_enabled=false
  companion flags set maya story_mode=on bedtime_mode=off`,
		Args: cobra.MinimumNArgs(2),
		RunE: runFlagsSet,
	}
	cmd.AddCommand(setCmd)

	return cmd
}

func runFlagsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	flags, err := a.engine.GetUserFlags(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting flags: %w", err)
	}
	return printFlags(cmd, flags)
}

func runFlagsSet(cmd *cobra.Command, args []string) error {
	updates, err := parseFlagUpdates(args[1:])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	flags, err := a.engine.UpdateUserFlags(cmd.Context(), args[0], updates)
	if err != nil {
		return fmt.Errorf("updating flags: %w", err)
	}
	if quiet {
		return nil
	}
	return printFlags(cmd, flags)
}

// parseFlagUpdates turns name=value pairs into overrides. Values accept
// strconv.ParseBool forms plus on/off.
func parseFlagUpdates(pairs []string) (map[string]bool, error) {
	updates := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid flag update %q: want name=true|false", pair)
		}
		var value bool
		switch strings.ToLower(raw) {
		case "on":
			value = true
		case "off":
			value = false
		default:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid value for %s: %q", name, raw)
			}
			value = v
		}
		updates[name] = value
	}
	return updates, nil
}

func printFlags(cmd *cobra.Command, flags models.FeatureFlags) error {
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), flags)
	}

	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FLAG\tENABLED\n")
	fmt.Fprintf(w, "----\t-------\n")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%t\n", name, flags[name])
	}
	return w.Flush()
}

// ABOUTME: Root command and global flags for the companion CLI
// ABOUTME: Wires every subcommand and validates the output flags before any command runs
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	dbPath       string
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companion",
		Short: "Voice companion engine for children",
		Long: `Companion runs the conversational engine of a children's voice companion.

It senses emotion, repairs misheard speech, switches between chat, story,
game and comfort modes, plays short learning games, and keeps daily memory
snapshots and telemetry in a local SQLite database.

Configuration comes from the environment (and .env), with an optional
YAML file named by COMPANION_CONFIG.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && quiet {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			switch outputFormat {
			case "auto", "table", "json":
			default:
				return fmt.Errorf("invalid --format %q (want auto, table or json)", outputFormat)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, table, json")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: $XDG_DATA_HOME/companion/companion.db)")

	cmd.AddCommand(
		NewChatCmd(),
		NewSnapshotCmd(),
		NewContextCmd(),
		NewFlagsCmd(),
		NewAnalyticsCmd(),
		NewCleanupCmd(),
		NewStatusCmd(),
		NewProfileCmd(),
		NewExportCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

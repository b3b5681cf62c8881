// ABOUTME: CLI command to view and update a child's profile
// ABOUTME: Shows name, age, location, timezone and interests
package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	profileName      string
	profileAge       int
	profileLocation  string
	profileTimezone  string
	profileLanguage  string
	profileInterests []string
)

// NewProfileCmd creates profile command
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <user_id>",
		Short: "View and manage a child's profile",
		Long: `View and manage a child's profile.

The profile sets the age group used for reply length and repair style,
the timezone used for the bedtime window, the location used for cultural
context, and the interests used to recognize misheard words.`,
		Example: `  companion profile maya
  companion profile set maya --name Maya --age 6 --timezone America/Chicago
  companion profile set maya --interest dinosaurs --interest space`,
		Args: cobra.ExactArgs(1),
		RunE: runProfileShow,
	}

	setCmd := &cobra.Command{
		Use:   "set <user_id>",
		Short: "Update profile fields",
		Long: `Update profile fields. Fields you leave out keep their stored values.

Examples:
  companion profile set maya --name "Maya"
  companion profile set maya --age 7 --location "Pune, India"`,
		Args: cobra.ExactArgs(1),
		RunE: runProfileSet,
	}

	setCmd.Flags().StringVar(&profileName, "name", "", "Set the child's name")
	setCmd.Flags().IntVar(&profileAge, "age", -1, "Set the child's age (0-18)")
	setCmd.Flags().StringVar(&profileLocation, "location", "", "Set the city or country")
	setCmd.Flags().StringVar(&profileTimezone, "timezone", "", "Set the IANA timezone")
	setCmd.Flags().StringVar(&profileLanguage, "language", "", "Set the preferred language")
	setCmd.Flags().StringArrayVar(&profileInterests, "interest", nil, "Add an interest (can be repeated)")

	cmd.AddCommand(setCmd)

	return cmd
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	profile, err := a.engine.GetProfile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting profile: %w", err)
	}

	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), profile)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FIELD\tVALUE\n")
	fmt.Fprintf(w, "-----\t-----\n")
	fmt.Fprintf(w, "Name\t%s\n", orNotSet(profile.Name))
	fmt.Fprintf(w, "Age\t%d (%s)\n", profile.Age, profile.AgeGroup())
	fmt.Fprintf(w, "Location\t%s\n", orNotSet(profile.Location))
	fmt.Fprintf(w, "Timezone\t%s\n", orNotSet(profile.Timezone))
	fmt.Fprintf(w, "Language\t%s\n", orNotSet(profile.Language))
	fmt.Fprintf(w, "Interests\t%s\n", truncate(orNone(strings.Join(profile.Interests, ", ")), 60))
	fmt.Fprintf(w, "Last Updated\t%s\n", formatTime(profile.LastUpdated, time.Now()))
	return w.Flush()
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("name") && !flags.Changed("age") && !flags.Changed("location") &&
		!flags.Changed("timezone") && !flags.Changed("language") && len(profileInterests) == 0 {
		return fmt.Errorf("no updates specified. Use --name, --age, --location, --timezone, --language or --interest")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	profile, err := a.engine.GetProfile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting profile: %w", err)
	}

	if flags.Changed("name") {
		profile.Name = profileName
	}
	if flags.Changed("age") {
		profile.Age = profileAge
	}
	if flags.Changed("location") {
		profile.Location = profileLocation
	}
	if flags.Changed("timezone") {
		profile.Timezone = profileTimezone
	}
	if flags.Changed("language") {
		profile.Language = profileLanguage
	}
	for _, interest := range profileInterests {
		if !containsString(profile.Interests, interest) {
			profile.Interests = append(profile.Interests, interest)
		}
	}

	if err := a.engine.SaveProfile(cmd.Context(), profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Profile updated successfully\n")
	}
	return nil
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

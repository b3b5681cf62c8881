// ABOUTME: Per-child export of profile, daily snapshots and transcript
// ABOUTME: Supports YAML and Markdown output for parents
package sqlite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/companion-engine/internal/models"
)

// ExportData represents the complete exportable data for one child
type ExportData struct {
	Version    string           `yaml:"version" json:"version"`
	ExportedAt string           `yaml:"exported_at" json:"exported_at"`
	Tool       string           `yaml:"tool" json:"tool"`
	UserID     string           `yaml:"user_id" json:"user_id"`
	From       string           `yaml:"from" json:"from"`
	To         string           `yaml:"to" json:"to"`
	Profile    *ExportProfile   `yaml:"profile,omitempty" json:"profile,omitempty"`
	Snapshots  []ExportSnapshot `yaml:"snapshots,omitempty" json:"snapshots,omitempty"`
	Turns      []ExportTurn     `yaml:"turns,omitempty" json:"turns,omitempty"`
}

// ExportProfile represents the child's profile for export
type ExportProfile struct {
	Name        string   `yaml:"name" json:"name"`
	Age         int      `yaml:"age" json:"age"`
	Location    string   `yaml:"location,omitempty" json:"location,omitempty"`
	Interests   []string `yaml:"interests,omitempty" json:"interests,omitempty"`
	Preferences []string `yaml:"preferences,omitempty" json:"preferences,omitempty"`
}

// ExportSnapshot represents a daily snapshot for export
type ExportSnapshot struct {
	Date          string   `yaml:"date" json:"date"`
	Interactions  int      `yaml:"interactions" json:"interactions"`
	ParentSummary string   `yaml:"parent_summary" json:"parent_summary"`
	Topics        []string `yaml:"topics,omitempty" json:"topics,omitempty"`
	Moods         []string `yaml:"moods,omitempty" json:"moods,omitempty"`
	Achievements  []string `yaml:"achievements,omitempty" json:"achievements,omitempty"`
}

// ExportTurn represents a turn for export
type ExportTurn struct {
	Timestamp  string `yaml:"timestamp" json:"timestamp"`
	Mode       string `yaml:"mode" json:"mode"`
	Mood       string `yaml:"mood" json:"mood"`
	UserInput  string `yaml:"user_input" json:"user_input"`
	AIResponse string `yaml:"ai_response" json:"ai_response"`
}

// Export collects one child's data between from and to. Snapshots are
// oldest first to read like a diary.
func (s *Storage) Export(ctx context.Context, userID string, from, to time.Time) (*ExportData, error) {
	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Tool:       "companion",
		UserID:     userID,
		From:       from.UTC().Format(time.DateOnly),
		To:         to.UTC().Format(time.DateOnly),
	}

	profile, err := s.Profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if profile != nil {
		data.Profile = &ExportProfile{
			Name:        profile.Name,
			Age:         profile.Age,
			Location:    profile.Location,
			Interests:   profile.Interests,
			Preferences: profile.Preferences,
		}
	}

	snaps, err := s.Snapshots.ListSince(ctx, userID, data.From)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	for i := len(snaps) - 1; i >= 0; i-- {
		snap := snaps[i]
		if snap.Date > data.To {
			continue
		}
		data.Snapshots = append(data.Snapshots, ExportSnapshot{
			Date:          snap.Date,
			Interactions:  snap.TotalInteractions,
			ParentSummary: snap.ParentSummary,
			Topics:        snap.TopicsDiscussed,
			Moods:         snap.MoodPatterns,
			Achievements:  snap.Achievements,
		})
	}

	turns, err := s.Turns.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	data.Turns = make([]ExportTurn, 0, len(turns))
	for _, turn := range turns {
		data.Turns = append(data.Turns, exportTurn(turn))
	}

	return data, nil
}

func exportTurn(turn models.Turn) ExportTurn {
	return ExportTurn{
		Timestamp:  turn.Timestamp.UTC().Format(time.RFC3339),
		Mode:       turn.Mode.String(),
		Mood:       string(turn.Emotion.Mood),
		UserInput:  turn.UserInput,
		AIResponse: turn.AIResponse,
	}
}

// WriteYAML encodes the export as YAML
func (d *ExportData) WriteYAML(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(d); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteMarkdown renders the export as a parent-readable report
func (d *ExportData) WriteMarkdown(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Companion Export - %s\n\n", d.UserID)
	fmt.Fprintf(&b, "Covers %s to %s. Generated: %s\n\n", d.From, d.To, d.ExportedAt)

	if d.Profile != nil {
		b.WriteString("## Profile\n\n")
		fmt.Fprintf(&b, "- **Name:** %s\n", d.Profile.Name)
		fmt.Fprintf(&b, "- **Age:** %d\n", d.Profile.Age)
		if d.Profile.Location != "" {
			fmt.Fprintf(&b, "- **Location:** %s\n", d.Profile.Location)
		}
		if len(d.Profile.Interests) > 0 {
			fmt.Fprintf(&b, "- **Interests:** %s\n", strings.Join(d.Profile.Interests, ", "))
		}
		b.WriteString("\n")
	}

	if len(d.Snapshots) > 0 {
		b.WriteString("## Daily Summaries\n\n")
		for _, snap := range d.Snapshots {
			fmt.Fprintf(&b, "### %s (%d interactions)\n\n", snap.Date, snap.Interactions)
			if snap.ParentSummary != "" {
				fmt.Fprintf(&b, "%s\n\n", snap.ParentSummary)
			}
			if len(snap.Topics) > 0 {
				fmt.Fprintf(&b, "*Topics: %s*\n\n", strings.Join(snap.Topics, ", "))
			}
			for _, a := range snap.Achievements {
				fmt.Fprintf(&b, "- %s\n", a)
			}
			if len(snap.Achievements) > 0 {
				b.WriteString("\n")
			}
		}
	}

	if len(d.Turns) > 0 {
		b.WriteString("## Conversations\n\n")
		for _, turn := range d.Turns {
			fmt.Fprintf(&b, "**Child** (%s, %s): %s\n\n", turn.Timestamp, turn.Mood, turn.UserInput)
			if turn.AIResponse != "" {
				fmt.Fprintf(&b, "**Companion** (%s): %s\n\n", turn.Mode, turn.AIResponse)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// ExportToFile writes the export to outputPath as "yaml" or "markdown"
func (d *ExportData) ExportToFile(outputPath, format string) error {
	write := d.WriteYAML
	switch format {
	case "yaml", "yml":
	case "markdown", "md":
		write = d.WriteMarkdown
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return write(file)
}

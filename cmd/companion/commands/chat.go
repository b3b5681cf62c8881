// ABOUTME: CLI command for an interactive text conversation with the companion
// ABOUTME: Reads utterances line by line, or runs one voice turn from an audio file
package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harper/companion-engine/internal/companion"
)

var (
	chatUser      string
	chatSession   string
	chatAudio     string
	chatSaveAudio string
)

// NewChatCmd creates chat command
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the companion from the terminal",
		Long: `Talk to the companion from the terminal.

Each line you type is one turn. Type /quit (or send EOF) to end the
session, which stores its telemetry. With --audio, a single recorded
utterance is transcribed and answered instead.`,
		Example: `  companion chat --user maya
  companion chat --user maya --session bedtime-1
  companion chat --user maya --audio question.wav --save-audio reply.mp3
  echo "tell me a story" | companion chat --user maya --format json`,
		RunE: runChat,
	}

	cmd.Flags().StringVar(&chatUser, "user", "", "Child's user ID (required)")
	cmd.Flags().StringVar(&chatSession, "session", "", "Session ID (default: a new random ID)")
	cmd.Flags().StringVar(&chatAudio, "audio", "", "Answer one recorded utterance from this audio file")
	cmd.Flags().StringVar(&chatSaveAudio, "save-audio", "", "Write the last spoken reply to this file")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	sessionID := chatSession
	if sessionID == "" {
		sessionID = "cli-" + uuid.New().String()[:8]
	}

	if _, err := a.engine.StartSession(ctx, sessionID, chatUser); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer func() {
		if _, err := a.engine.EndSession(ctx, sessionID); err != nil && !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: ending session: %v\n", err)
		}
	}()

	if chatAudio != "" {
		audio, err := os.ReadFile(chatAudio) // #nosec G304
		if err != nil {
			return fmt.Errorf("reading audio: %w", err)
		}
		res, err := a.engine.HandleVoiceTurn(ctx, companion.VoiceTurnRequest{
			SessionID: sessionID,
			UserID:    chatUser,
			Audio:     audio,
		})
		if err != nil {
			return err
		}
		return printReply(cmd, res)
	}

	return chatLoop(ctx, cmd, a.engine, sessionID)
}

func chatLoop(ctx context.Context, cmd *cobra.Command, engine *companion.Engine, sessionID string) error {
	jsonOut := wantJSON(cmd)
	if !quiet && !jsonOut {
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s started. Type /quit to stop.\n", sessionID)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		if !quiet && !jsonOut {
			fmt.Fprint(cmd.OutOrStdout(), "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		res, err := engine.HandleTurn(ctx, companion.TurnRequest{
			SessionID: sessionID,
			UserID:    chatUser,
			Utterance: line,
		})
		if err != nil {
			return err
		}
		if err := printReply(cmd, res); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func printReply(cmd *cobra.Command, res *companion.TurnResult) error {
	if chatSaveAudio != "" && len(res.Audio) > 0 {
		if err := os.WriteFile(chatSaveAudio, res.Audio, 0o644); err != nil {
			return fmt.Errorf("writing audio: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		line, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintf(out, "%s\n", line)
		return err
	}

	fmt.Fprintf(out, "Companion: %s\n", res.Text)
	if verbose {
		md := res.Metadata
		fmt.Fprintf(out, "  mode=%s", md.Mode)
		if md.Emotion != nil {
			fmt.Fprintf(out, " mood=%s energy=%s", md.Emotion.Mood, md.Emotion.Energy)
		}
		if md.Game != nil {
			fmt.Fprintf(out, " game=%s score=%d", md.Game.Type, md.Game.Score)
		}
		if len(md.Degraded) > 0 {
			fmt.Fprintf(out, " degraded=%s", strings.Join(md.Degraded, ","))
		}
		fmt.Fprintln(out)
	}
	return nil
}

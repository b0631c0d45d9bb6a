package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/testing-zone/Valper-AI/manual"
	"github.com/testing-zone/Valper-AI/remote"
)

var ttsCmd = &cobra.Command{
	Use:   "tts [text...]",
	Short: "Speak text through the backend's speech synthesis",
	Long: `Synthesize text and play it on the speaker. Without text the built-in
test phrase is spoken. With --out the audio is written to a file instead of
being played.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")
		voice, _ := cmd.Flags().GetString("voice")
		if voice == "" {
			voice = cfg.Pipeline.Voice
		}
		verify, _ := cmd.Flags().GetBool("verify")
		out, _ := cmd.Flags().GetString("out")

		if out != "" {
			client, closeStore, err := newClient(cmd.Context(), cfg, nil, "", nil)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()
			return synthesizeToFile(cmd.Context(), cmd.OutOrStdout(), client, text, voice, out)
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if _, err := a.ctrl.RefreshHealth(cmd.Context()); err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		res, err := a.flow.Run(cmd.Context(), manual.Request{Text: text, Voice: voice, Verify: verify})
		if res != nil {
			printManual(cmd.OutOrStdout(), res)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(ttsCmd)
	ttsCmd.Flags().String("voice", "", "Synthesis voice (default from config)")
	ttsCmd.Flags().Bool("verify", false, "Transcribe the synthesized audio and report accuracy")
	ttsCmd.Flags().StringP("out", "o", "", "Write the audio to this file instead of playing it")
}

func synthesizeToFile(ctx context.Context, w io.Writer, client *remote.Client, text, voice, path string) error {
	if strings.TrimSpace(text) == "" {
		text = manual.DefaultTestPhrase
	}
	a, err := client.Synthesize(ctx, text, voice)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, a.Bytes(), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %d bytes (%s) to %s\n", a.Len(), a.ContentType(), path)
	return nil
}

func printManual(w io.Writer, r *manual.Result) {
	fmt.Fprintf(w, "spoke %q with %s: %s (%d bytes, %s)\n",
		r.Text, r.Voice, r.Outcome, r.AudioBytes, r.Duration.Round(1e6))
	if r.Verified {
		fmt.Fprintf(w, "heard %q, accuracy %.0f%%\n", r.Transcript, r.Accuracy*100)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/remote"
)

var errUnhealthy = errors.New("backend is not healthy")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend health, version and service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, closeStore, err := newClient(cmd.Context(), cfg, nil, "", nil)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		asJSON, _ := cmd.Flags().GetBool("json")
		return checkHealth(cmd.Context(), cmd.OutOrStdout(), client, cfg.Server.VersionConstraint, asJSON)
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Transcribe an audio file with the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, closeStore, err := newClient(cmd.Context(), cfg, nil, "", nil)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		a, err := readArtifact(args[0])
		if err != nil {
			return err
		}
		text, err := client.Transcribe(cmd.Context(), a)
		if err != nil {
			return err
		}
		printf(cmd, "%s\n", text)
		return nil
	},
}

var converseCmd = &cobra.Command{
	Use:   "converse [file.wav]",
	Short: "Send one message to the assistant, as text or as audio",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, closeStore, err := newClient(cmd.Context(), cfg, nil, "", nil)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		text, _ := cmd.Flags().GetString("text")
		reply, err := converseOnce(cmd.Context(), client, text, args)
		if err != nil {
			return err
		}
		printReply(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd, transcribeCmd, converseCmd)
	healthCmd.Flags().Bool("json", false, "Print the report as JSON")
	converseCmd.Flags().StringP("text", "t", "", "Message text (instead of an audio file)")
}

type healthReport struct {
	Health     remote.Health             `json:"health"`
	Version    string                    `json:"version,omitempty"`
	Compatible *bool                     `json:"compatible,omitempty"`
	Services   map[string]map[string]any `json:"services,omitempty"`
	Errors     map[string]string         `json:"errors,omitempty"`
}

// checkHealth probes the backend and prints a report. It returns
// errUnhealthy when the backend is unreachable or reports itself unhealthy.
func checkHealth(ctx context.Context, out io.Writer, client *remote.Client, constraint string, asJSON bool) error {
	report := healthReport{Errors: map[string]string{}}

	h, err := client.Health(ctx)
	report.Health = h
	if err != nil {
		report.Errors[remote.OpHealth] = err.Error()
	}

	if info, verr := client.Version(ctx); verr != nil {
		report.Errors[remote.OpVersion] = verr.Error()
	} else {
		report.Version = info.Version
		ok, cerr := remote.CheckCompatibility(info.Version, constraint)
		if cerr != nil {
			report.Errors["compatibility"] = cerr.Error()
		} else {
			report.Compatible = &ok
		}
	}

	if services, serr := client.ServicesStatus(ctx); serr != nil {
		report.Errors[remote.OpServicesStatus] = serr.Error()
	} else {
		report.Services = services
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printHealth(out, report)
	}

	if err != nil || !h.Healthy() {
		return errUnhealthy
	}
	return nil
}

func printHealth(out io.Writer, r healthReport) {
	fmt.Fprintf(out, "status:  %s\n", r.Health.Status)
	fmt.Fprintf(out, "stt:     %s\n", readyWord(r.Health.STTReady))
	fmt.Fprintf(out, "llm:     %s\n", readyWord(r.Health.LLMReady))
	fmt.Fprintf(out, "tts:     %s\n", readyWord(r.Health.TTSReady))
	if r.Version != "" {
		compat := "unknown"
		if r.Compatible != nil {
			compat = map[bool]string{true: "compatible", false: "incompatible"}[*r.Compatible]
		}
		fmt.Fprintf(out, "version: %s (%s)\n", r.Version, compat)
	}
	names := make([]string, 0, len(r.Services))
	for name := range r.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "service %s: %s\n", name, formatFields(r.Services[name]))
	}
	keys := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "error (%s): %s\n", k, r.Errors[k])
	}
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func readyWord(ready bool) string {
	if ready {
		return "ready"
	}
	return "not ready"
}

// converseOnce sends text when given, otherwise the audio file in args.
func converseOnce(ctx context.Context, client *remote.Client, text string, args []string) (remote.Reply, error) {
	if text != "" {
		return client.Converse(ctx, text, nil)
	}
	if len(args) == 0 {
		return remote.Reply{}, errors.New("provide an audio file or --text")
	}
	a, err := readArtifact(args[0])
	if err != nil {
		return remote.Reply{}, err
	}
	return client.ConverseAudio(ctx, a, nil)
}

func printReply(out io.Writer, r remote.Reply) {
	fmt.Fprintf(out, "You:    %s\n", r.UserText)
	fmt.Fprintf(out, "Valper: %s\n", r.AssistantText)
	if r.AudioURL != "" {
		fmt.Fprintf(out, "audio:  %s\n", r.AudioURL)
	}
}

// readArtifact loads an audio file; WAV files are checked for a valid header.
func readArtifact(path string) (*audio.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".wav") {
		if _, _, err := audio.ParseWAV(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return audio.NewArtifact(data, audio.ContentTypeWAV), nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/testing-zone/Valper-AI/logger"
	"github.com/testing-zone/Valper-AI/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive voice session",
	Long: `Start an interactive voice session.

On a terminal the full-screen interface is used. With --plain, or when stdin
is not a terminal, commands are read line by line: an empty line is the
primary control.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("plain", false, "Use line mode instead of the full-screen interface")
	runCmd.Flags().String("log-file", "", "Write logs to this file while the interface is running")
	runCmd.Flags().Bool("metrics-summary", false, "Print client metrics when the session ends")
	bindFlags(runCmd.Flags(), map[string]string{"metrics-summary": "metrics.summary"})
}

func runSession(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	plain, _ := cmd.Flags().GetBool("plain")
	logFile, _ := cmd.Flags().GetString("log-file")
	interactive := !plain && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	if interactive {
		restore, err := redirectLogs(logFile)
		if err != nil {
			return err
		}
		defer restore()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("Shutdown finished with errors", "error", cerr)
		}
		if serr := a.writeSummary(cmd.ErrOrStderr()); serr != nil {
			logger.Warn("Could not write metrics summary", "error", serr)
		}
	}()
	logger.Info("Session started", "session_id", a.sessionID, "server", cfg.Server.URL)

	if !interactive {
		p := ui.NewPlain(a.ctrl, a.flow, cfg.Pipeline.Voice, cmd.OutOrStdout())
		p.Subscribe(a.bus)
		if _, err := a.ctrl.RefreshHealth(ctx); err != nil {
			printf(cmd, "backend unavailable: %v\n", err)
		}
		return p.Run(ctx, cmd.InOrStdin())
	}

	program := tea.NewProgram(ui.NewModel(a.ctrl, a.flow, cfg.Pipeline.Voice),
		tea.WithAltScreen(), tea.WithContext(ctx))
	ui.NewEventAdapter(program).Subscribe(a.bus)
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run interface: %w", err)
	}
	return nil
}

// redirectLogs keeps log output off the full-screen interface.
func redirectLogs(path string) (func(), error) {
	if path == "" {
		logger.SetOutput(io.Discard)
		return func() { logger.SetOutput(os.Stderr) }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

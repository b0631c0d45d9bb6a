package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/testing-zone/Valper-AI/config"
	"github.com/testing-zone/Valper-AI/logger"
)

// v holds the layered configuration: defaults, file, .env, environment and
// flags.
var v = config.New()

var rootCmd = &cobra.Command{
	Use:           "valper",
	Short:         "Valper AI - push-to-talk voice assistant client",
	Version:       GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `Valper is a terminal client for the Valper voice assistant backend.

Press the primary control to record a question, press it again to send it.
The backend transcribes the recording, generates a reply and speaks it back.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadDotEnv(".env", ".env.local"); err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			logger.SetVerbose(verbose)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().String("server", "", "Backend base URL")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"server":    "server.url",
		"log-level": "log.level",
	})
}

// bindFlags binds each named flag in fs to its configuration key.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if f := fs.Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// loadConfig resolves the config file and decodes the layered settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		if _, statErr := os.Stat(config.DefaultFile); statErr == nil {
			path = config.DefaultFile
		}
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("verbose") {
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	}
	if path != "" {
		logger.Debug("Loaded configuration", "file", path)
	}
	return cfg, nil
}

// setupVersion configures the version display
func setupVersion() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
}

// Execute runs the root command.
func Execute() {
	setupVersion()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

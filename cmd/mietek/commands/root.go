// Package commands implements the mietek CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mietekbot/mietek/pkg/mietek/config"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mietek",
		Short: "Mietek - personal WhatsApp AI assistant",
		Long: `Mietek is a personal AI assistant bridged to WhatsApp. It runs as
three cooperating processes sharing one SQLite database:

  mietek bridge     WhatsApp connection and message delivery
  mietek processor  queue consumer invoking the AI
  mietek heartbeat  system checks, reminders and the daily summary

First run: mietek setup`,
		Version: version,
	}

	rootCmd.AddCommand(
		newBridgeCmd(),
		newProcessorCmd(),
		newHeartbeatCmd(),
		newSetupCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// resolveConfig loads configuration honoring the --config flag.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// buildLogger creates the slog logger per config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

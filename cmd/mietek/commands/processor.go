package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mietekbot/mietek/pkg/mietek/claude"
	"github.com/mietekbot/mietek/pkg/mietek/processor"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

// newProcessorCmd creates the `mietek processor` command: the queue
// consumer that talks to the AI.
func newProcessorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "processor",
		Short: "Run the message processor",
		Long: `Consume queued messages: intercept commands, invoke the AI and
apply memory/outbound directives. Runs until interrupted.`,
		RunE: runProcessor,
	}
}

func runProcessor(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := claude.NewRunner(cfg.Claude, logger)
	proc := processor.New(cfg, st, runner, logger)

	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mietekbot/mietek/pkg/mietek/heartbeat"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

// newHeartbeatCmd creates the `mietek heartbeat` command: scheduled
// checks, reminders and the daily summary.
func newHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Run the heartbeat scheduler",
		Long: `Run periodic system checks (docker, disk, pm2), fire due reminders
and send the morning summary. Runs until interrupted.`,
		RunE: runHeartbeat,
	}
}

func runHeartbeat(cmd *cobra.Command, _ []string) error {
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

	hb := heartbeat.New(cfg, st, logger)
	if err := hb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

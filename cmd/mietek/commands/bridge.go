package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mietekbot/mietek/pkg/mietek/bridge"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

// newBridgeCmd creates the `mietek bridge` command: the WhatsApp side of
// the assistant.
func newBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the WhatsApp bridge process",
		Long: `Connect to WhatsApp, queue inbound messages and deliver processed
responses. Runs until interrupted.`,
		RunE: runBridge,
	}
}

func runBridge(cmd *cobra.Command, _ []string) error {
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

	client := bridge.NewClient(cfg, st, logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.

	"github.com/mietekbot/mietek/pkg/mietek/config"
)

// newSetupCmd creates the `mietek setup` command: the interactive
// first-run wizard that pairs WhatsApp and writes the config file.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run setup",
		Long: `Configure the assistant and pair it with WhatsApp. Scans a QR code,
discovers your WhatsApp JID and writes config.yaml.`,
		RunE: runSetup,
	}
	cmd.Flags().String("output", "config.yaml", "where to write the configuration")
	return cmd
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Your name").
				Description("How the assistant addresses you").
				Value(&cfg.OwnerName),
			huh.NewInput().
				Title("Assistant name").
				Value(&cfg.BotName),
			huh.NewSelect[string]().
				Title("Assistant gender").
				Description("Grammatical forms in gendered languages").
				Options(
					huh.NewOption("Male", "male"),
					huh.NewOption("Female", "female"),
				).
				Value(&cfg.BotGender),
			huh.NewSelect[string]().
				Title("Language").
				Options(
					huh.NewOption("Polski", "pl"),
					huh.NewOption("English", "en"),
				).
				Value(&cfg.Language),
			huh.NewInput().
				Title("Trigger word").
				Description("Invokes the assistant from other chats").
				Value(&cfg.TriggerWord),
			huh.NewInput().
				Title("Data directory").
				Value(&cfg.DataDir),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup form: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ownerJID, err := pairWhatsApp(ctx, cfg)
	if err != nil {
		return err
	}
	cfg.OwnerJID = ownerJID
	fmt.Printf("\nPaired! Your WhatsApp JID: %s\n", ownerJID)

	output, _ := cmd.Flags().GetString("output")
	if err := config.Save(cfg, output); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", output)
	fmt.Println("\nStart the assistant with:")
	fmt.Println("  mietek bridge")
	fmt.Println("  mietek processor")
	fmt.Println("  mietek heartbeat")
	return nil
}

// pairWhatsApp links this device via QR and returns the owner's JID.
func pairWhatsApp(ctx context.Context, cfg *config.Config) (string, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", cfg.SessionStorePath()),
		waLog.Noop)
	if err != nil {
		return "", fmt.Errorf("creating session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return "", fmt.Errorf("getting device: %w", err)
	}

	wastore.SetOSInfo(cfg.BotName, [3]uint32{1, 0, 0})
	client := whatsmeow.NewClient(device, waLog.Noop)
	defer client.Disconnect()

	if client.Store.ID != nil {
		// Already paired from a previous run.
		return client.Store.ID.ToNonAD().String(), nil
	}

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return "", fmt.Errorf("getting QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return "", fmt.Errorf("connecting: %w", err)
	}

	fmt.Println("\nScan this QR code with WhatsApp (Linked devices > Link a device):")
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return "", fmt.Errorf("QR channel closed unexpectedly")
			}
			switch evt.Event {
			case "code":
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			case "success":
				if client.Store.ID == nil {
					return "", fmt.Errorf("paired but no JID stored")
				}
				return client.Store.ID.ToNonAD().String(), nil
			case "timeout":
				return "", fmt.Errorf("QR scan timed out, run setup again")
			}
		}
	}
}

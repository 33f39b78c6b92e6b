package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mietekbot/mietek/pkg/mietek/store"
)

type healthReport struct {
	Status     string         `json:"status"`
	Database   string         `json:"database"`
	Queue      map[string]int `json:"queue,omitempty"`
	WhatsApp   string         `json:"whatsapp"`
	Pending    int            `json:"pending_outbound"`
	Stuck      int            `json:"stuck_processing"`
}

// newHealthCmd creates the `mietek health` command. Used by Docker
// HEALTHCHECK and monitoring.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		Long:  `Check database reachability, queue depth and WhatsApp pairing state. Exits non-zero when unhealthy.`,
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	report := healthReport{Status: "ok", Database: "ok", WhatsApp: "paired"}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		report.Status = "unhealthy"
		report.Database = err.Error()
	} else {
		defer st.Close()
		counts, err := st.Queue.Counts()
		if err != nil {
			report.Status = "unhealthy"
			report.Database = err.Error()
		} else {
			report.Queue = counts
			report.Stuck = counts[store.StatusProcessing]
		}
		if n, err := st.Outbound.CountPending(); err == nil {
			report.Pending = n
		}
	}

	if _, err := os.Stat(cfg.SessionStorePath()); err != nil {
		report.WhatsApp = "not paired, run mietek setup"
	}

	out, _ := json.Marshal(report)
	fmt.Println(string(out))
	if report.Status != "ok" {
		return fmt.Errorf("unhealthy")
	}
	return nil
}

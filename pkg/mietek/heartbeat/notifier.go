package heartbeat

import (
	"log/slog"
	"time"

	"github.com/mietekbot/mietek/pkg/mietek/config"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

// cooldowns keeps repeated alerts with the same dedup key from spamming
// the owner. A zero cooldown means every occurrence is sent.
var cooldowns = map[string]time.Duration{
	"docker":   30 * time.Minute,
	"disk":     time.Hour,
	"pm2":      5 * time.Minute,
	"reminder": 0,
}

const defaultCooldown = 30 * time.Minute

// Notifier decides what happens to a check result: sent now, deferred to
// the morning summary, or suppressed by a cooldown.
type Notifier struct {
	quiet  config.QuietConfig
	store  *store.Store
	logger *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewNotifier creates a Notifier.
func NewNotifier(quiet config.QuietConfig, st *store.Store, logger *slog.Logger) *Notifier {
	return &Notifier{
		quiet:  quiet,
		store:  st,
		logger: logger.With("component", "heartbeat"),
		now:    time.Now,
	}
}

// inQuietWindow reports whether the hour falls inside a quiet window that
// may wrap midnight (e.g. 23-7).
func inQuietWindow(q config.QuietConfig, hour int) bool {
	if q.StartHour == q.EndHour {
		return false
	}
	if q.StartHour > q.EndHour {
		return hour >= q.StartHour || hour < q.EndHour
	}
	return hour >= q.StartHour && hour < q.EndHour
}

// IsQuietHours reports whether alerts should currently be deferred.
func (n *Notifier) IsQuietHours() bool {
	return inQuietWindow(n.quiet, n.now().Hour())
}

// Dispatch routes check results. Non-critical findings during quiet hours
// go to the summary buffer; everything else is sent unless its dedup key
// is still cooling down.
func (n *Notifier) Dispatch(results []CheckResult) {
	for _, check := range results {
		if n.IsQuietHours() && check.Severity != "critical" {
			if err := n.store.Summary.Defer(check.Type, check.Message); err != nil {
				n.logger.Error("could not defer alert", "key", check.DedupKey, "error", err)
				continue
			}
			n.logger.Info("alert deferred to morning summary", "key", check.DedupKey)
			continue
		}

		cooldown, ok := cooldowns[check.Type]
		if !ok {
			cooldown = defaultCooldown
		}
		recent, err := n.store.Alerts.RecentlySent(check.DedupKey, cooldown)
		if err != nil {
			n.logger.Error("cooldown check failed", "key", check.DedupKey, "error", err)
			continue
		}
		if recent {
			continue
		}

		if err := n.store.Alerts.Record(check.DedupKey, check.Type, check.Severity, check.Message); err != nil {
			n.logger.Error("could not record alert", "key", check.DedupKey, "error", err)
			continue
		}
		if _, err := n.store.Queue.EnqueueNotice(check.Message); err != nil {
			n.logger.Error("could not enqueue alert", "key", check.DedupKey, "error", err)
			continue
		}
		n.logger.Info("alert sent", "key", check.DedupKey, "severity", check.Severity)
	}
}

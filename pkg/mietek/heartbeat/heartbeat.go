package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mietekbot/mietek/pkg/mietek/config"
	"github.com/mietekbot/mietek/pkg/mietek/i18n"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

// Heartbeat schedules system checks, the reminder sweep and the daily
// summary on a cron, all delivered through the queue as notices.
type Heartbeat struct {
	cfg      *config.Config
	store    *store.Store
	notifier *Notifier
	locale   *i18n.Locale
	logger   *slog.Logger
}

// New creates a Heartbeat.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		cfg:      cfg,
		store:    st,
		notifier: NewNotifier(cfg.Quiet, st, logger),
		locale:   i18n.For(cfg.Language),
		logger:   logger.With("component", "heartbeat"),
	}
}

// Run starts the schedule and blocks until the context is cancelled.
// Reminders sweep every minute, docker/pm2 every 5 minutes, disk every
// 30 minutes, and the daily summary fires at 08:00 locale time.
func (h *Heartbeat) Run(ctx context.Context) error {
	h.logger.Info("heartbeat started")
	_ = h.store.Logs.Append("info", "heartbeat", "started")

	c := cron.New(cron.WithLocation(h.locale.Location()))

	schedule := []struct {
		spec string
		name string
		fn   func()
	}{
		{"@every 1m", "reminders", h.SweepReminders},
		{"@every 5m", "docker", func() { h.notifier.Dispatch(CheckDocker()) }},
		{"@every 5m", "pm2", func() { h.notifier.Dispatch(CheckPM2()) }},
		{"@every 30m", "disk", func() { h.notifier.Dispatch(CheckDisk()) }},
		{"0 8 * * *", "daily_summary", h.SendDailySummary},
	}
	for _, job := range schedule {
		name := job.name
		fn := job.fn
		if _, err := c.AddFunc(job.spec, func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("check panicked", "check", name, "panic", r)
				}
			}()
			fn()
		}); err != nil {
			return fmt.Errorf("scheduling %s: %w", name, err)
		}
	}

	c.Start()
	<-ctx.Done()
	h.logger.Info("heartbeat stopping")
	stopped := c.Stop()
	<-stopped.Done()
	return ctx.Err()
}

// SweepReminders fires due reminders as queue notices. Recurring
// reminders advance to their next occurrence and stay pending; one-shot
// reminders are marked sent.
func (h *Heartbeat) SweepReminders() {
	due, err := h.store.Reminders.Due(time.Now())
	if err != nil {
		h.logger.Error("reminder sweep failed", "error", err)
		return
	}

	for _, rem := range due {
		if _, err := h.store.Queue.EnqueueNotice(fmt.Sprintf(h.locale.ReminderNotice, rem.Text)); err != nil {
			h.logger.Error("could not enqueue reminder", "id", rem.ID, "error", err)
			continue
		}

		if rem.Recurrence != "" {
			if rem.Recurrence != store.RecurDaily && rem.Recurrence != store.RecurWeekly {
				h.logger.Warn("unknown recurrence, defaulting to daily",
					"id", rem.ID, "recurrence", rem.Recurrence)
			}
			next := store.NextOccurrence(rem.DueAt, rem.Recurrence)
			if err := h.store.Reminders.Reschedule(rem.ID, next); err != nil {
				h.logger.Error("could not reschedule reminder", "id", rem.ID, "error", err)
			}
		} else {
			if err := h.store.Reminders.MarkSent(rem.ID); err != nil {
				h.logger.Error("could not mark reminder sent", "id", rem.ID, "error", err)
			}
		}
		h.logger.Info("reminder fired", "id", rem.ID, "text", rem.Text)
	}
}

// SendDailySummary builds and enqueues the morning summary.
func (h *Heartbeat) SendDailySummary() {
	h.logger.Info("generating daily summary")
	if _, err := h.store.Queue.EnqueueNotice(h.BuildDailySummary()); err != nil {
		h.logger.Error("could not enqueue daily summary", "error", err)
	}
}

// BuildDailySummary composes the 08:00 message: greeting, system status,
// alerts deferred overnight and yesterday's message count.
func (h *Heartbeat) BuildDailySummary() string {
	var parts []string

	parts = append(parts, i18n.Resolve(h.locale.GoodMorning, h.cfg.BotName, h.cfg.OwnerName)+"\n")
	parts = append(parts, h.locale.SystemStatus)
	parts = append(parts, SystemSummary())

	overnight, err := h.store.Summary.Drain()
	if err != nil {
		h.logger.Error("could not drain summary buffer", "error", err)
	}
	if len(overnight) > 0 {
		parts = append(parts, "\n"+h.locale.OvernightAlerts)
		for _, item := range overnight {
			parts = append(parts, "• "+item.Message)
		}
	}

	count, err := h.store.Queue.CountSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		h.logger.Error("could not count yesterday's messages", "error", err)
	}
	parts = append(parts, "\n"+h.locale.YesterdayActivity)
	parts = append(parts, fmt.Sprintf(h.locale.MessagesProcessed, count))

	today := time.Now().In(h.locale.Location()).Format("Monday, 2 January 2006")
	parts = append(parts, "\n📅 "+today)

	return strings.Join(parts, "\n")
}

package heartbeat

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mietekbot/mietek/pkg/mietek/config"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testHeartbeat(t *testing.T) (*Heartbeat, *store.Store) {
	t.Helper()
	st := testStore(t)
	cfg := config.Default()
	cfg.OwnerJID = "48123456789@s.whatsapp.net"
	return New(cfg, st, testLogger()), st
}

func TestInQuietWindow(t *testing.T) {
	tests := []struct {
		name  string
		quiet config.QuietConfig
		hour  int
		want  bool
	}{
		{"wrapping window, late night", config.QuietConfig{StartHour: 23, EndHour: 7}, 23, true},
		{"wrapping window, early morning", config.QuietConfig{StartHour: 23, EndHour: 7}, 3, true},
		{"wrapping window, end hour excluded", config.QuietConfig{StartHour: 23, EndHour: 7}, 7, false},
		{"wrapping window, daytime", config.QuietConfig{StartHour: 23, EndHour: 7}, 12, false},
		{"plain window, inside", config.QuietConfig{StartHour: 1, EndHour: 6}, 3, true},
		{"plain window, outside", config.QuietConfig{StartHour: 1, EndHour: 6}, 8, false},
		{"degenerate window never quiet", config.QuietConfig{StartHour: 5, EndHour: 5}, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inQuietWindow(tt.quiet, tt.hour); got != tt.want {
				t.Errorf("inQuietWindow(%+v, %d) = %v, want %v", tt.quiet, tt.hour, got, tt.want)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	check := CheckResult{
		Type:     "docker",
		Severity: "warning",
		DedupKey: "docker-down-web",
		Message:  "container web down",
	}

	t.Run("sends and records outside quiet hours", func(t *testing.T) {
		h, st := testHeartbeat(t)
		h.notifier.now = func() time.Time {
			return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		}

		h.notifier.Dispatch([]CheckResult{check})

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 || items[0].Response != "container web down" {
			t.Fatalf("queue = %+v", items)
		}
		hit, _ := st.Alerts.RecentlySent("docker-down-web", 30*time.Minute)
		if !hit {
			t.Error("alert not recorded")
		}
	})

	t.Run("cooldown suppresses repeat", func(t *testing.T) {
		h, st := testHeartbeat(t)
		h.notifier.now = func() time.Time {
			return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		}

		h.notifier.Dispatch([]CheckResult{check})
		h.notifier.Dispatch([]CheckResult{check})

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 {
			t.Errorf("repeat alert not suppressed, queue = %d items", len(items))
		}
	})

	t.Run("quiet hours defer non-critical", func(t *testing.T) {
		h, st := testHeartbeat(t)
		h.notifier.now = func() time.Time {
			return time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
		}

		h.notifier.Dispatch([]CheckResult{check})

		items, _ := st.Queue.Undelivered()
		if len(items) != 0 {
			t.Errorf("non-critical alert sent during quiet hours")
		}
		deferred, _ := st.Summary.Drain()
		if len(deferred) != 1 || deferred[0].Message != "container web down" {
			t.Errorf("deferred = %+v", deferred)
		}
	})

	t.Run("critical goes through quiet hours", func(t *testing.T) {
		h, st := testHeartbeat(t)
		h.notifier.now = func() time.Time {
			return time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
		}

		critical := CheckResult{
			Type:     "disk",
			Severity: "critical",
			DedupKey: "disk-critical",
			Message:  "disk almost full",
		}
		h.notifier.Dispatch([]CheckResult{critical})

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 {
			t.Errorf("critical alert deferred during quiet hours")
		}
	})
}

func TestSweepReminders(t *testing.T) {
	t.Run("one-shot fires once", func(t *testing.T) {
		h, st := testHeartbeat(t)
		st.Reminders.Add("wynieś śmieci", time.Now().Add(-time.Minute), "")

		h.SweepReminders()

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 || !strings.Contains(items[0].Response, "wynieś śmieci") {
			t.Fatalf("queue = %+v", items)
		}

		h.SweepReminders()
		items, _ = st.Queue.Undelivered()
		if len(items) != 1 {
			t.Errorf("one-shot reminder fired twice")
		}
	})

	t.Run("recurring advances and stays pending", func(t *testing.T) {
		h, st := testHeartbeat(t)
		dueAt := time.Now().Add(-time.Minute)
		id, _ := st.Reminders.Add("daily standup", dueAt, store.RecurDaily)

		h.SweepReminders()

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 {
			t.Fatalf("queue = %+v", items)
		}

		upcoming, _ := st.Reminders.Upcoming(10)
		if len(upcoming) != 1 || upcoming[0].ID != id {
			t.Fatalf("recurring reminder gone: %+v", upcoming)
		}
		if !upcoming[0].DueAt.After(time.Now()) {
			t.Errorf("due time not advanced: %v", upcoming[0].DueAt)
		}
	})
}

func TestBuildDailySummary(t *testing.T) {
	h, st := testHeartbeat(t)
	st.Summary.Defer("docker", "overnight docker alert")
	st.Queue.Enqueue("wa-1", "48123456789@s.whatsapp.net", "hej")

	summary := h.BuildDailySummary()

	for _, want := range []string{
		"Dzień dobry",
		"overnight docker alert",
		"1 wiadomości przetworzonych",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	// Drain happened, second summary has no overnight section.
	again := h.BuildDailySummary()
	if strings.Contains(again, "overnight docker alert") {
		t.Error("summary buffer not drained")
	}
}

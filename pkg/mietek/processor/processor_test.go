package processor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mietekbot/mietek/pkg/mietek/claude"
	"github.com/mietekbot/mietek/pkg/mietek/config"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

const testOwnerJID = "48123456789@s.whatsapp.net"

type invokeCall struct {
	Prompt string
	Opts   claude.Options
}

// fakeInvoker records invocations and plays back scripted results.
type fakeInvoker struct {
	current string
	results []claude.Result
	calls   []invokeCall
}

func (f *fakeInvoker) Invoke(_ context.Context, prompt string, opts claude.Options) claude.Result {
	f.calls = append(f.calls, invokeCall{Prompt: prompt, Opts: opts})
	if len(f.results) == 0 {
		return claude.Result{Success: true, Response: "ok", SessionToken: "fake-session"}
	}
	res := f.results[0]
	f.results = f.results[1:]
	if res.Success && !opts.OneShot {
		f.current = res.SessionToken
	}
	if res.RetryFullContext {
		f.current = ""
	}
	return res
}

func (f *fakeInvoker) Current() string                      { return f.current }
func (f *fakeInvoker) Clear()                               { f.current = "" }
func (f *fakeInvoker) ResumeLastKnown(_ claude.TokenSource) {}

func newTestProcessor(t *testing.T, lang string) (*Processor, *fakeInvoker, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.OwnerJID = testOwnerJID
	cfg.Language = lang
	cfg.PollInterval = time.Millisecond

	inv := &fakeInvoker{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, st, inv, logger), inv, st
}

func TestIsOwnerChat(t *testing.T) {
	p, _, _ := newTestProcessor(t, "pl")

	tests := []struct {
		jid  string
		want bool
	}{
		{testOwnerJID, true},
		{"48123456789:17@s.whatsapp.net", true}, // device suffix normalized
		{"99988877766@s.whatsapp.net", false},
		{"12345@lid", true}, // LID senders are always the owner
		{"123456789-987@g.us", false},
	}
	for _, tt := range tests {
		t.Run(tt.jid, func(t *testing.T) {
			if got := p.isOwnerChat(tt.jid); got != tt.want {
				t.Errorf("isOwnerChat(%q) = %v, want %v", tt.jid, got, tt.want)
			}
		})
	}
}

func TestProcessNextOwnerFlow(t *testing.T) {
	t.Run("plain message invokes AI with full context", func(t *testing.T) {
		p, inv, st := newTestProcessor(t, "pl")
		id, _ := st.Queue.Enqueue("wa-1", testOwnerJID, "jak pogoda?")

		if err := p.processNext(context.Background()); err != nil {
			t.Fatalf("processNext: %v", err)
		}

		if len(inv.calls) != 1 {
			t.Fatalf("invocations = %d, want 1", len(inv.calls))
		}
		call := inv.calls[0]
		if call.Opts.OneShot || call.Opts.Sudo {
			t.Errorf("unexpected options %+v", call.Opts)
		}
		// No session yet, so the prompt must carry the identity block.
		if !contains(call.Prompt, "Mietek") || !contains(call.Prompt, "jak pogoda?") {
			t.Errorf("full context prompt missing pieces: %q", call.Prompt)
		}

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 || items[0].ID != id || items[0].Status != store.StatusCompleted {
			t.Fatalf("queue state after processing: %+v", items)
		}
		if items[0].SessionToken != "fake-session" {
			t.Errorf("session token not persisted: %q", items[0].SessionToken)
		}
	})

	t.Run("active session uses bare resume prompt", func(t *testing.T) {
		p, inv, st := newTestProcessor(t, "pl")
		inv.current = "existing-session"
		st.Queue.Enqueue("wa-1", testOwnerJID, "kontynuuj")

		p.processNext(context.Background())

		if len(inv.calls) != 1 {
			t.Fatalf("invocations = %d, want 1", len(inv.calls))
		}
		if inv.calls[0].Prompt != "kontynuuj" {
			t.Errorf("resume prompt = %q, want bare message", inv.calls[0].Prompt)
		}
	})

	t.Run("sudo prefix stripped and flag set", func(t *testing.T) {
		p, inv, st := newTestProcessor(t, "pl")
		st.Queue.Enqueue("wa-1", testOwnerJID, "/sudo restart the service")

		p.processNext(context.Background())

		if len(inv.calls) != 1 {
			t.Fatalf("invocations = %d, want 1", len(inv.calls))
		}
		call := inv.calls[0]
		if !call.Opts.Sudo {
			t.Error("sudo flag not set")
		}
		if contains(call.Prompt, "/sudo") {
			t.Errorf("prompt still contains /sudo: %q", call.Prompt)
		}
		if !contains(call.Prompt, "restart the service") {
			t.Errorf("prompt lost the actual text: %q", call.Prompt)
		}
	})

	t.Run("resume failure retries once with full context", func(t *testing.T) {
		p, inv, st := newTestProcessor(t, "pl")
		inv.current = "stale-session"
		inv.results = []claude.Result{
			{RetryFullContext: true, Err: "session not found"},
			{Success: true, Response: "fresh answer", SessionToken: "new-session"},
		}
		id, _ := st.Queue.Enqueue("wa-1", testOwnerJID, "hej")

		p.processNext(context.Background())

		if len(inv.calls) != 2 {
			t.Fatalf("invocations = %d, want 2", len(inv.calls))
		}
		if !inv.calls[1].Opts.ForceNew {
			t.Error("retry not forced into a new session")
		}
		if inv.calls[1].Prompt == "hej" {
			t.Error("retry should use full context, not the bare resume prompt")
		}

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 || items[0].ID != id {
			t.Fatalf("queue state: %+v", items)
		}
		if items[0].Response != "fresh answer" || items[0].Status != store.StatusCompleted {
			t.Errorf("item after retry: %+v", items[0])
		}
	})

	t.Run("directive-only response still delivers a reply", func(t *testing.T) {
		p, inv, st := newTestProcessor(t, "pl")
		inv.results = []claude.Result{{
			Success:      true,
			Response:     "```memory_update\n{\"action\":\"save\",\"category\":\"fact\",\"key\":\"kawa\",\"value\":\"bez cukru\"}\n```",
			SessionToken: "tok",
		}}
		id, _ := st.Queue.Enqueue("wa-1", testOwnerJID, "zapamiętaj: kawa bez cukru")

		p.processNext(context.Background())

		// Stripping the block must not leave an empty response behind, or
		// the delivery poller would never pick the item up.
		items, _ := st.Queue.Undelivered()
		if len(items) != 1 || items[0].ID != id {
			t.Fatalf("item not undelivered after directive-only response: %+v", items)
		}
		if items[0].Response != "(no response)" {
			t.Errorf("response = %q, want placeholder", items[0].Response)
		}
		fact, err := st.Memory.Get("kawa")
		if err != nil || fact == nil {
			t.Fatalf("memory fact not saved: %v", err)
		}
	})

	t.Run("hard failure marks item failed", func(t *testing.T) {
		p, inv, st := newTestProcessor(t, "pl")
		inv.results = []claude.Result{
			{Success: false, Response: "Przepraszam, wystąpił błąd: boom", Err: "boom"},
		}
		st.Queue.Enqueue("wa-1", testOwnerJID, "hej")

		p.processNext(context.Background())

		items, _ := st.Queue.Undelivered()
		if len(items) != 1 || items[0].Status != store.StatusFailed {
			t.Fatalf("queue state: %+v", items)
		}
	})

	t.Run("empty queue is a no-op", func(t *testing.T) {
		p, inv, _ := newTestProcessor(t, "pl")
		if err := p.processNext(context.Background()); err != nil {
			t.Fatalf("processNext: %v", err)
		}
		if len(inv.calls) != 0 {
			t.Errorf("invoked AI on empty queue")
		}
	})
}

func TestProcessNextExternalFlow(t *testing.T) {
	p, inv, st := newTestProcessor(t, "pl")
	st.Queue.Enqueue("wa-1", "55511122233@s.whatsapp.net", "/status")

	p.processNext(context.Background())

	// Commands never run for external senders; the text goes straight to a
	// one-shot AI call with the minimal context.
	if len(inv.calls) != 1 {
		t.Fatalf("invocations = %d, want 1", len(inv.calls))
	}
	call := inv.calls[0]
	if !call.Opts.OneShot {
		t.Error("external message not one-shot")
	}
	if contains(call.Prompt, "memory_update") {
		t.Error("external prompt leaks directive instructions")
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

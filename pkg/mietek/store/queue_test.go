package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQueueClaimNext(t *testing.T) {
	s := testStore(t)

	t.Run("empty queue returns nil", func(t *testing.T) {
		it, err := s.Queue.ClaimNext()
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if it != nil {
			t.Fatalf("expected nil item, got %+v", it)
		}
	})

	t.Run("claims oldest first and flips to processing", func(t *testing.T) {
		id1, err := s.Queue.Enqueue("wa-1", "owner@s.whatsapp.net", "first")
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if _, err := s.Queue.Enqueue("wa-2", "owner@s.whatsapp.net", "second"); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		it, err := s.Queue.ClaimNext()
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if it == nil {
			t.Fatal("expected an item")
		}
		if it.ID != id1 {
			t.Errorf("claimed id = %d, want %d", it.ID, id1)
		}
		if it.Text != "first" {
			t.Errorf("claimed text = %q, want %q", it.Text, "first")
		}
		if it.Status != StatusProcessing {
			t.Errorf("claimed status = %q, want %q", it.Status, StatusProcessing)
		}
	})

	t.Run("each item claimed exactly once", func(t *testing.T) {
		// One item remains pending from the previous subtest.
		seen := map[int64]bool{}
		for {
			it, err := s.Queue.ClaimNext()
			if err != nil {
				t.Fatalf("ClaimNext: %v", err)
			}
			if it == nil {
				break
			}
			if seen[it.ID] {
				t.Fatalf("item %d claimed twice", it.ID)
			}
			seen[it.ID] = true
		}
		if len(seen) != 1 {
			t.Errorf("claimed %d items, want 1", len(seen))
		}
	})
}

func TestQueueComplete(t *testing.T) {
	s := testStore(t)

	id, err := s.Queue.Enqueue("wa-1", "owner@s.whatsapp.net", "hello")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := s.Queue.ClaimNext(); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	t.Run("success records response and token", func(t *testing.T) {
		if err := s.Queue.Complete(id, "hi there", true, "tok-123"); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		items, err := s.Queue.Undelivered()
		if err != nil {
			t.Fatalf("Undelivered: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("undelivered = %d items, want 1", len(items))
		}
		it := items[0]
		if it.Status != StatusCompleted {
			t.Errorf("status = %q, want %q", it.Status, StatusCompleted)
		}
		if it.Response != "hi there" {
			t.Errorf("response = %q", it.Response)
		}
		if it.SessionToken != "tok-123" {
			t.Errorf("session token = %q", it.SessionToken)
		}
		if it.CompletedAt.IsZero() {
			t.Error("completed_at not set")
		}
	})

	t.Run("failure marks failed but still undelivered", func(t *testing.T) {
		id2, _ := s.Queue.Enqueue("wa-2", "owner@s.whatsapp.net", "boom")
		s.Queue.ClaimNext()
		if err := s.Queue.Complete(id2, "something went wrong", false, ""); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		items, err := s.Queue.Undelivered()
		if err != nil {
			t.Fatalf("Undelivered: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("undelivered = %d items, want 2", len(items))
		}
		if items[1].Status != StatusFailed {
			t.Errorf("status = %q, want %q", items[1].Status, StatusFailed)
		}
	})
}

func TestQueueMarkDelivered(t *testing.T) {
	s := testStore(t)

	id, _ := s.Queue.Enqueue("wa-1", "owner@s.whatsapp.net", "hello")
	s.Queue.ClaimNext()
	s.Queue.Complete(id, "response", true, "")

	if err := s.Queue.MarkDelivered(id); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	items, err := s.Queue.Undelivered()
	if err != nil {
		t.Fatalf("Undelivered: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("undelivered = %d items after delivery, want 0", len(items))
	}

	t.Run("idempotent", func(t *testing.T) {
		var first string
		if err := s.DB.QueryRow(`SELECT delivered_at FROM message_queue WHERE id = ?`, id).Scan(&first); err != nil {
			t.Fatalf("query delivered_at: %v", err)
		}
		time.Sleep(1100 * time.Millisecond)
		if err := s.Queue.MarkDelivered(id); err != nil {
			t.Fatalf("MarkDelivered again: %v", err)
		}
		var second string
		if err := s.DB.QueryRow(`SELECT delivered_at FROM message_queue WHERE id = ?`, id).Scan(&second); err != nil {
			t.Fatalf("query delivered_at: %v", err)
		}
		if first != second {
			t.Errorf("delivered_at changed on repeat call: %q -> %q", first, second)
		}
	})
}

func TestQueueResetStuck(t *testing.T) {
	s := testStore(t)

	s.Queue.Enqueue("wa-1", "owner@s.whatsapp.net", "one")
	s.Queue.Enqueue("wa-2", "owner@s.whatsapp.net", "two")
	s.Queue.ClaimNext()

	n, err := s.Queue.ResetStuck()
	if err != nil {
		t.Fatalf("ResetStuck: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d items, want 1", n)
	}

	// Both items should be claimable again.
	count := 0
	for {
		it, err := s.Queue.ClaimNext()
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if it == nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("claimable after reset = %d, want 2", count)
	}
}

func TestQueueEnqueueNotice(t *testing.T) {
	s := testStore(t)

	id, err := s.Queue.EnqueueNotice("reminder: take a break")
	if err != nil {
		t.Fatalf("EnqueueNotice: %v", err)
	}

	// A notice must never be claimable by the processor.
	it, err := s.Queue.ClaimNext()
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if it != nil {
		t.Fatalf("notice was claimed by processor: %+v", it)
	}

	// But it must be waiting for delivery.
	items, err := s.Queue.Undelivered()
	if err != nil {
		t.Fatalf("Undelivered: %v", err)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("undelivered = %+v, want notice %d", items, id)
	}
	if items[0].Response != "reminder: take a break" {
		t.Errorf("notice response = %q", items[0].Response)
	}
}

func TestQueueLastSessionToken(t *testing.T) {
	s := testStore(t)

	t.Run("empty when no completed items", func(t *testing.T) {
		tok, _, err := s.Queue.LastSessionToken()
		if err != nil {
			t.Fatalf("LastSessionToken: %v", err)
		}
		if tok != "" {
			t.Errorf("token = %q, want empty", tok)
		}
	})

	t.Run("returns most recent token", func(t *testing.T) {
		id1, _ := s.Queue.Enqueue("wa-1", "owner@s.whatsapp.net", "one")
		s.Queue.ClaimNext()
		s.Queue.Complete(id1, "r1", true, "tok-old")

		id2, _ := s.Queue.Enqueue("wa-2", "owner@s.whatsapp.net", "two")
		s.Queue.ClaimNext()
		s.Queue.Complete(id2, "r2", true, "tok-new")

		tok, at, err := s.Queue.LastSessionToken()
		if err != nil {
			t.Fatalf("LastSessionToken: %v", err)
		}
		if tok != "tok-new" {
			t.Errorf("token = %q, want tok-new", tok)
		}
		if at.IsZero() {
			t.Error("creation time is zero")
		}
	})

	t.Run("time reflects when the message arrived, not when it finished", func(t *testing.T) {
		// A slow invocation must not extend the resume window: an item
		// created two hours ago that completed just now is still stale.
		created := time.Now().UTC().Add(-2 * time.Hour)
		_, err := s.DB.Exec(`
			INSERT INTO message_queue (wa_message_id, sender_jid, text, response, status, session_token, created_at, completed_at)
			VALUES ('wa-slow', 'owner@s.whatsapp.net', 'slow one', 'r3', ?, 'tok-slow', ?, ?)`,
			StatusCompleted, created.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		tok, at, err := s.Queue.LastSessionToken()
		if err != nil {
			t.Fatalf("LastSessionToken: %v", err)
		}
		if tok != "tok-slow" {
			t.Errorf("token = %q, want tok-slow", tok)
		}
		if age := time.Since(at); age < 90*time.Minute {
			t.Errorf("age = %s, want the two-hour-old creation time", age)
		}
	})
}

func TestQueueProcessingSender(t *testing.T) {
	s := testStore(t)

	t.Run("nothing processing", func(t *testing.T) {
		_, ok, err := s.Queue.ProcessingSender()
		if err != nil {
			t.Fatalf("ProcessingSender: %v", err)
		}
		if ok {
			t.Error("reported a processing item on an empty queue")
		}
	})

	t.Run("returns the claimed item's sender", func(t *testing.T) {
		s.Queue.Enqueue("wa-1", "55511122233@s.whatsapp.net", "external question")
		s.Queue.ClaimNext()

		sender, ok, err := s.Queue.ProcessingSender()
		if err != nil {
			t.Fatalf("ProcessingSender: %v", err)
		}
		if !ok {
			t.Fatal("no processing item reported")
		}
		if sender != "55511122233@s.whatsapp.net" {
			t.Errorf("sender = %q", sender)
		}
	})
}

func TestQueueCountSince(t *testing.T) {
	s := testStore(t)

	s.Queue.Enqueue("wa-1", "owner@s.whatsapp.net", "one")
	s.Queue.Enqueue("wa-2", "owner@s.whatsapp.net", "two")
	s.Queue.EnqueueNotice("system notice")

	n, err := s.Queue.CountSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2 (system notices excluded)", n)
	}

	n, err = s.Queue.CountSince(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0 for future cutoff", n)
	}
}

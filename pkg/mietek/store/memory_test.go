package store

import "testing"

func TestMemorySave(t *testing.T) {
	s := testStore(t)

	t.Run("insert then upsert by key", func(t *testing.T) {
		if err := s.Memory.Save("fact", "coffee", "drinks it black", "explicit"); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Memory.Save("fact", "coffee", "switched to oat milk", "conversation"); err != nil {
			t.Fatalf("Save: %v", err)
		}

		facts, err := s.Memory.ListActive()
		if err != nil {
			t.Fatalf("ListActive: %v", err)
		}
		if len(facts) != 1 {
			t.Fatalf("active facts = %d, want 1", len(facts))
		}
		if facts[0].Value != "switched to oat milk" {
			t.Errorf("value = %q, want updated value", facts[0].Value)
		}
	})

	t.Run("empty category and source get defaults", func(t *testing.T) {
		if err := s.Memory.Save("", "city", "Warsaw", ""); err != nil {
			t.Fatalf("Save: %v", err)
		}
		f, err := s.Memory.Get("city")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if f == nil {
			t.Fatal("fact not found")
		}
		if f.Category != "fact" || f.Source != "explicit" {
			t.Errorf("defaults not applied: category=%q source=%q", f.Category, f.Source)
		}
	})
}

func TestMemoryForget(t *testing.T) {
	s := testStore(t)

	s.Memory.Save("fact", "coffee", "black", "explicit")

	t.Run("soft delete hides from active list", func(t *testing.T) {
		ok, err := s.Memory.Forget("coffee")
		if err != nil {
			t.Fatalf("Forget: %v", err)
		}
		if !ok {
			t.Fatal("Forget returned false for existing key")
		}

		facts, _ := s.Memory.ListActive()
		if len(facts) != 0 {
			t.Errorf("active facts = %d after forget, want 0", len(facts))
		}

		// Row survives in the table.
		var n int
		s.DB.QueryRow(`SELECT COUNT(*) FROM user_memory WHERE key = 'coffee'`).Scan(&n)
		if n != 1 {
			t.Errorf("rows for forgotten key = %d, want 1", n)
		}
	})

	t.Run("unknown key returns false", func(t *testing.T) {
		ok, err := s.Memory.Forget("no-such-key")
		if err != nil {
			t.Fatalf("Forget: %v", err)
		}
		if ok {
			t.Error("Forget returned true for unknown key")
		}
	})

	t.Run("save after forget creates fresh active fact", func(t *testing.T) {
		if err := s.Memory.Save("fact", "coffee", "espresso now", "explicit"); err != nil {
			t.Fatalf("Save: %v", err)
		}
		f, _ := s.Memory.Get("coffee")
		if f == nil || f.Value != "espresso now" {
			t.Fatalf("fact after re-save = %+v", f)
		}
	})
}

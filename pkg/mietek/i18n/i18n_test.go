package i18n

import (
	"testing"
	"time"
)

func TestFor(t *testing.T) {
	if For("pl").Tag != "pl" {
		t.Error("pl locale not found")
	}
	if For("en").Tag != "en" {
		t.Error("en locale not found")
	}
	if For("de").Tag != "en" {
		t.Error("unknown tag should fall back to en")
	}
}

func TestResolve(t *testing.T) {
	got := Resolve("Hi, I am {botName}, assistant of {ownerName}. {botName} out.", "Mietek", "Anna")
	want := "Hi, I am Mietek, assistant of Anna. Mietek out."
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestRemindPatternPL(t *testing.T) {
	l := For("pl")

	tests := []struct {
		input    string
		text     string
		amount   string
		unitBase time.Duration
	}{
		{"spotkanie za 30 min", "spotkanie", "30", time.Minute},
		{"obiad za 2 godziny", "obiad", "2", time.Hour},
		{"test za 10 s", "test", "10", time.Second},
		{"urlop za 3 dni", "urlop", "3", 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m := l.RemindPattern.FindStringSubmatch(tt.input)
			if m == nil {
				t.Fatalf("pattern did not match %q", tt.input)
			}
			if m[1] != tt.text || m[2] != tt.amount {
				t.Errorf("captures = (%q, %q), want (%q, %q)", m[1], m[2], tt.text, tt.amount)
			}
			if d := l.UnitDuration(m[3]); d != tt.unitBase {
				t.Errorf("UnitDuration(%q) = %v, want %v", m[3], d, tt.unitBase)
			}
		})
	}

	t.Run("no match without time phrase", func(t *testing.T) {
		if l.RemindPattern.MatchString("spotkanie jutro") {
			t.Error("pattern matched input without 'za N unit'")
		}
	})
}

func TestRemindPatternEN(t *testing.T) {
	l := For("en")

	m := l.RemindPattern.FindStringSubmatch("meeting in 45 minutes")
	if m == nil {
		t.Fatal("pattern did not match")
	}
	if m[1] != "meeting" || m[2] != "45" {
		t.Errorf("captures = (%q, %q)", m[1], m[2])
	}
	if d := l.UnitDuration("minutes"); d != time.Minute {
		t.Errorf("UnitDuration(minutes) = %v", d)
	}
	if d := l.UnitDuration("hours"); d != time.Hour {
		t.Errorf("UnitDuration(hours) = %v", d)
	}
	if d := l.UnitDuration("banana"); d != time.Minute {
		t.Errorf("unknown unit should default to minutes, got %v", d)
	}
}

func TestGenderInstruction(t *testing.T) {
	l := For("pl")
	if l.GenderInstruction("female") != l.GenderFemale {
		t.Error("female form not selected")
	}
	if l.GenderInstruction("male") != l.GenderMale {
		t.Error("male form not selected")
	}
	if l.GenderInstruction("") != l.GenderMale {
		t.Error("empty gender should default to male form")
	}
}

package consent

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		active   bool
		checked  bool
		typed    string
		expected string
		want     bool
		wantOut  Outcome
		blocking bool
		warning  bool
	}{
		{"consent not checked", true, false, "", "example.com", false, OutcomeConsentMissing, false, true},
		{"confirmation mismatch", true, true, "wrong.com", "example.com", false, OutcomeConfirmationMismatch, true, false},
		{"granted", true, true, "example.com", "example.com", true, OutcomeGranted, false, false},
		{"not requested", false, true, "example.com", "example.com", false, OutcomeNotRequested, false, false},
		{"case sensitive", true, true, "Example.com", "example.com", false, OutcomeConfirmationMismatch, true, false},
		{"no trimming", true, true, " example.com", "example.com", false, OutcomeConfirmationMismatch, true, false},
		{"not requested ignores mismatch", false, true, "wrong.com", "example.com", false, OutcomeNotRequested, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.active, tt.checked, tt.typed, tt.expected); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
			d := Evaluate(tt.active, tt.checked, tt.typed, tt.expected)
			if d.Outcome != tt.wantOut {
				t.Errorf("Evaluate().Outcome = %s, want %s", d.Outcome, tt.wantOut)
			}
			if d.Blocking() != tt.blocking {
				t.Errorf("Blocking() = %v, want %v", d.Blocking(), tt.blocking)
			}
			if d.Warning() != tt.warning {
				t.Errorf("Warning() = %v, want %v", d.Warning(), tt.warning)
			}
		})
	}
}

func TestDecide_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		if !Decide(true, true, "example.com", "example.com") {
			t.Fatal("expected repeated identical inputs to grant consent")
		}
	}
}

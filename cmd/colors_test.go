package cmd

import (
	"testing"

	"github.com/fatih/color"
)

func TestFormatStatusWithColor(t *testing.T) {
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})

	tests := []struct {
		name   string
		status string
		want   string
	}{
		{name: "success", status: "OK", want: "OK"},
		{name: "verified", status: "verified", want: "verified"},
		{name: "failure", status: "FAILED", want: "FAILED"},
		{name: "unknown", status: "pending", want: "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatStatusWithColor(tt.status); got != tt.want {
				t.Fatalf("formatStatusWithColor(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestFormatScoreWithColor(t *testing.T) {
	original := color.NoColor
	t.Cleanup(func() {
		color.NoColor = original
	})

	color.NoColor = true
	if got := formatScoreWithColor(83); got != "83" {
		t.Fatalf("expected plain score, got %q", got)
	}

	color.NoColor = false
	if got := formatScoreWithColor(10); got == "10" {
		t.Fatal("expected ANSI colouring for a failing score")
	}
}

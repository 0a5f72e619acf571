package cmd

import (
	"errors"
	"testing"

	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

func TestConsentMismatchError(t *testing.T) {
	err := &ConsentMismatchError{Typed: "example.org", Expected: "example.com"}
	want := `active scan blocked: confirmation "example.org" does not match domain "example.com"`
	if err.Error() != want {
		t.Fatalf("expected %s, got %s", want, err.Error())
	}
	if !errors.Is(err, sharedErrors.ErrConsentMismatch) {
		t.Fatal("expected error to match ErrConsentMismatch")
	}

	err = &ConsentMismatchError{Expected: "example.com"}
	want = `active scan blocked: type the domain "example.com" with --confirm to authorize it`
	if err.Error() != want {
		t.Fatalf("expected %s, got %s", want, err.Error())
	}
}

func TestOutputRequiredError(t *testing.T) {
	err := &OutputRequiredError{Format: "pdf"}
	want := "pdf reports are binary; write them to a file with --output"
	if err.Error() != want {
		t.Fatalf("expected %s, got %s", want, err.Error())
	}
}

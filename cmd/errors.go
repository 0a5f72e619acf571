package cmd

import (
	"fmt"

	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// ConsentMismatchError reports a typed domain confirmation that does not
// match the scanned host.
type ConsentMismatchError struct {
	Typed    string
	Expected string
}

func (e *ConsentMismatchError) Error() string {
	if e.Typed == "" {
		return fmt.Sprintf("active scan blocked: type the domain %q with --confirm to authorize it", e.Expected)
	}
	return fmt.Sprintf("active scan blocked: confirmation %q does not match domain %q", e.Typed, e.Expected)
}

// Unwrap lets callers match the error with errors.Is(err, ErrConsentMismatch).
func (e *ConsentMismatchError) Unwrap() error {
	return sharedErrors.ErrConsentMismatch
}

// OutputRequiredError signals a binary format requested for the terminal.
type OutputRequiredError struct {
	Format string
}

func (e *OutputRequiredError) Error() string {
	return fmt.Sprintf("%s reports are binary; write them to a file with --output", e.Format)
}

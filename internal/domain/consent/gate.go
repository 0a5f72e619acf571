// Package consent decides whether a scan may escalate to active probing.
//
// The gate is the only trust boundary in front of probes that open TCP
// connections beyond ordinary HTTP requests. It performs no I/O and always
// returns the same decision for the same inputs.
package consent

// Outcome explains why a decision was reached so callers can surface the
// right notice: nothing, a warning, or a blocking error.
type Outcome string

const (
	// OutcomeNotRequested means no active scan was asked for.
	OutcomeNotRequested Outcome = "not_requested"
	// OutcomeConsentMissing means an active scan was asked for without the
	// ownership checkbox. The scan continues passive-only with a warning.
	OutcomeConsentMissing Outcome = "consent_missing"
	// OutcomeConfirmationMismatch means the typed domain did not match the
	// target. The scan must not run.
	OutcomeConfirmationMismatch Outcome = "confirmation_mismatch"
	// OutcomeGranted permits active probing.
	OutcomeGranted Outcome = "granted"
)

// Decision is the full result of evaluating the gate.
type Decision struct {
	Allowed bool    `json:"allowed"`
	Outcome Outcome `json:"outcome"`
}

// Blocking reports whether the caller must stop instead of scanning.
func (d Decision) Blocking() bool {
	return d.Outcome == OutcomeConfirmationMismatch
}

// Warning reports whether the caller should warn that active probes were skipped.
func (d Decision) Warning() bool {
	return d.Outcome == OutcomeConsentMissing
}

// Evaluate applies the gate rules in order. The typed confirmation must
// equal expectedDomain exactly; no case folding or trimming is applied.
func Evaluate(activeRequested, consentChecked bool, typedConfirmation, expectedDomain string) Decision {
	switch {
	case !activeRequested:
		return Decision{Allowed: false, Outcome: OutcomeNotRequested}
	case !consentChecked:
		return Decision{Allowed: false, Outcome: OutcomeConsentMissing}
	case typedConfirmation != expectedDomain:
		return Decision{Allowed: false, Outcome: OutcomeConfirmationMismatch}
	}
	return Decision{Allowed: true, Outcome: OutcomeGranted}
}

// Decide returns true only when active probing is permitted.
func Decide(activeRequested, consentChecked bool, typedConfirmation, expectedDomain string) bool {
	return Evaluate(activeRequested, consentChecked, typedConfirmation, expectedDomain).Allowed
}

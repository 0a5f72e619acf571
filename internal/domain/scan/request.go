package scan

import (
	"fmt"
	"strings"

	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// Request describes one scan as supplied by the caller.
type Request struct {
	TargetURL         string `json:"target_url"`
	ActiveRequested   bool   `json:"active_requested"`
	ConsentConfirmed  bool   `json:"consent_confirmed"`
	TypedConfirmation string `json:"typed_confirmation,omitempty"`
	AdvancedTLS       bool   `json:"advanced_tls"`
	Ports             []int  `json:"ports,omitempty"`
	// Refresh skips the cache lookup; the fresh result is still stored.
	Refresh bool `json:"refresh,omitempty"`
	// Operator is recorded in the audit log.
	Operator string `json:"operator,omitempty"`
}

// Validate checks the request for values no probe could use.
func (r Request) Validate() error {
	if strings.TrimSpace(r.TargetURL) == "" {
		return sharedErrors.ErrEmptyTarget
	}
	for _, p := range r.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: %d", sharedErrors.ErrInvalidPort, p)
		}
	}
	return nil
}

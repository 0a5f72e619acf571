package checker

import "github.com/khanhnv2901/cybersafe/internal/domain/scan"

// Outcome is what one scoring rule contributes for an observation.
type Outcome struct {
	// Delta is added to the running score.
	Delta int
	// ForceZero pins the final score to 0 regardless of the other deltas.
	ForceZero bool
	// Finding is emitted when non-nil.
	Finding *scan.Finding
}

// Rule evaluates one scoring condition against an observation of type T.
type Rule[T any] struct {
	Name string
	Eval func(obs T) Outcome
}

// Fold applies rules in order starting from base. Findings keep rule order;
// the score is the floor-clamped sum of all deltas, or 0 if any rule forced it.
func Fold[T any](base int, obs T, rules []Rule[T]) (int, []scan.Finding) {
	score := base
	forced := false
	findings := []scan.Finding{}
	for _, r := range rules {
		out := r.Eval(obs)
		score += out.Delta
		if out.ForceZero {
			forced = true
		}
		if out.Finding != nil {
			findings = append(findings, *out.Finding)
		}
	}
	if forced {
		score = 0
	}
	return scan.ClampScore(score), findings
}

func pass(delta int) Outcome {
	return Outcome{Delta: delta}
}

func fail(delta int, severity scan.Severity, description, remediation string) Outcome {
	return Outcome{
		Delta: delta,
		Finding: &scan.Finding{
			Severity:    severity,
			Description: description,
			Remediation: remediation,
		},
	}
}

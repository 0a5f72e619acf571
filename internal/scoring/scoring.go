// Package scoring reduces a completed scan into a single weighted 0-100 score.
package scoring

import (
	"fmt"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// Weights maps each probe to its relative importance. A Weights value is
// never mutated after construction; the Scorer keeps its own copy.
type Weights map[scan.ProbeName]int

// DefaultWeights returns the standard weight table.
func DefaultWeights() Weights {
	return Weights{
		scan.ProbeTLS:     30,
		scan.ProbeHeaders: 30,
		scan.ProbeCORS:    15,
		scan.ProbeMethods: 15,
		scan.ProbePorts:   10,
	}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	for name, v := range w {
		if v < 0 {
			return fmt.Errorf("%w: %s=%d", sharedErrors.ErrInvalidWeight, name, v)
		}
	}
	return nil
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// weightOrder fixes the accumulation order so the sum never depends on map iteration.
var weightOrder = []scan.ProbeName{
	scan.ProbeTLS,
	scan.ProbeHeaders,
	scan.ProbeCORS,
	scan.ProbeMethods,
	scan.ProbePorts,
}

// Scorer computes overall scores. It holds no mutable state.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer over a private copy of weights.
func NewScorer(weights Weights) (*Scorer, error) {
	if weights == nil {
		weights = DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights.clone()}, nil
}

// Weight returns the configured weight for name.
func (s *Scorer) Weight(name scan.ProbeName) int {
	return s.weights[name]
}

// Calculate returns floor(sum(score*weight) / sum(weight)) over the probes
// present in result. Probes missing from the result do not count toward the
// denominator. An empty result scores 0.
func (s *Scorer) Calculate(result scan.ScanResult) int {
	total, weightTotal := 0, 0
	for _, name := range weightOrder {
		r, ok := result.Probes[name]
		if !ok {
			continue
		}
		w := s.weights[name]
		total += r.Score * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	return total / weightTotal
}

// Grade maps an overall score onto the three report bands.
func Grade(score int) string {
	switch {
	case score < 50:
		return "high"
	case score < 80:
		return "medium"
	default:
		return "good"
	}
}

package scan

import (
	"encoding/json"
	"sort"
	"time"
)

// Severity ranks a single finding.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Rank orders severities from Info (0) to Critical (4). Unknown values rank below Info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return -1
}

// IsValid reports whether s is one of the known severities.
func (s Severity) IsValid() bool {
	return s.Rank() >= 0
}

// Finding is one discrete security observation.
type Finding struct {
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
	Remediation string   `json:"remediation" yaml:"remediation"`
}

// ProbeName identifies one probe inside a ScanResult.
type ProbeName string

const (
	ProbeHeaders ProbeName = "headers"
	ProbeTLS     ProbeName = "tls"
	ProbeCORS    ProbeName = "cors"
	ProbeMethods ProbeName = "methods"
	ProbePorts   ProbeName = "ports"
)

// PassiveProbes lists the probes that run on every scan, in report order.
var PassiveProbes = []ProbeName{ProbeHeaders, ProbeTLS, ProbeCORS, ProbeMethods}

// ProbeResult is the normalized output of a single probe.
type ProbeResult struct {
	Score    int            `json:"score" yaml:"score"`
	Findings []Finding      `json:"findings" yaml:"findings"`
	Details  map[string]any `json:"details" yaml:"details,omitempty"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed builds the result of a probe that could not complete.
func Failed(msg string) ProbeResult {
	return ProbeResult{
		Score:    0,
		Findings: []Finding{},
		Details:  map[string]any{},
		Error:    msg,
	}
}

// HasError reports whether the probe failed.
func (r ProbeResult) HasError() bool {
	return r.Error != ""
}

// Normalize enforces the result invariants: score within [0,100], and 0 when an error is set.
// Details are rewritten to the types encoding/json decodes into, so a result
// read back from a JSON-backed store equals the one that was stored.
func (r ProbeResult) Normalize() ProbeResult {
	r.Score = ClampScore(r.Score)
	if r.Error != "" {
		r.Score = 0
	}
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	r.Details = jsonDetails(r.Details)
	return r
}

// jsonDetails converts details to float64, string, bool, []any and
// map[string]any values. The input map is not modified.
func jsonDetails(details map[string]any) map[string]any {
	out := map[string]any{}
	if len(details) == 0 {
		return out
	}
	data, err := json.Marshal(details)
	if err != nil {
		return cloneMap(details)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return cloneMap(details)
	}
	return out
}

// ClampScore limits score to [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ScanResult aggregates every probe result of one scan.
type ScanResult struct {
	Probes       map[ProbeName]ProbeResult `json:"probes" yaml:"probes"`
	OverallScore int                       `json:"overall_score" yaml:"overall_score"`
	Timestamp    time.Time                 `json:"timestamp" yaml:"timestamp"`
}

// Normalize returns a copy with every probe result normalized and the
// timestamp in UTC.
func (s ScanResult) Normalize() ScanResult {
	out := s
	out.Timestamp = s.Timestamp.UTC()
	if s.Probes != nil {
		out.Probes = make(map[ProbeName]ProbeResult, len(s.Probes))
		for name, r := range s.Probes {
			out.Probes[name] = r.Normalize()
		}
	}
	return out
}

// Probe returns the result stored under name.
func (s ScanResult) Probe(name ProbeName) (ProbeResult, bool) {
	r, ok := s.Probes[name]
	return r, ok
}

// Names returns the probe names present in the result, passive probes first.
func (s ScanResult) Names() []ProbeName {
	names := make([]ProbeName, 0, len(s.Probes))
	for _, n := range PassiveProbes {
		if _, ok := s.Probes[n]; ok {
			names = append(names, n)
		}
	}
	extra := make([]ProbeName, 0)
	for n := range s.Probes {
		if !isPassive(n) {
			extra = append(extra, n)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(names, extra...)
}

// FindingCount returns the number of findings per severity across all probes.
func (s ScanResult) FindingCount() map[Severity]int {
	counts := make(map[Severity]int)
	for _, r := range s.Probes {
		for _, f := range r.Findings {
			counts[f.Severity]++
		}
	}
	return counts
}

// ActiveRan reports whether the ports probe is part of the result.
func (s ScanResult) ActiveRan() bool {
	_, ok := s.Probes[ProbePorts]
	return ok
}

func isPassive(n ProbeName) bool {
	for _, p := range PassiveProbes {
		if p == n {
			return true
		}
	}
	return false
}

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

// Record is one line of the scan audit log. Records are chained: each hash
// covers the record content and the previous record's hash, so editing or
// removing an earlier line is detectable.
type Record struct {
	ScanID          string                 `json:"scan_id"`
	Timestamp       time.Time              `json:"timestamp"`
	Operator        string                 `json:"operator,omitempty"`
	Target          string                 `json:"target"`
	Host            string                 `json:"host"`
	ActiveRequested bool                   `json:"active_requested"`
	ConsentOutcome  string                 `json:"consent_outcome"`
	ActiveRan       bool                   `json:"active_ran"`
	AdvancedTLS     bool                   `json:"advanced_tls"`
	CacheHit        bool                   `json:"cache_hit"`
	OverallScore    int                    `json:"overall_score"`
	ProbeScores     map[scan.ProbeName]int `json:"probe_scores"`
	ProbeErrors     []scan.ProbeName       `json:"probe_errors,omitempty"`
	FindingCounts   map[scan.Severity]int  `json:"finding_counts"`
	DurationSeconds float64                `json:"duration_seconds"`
	PrevHash        string                 `json:"prev_hash"`
	Hash            string                 `json:"hash"`
}

// NewRecord builds a record for a finished scan with a fresh scan ID.
func NewRecord(target, host string, result *scan.ScanResult) (*Record, error) {
	if target == "" {
		return nil, errors.New("target cannot be empty")
	}
	r := &Record{
		ScanID:        uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Target:        target,
		Host:          host,
		ProbeScores:   map[scan.ProbeName]int{},
		FindingCounts: map[scan.Severity]int{},
	}
	if result != nil {
		r.OverallScore = result.OverallScore
		r.ActiveRan = result.ActiveRan()
		r.FindingCounts = result.FindingCount()
		for _, name := range result.Names() {
			probe := result.Probes[name]
			r.ProbeScores[name] = probe.Score
			if probe.HasError() {
				r.ProbeErrors = append(r.ProbeErrors, name)
			}
		}
	}
	return r, nil
}

// ComputeHash returns the chained hash of the record, ignoring the stored Hash.
func (r *Record) ComputeHash() (string, error) {
	c := *r
	c.Hash = ""
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal links the record to prev and stores its hash.
func (r *Record) Seal(prevHash string) error {
	r.PrevHash = prevHash
	h, err := r.ComputeHash()
	if err != nil {
		return err
	}
	r.Hash = h
	return nil
}

// VerifyIntegrity reports whether the stored hash matches the content.
func (r *Record) VerifyIntegrity() bool {
	h, err := r.ComputeHash()
	return err == nil && h == r.Hash
}

// VerifyChain checks every record hash and link in order. It returns the
// index of the first bad record, or -1 when the chain is intact.
func VerifyChain(records []*Record) int {
	prev := ""
	for i, r := range records {
		if r.PrevHash != prev || !r.VerifyIntegrity() {
			return i
		}
		prev = r.Hash
	}
	return -1
}

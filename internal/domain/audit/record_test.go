package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

func sampleScan() *scan.ScanResult {
	return &scan.ScanResult{
		Probes: map[scan.ProbeName]scan.ProbeResult{
			scan.ProbeHeaders: {Score: 40, Findings: []scan.Finding{{Severity: scan.SeverityHigh}}},
			scan.ProbeTLS:     scan.Failed("timeout"),
			scan.ProbePorts:   {Score: 100},
		},
		OverallScore: 44,
		Timestamp:    time.Now(),
	}
}

func TestNewRecord(t *testing.T) {
	r, err := NewRecord("https://example.com", "example.com", sampleScan())
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if _, err := uuid.Parse(r.ScanID); err != nil {
		t.Errorf("Expected a UUID scan ID, got %q", r.ScanID)
	}
	if r.OverallScore != 44 || !r.ActiveRan {
		t.Errorf("Unexpected summary: score %d active %v", r.OverallScore, r.ActiveRan)
	}
	if r.ProbeScores[scan.ProbeHeaders] != 40 {
		t.Errorf("Expected headers score 40, got %d", r.ProbeScores[scan.ProbeHeaders])
	}
	if len(r.ProbeErrors) != 1 || r.ProbeErrors[0] != scan.ProbeTLS {
		t.Errorf("Expected tls error recorded, got %v", r.ProbeErrors)
	}
	if r.FindingCounts[scan.SeverityHigh] != 1 {
		t.Errorf("Expected one High finding counted, got %v", r.FindingCounts)
	}

	if _, err := NewRecord("", "", nil); err == nil {
		t.Error("Expected error for empty target")
	}
}

func TestVerifyChain(t *testing.T) {
	var records []*Record
	prev := ""
	for i := 0; i < 3; i++ {
		r, err := NewRecord("example.com", "example.com", sampleScan())
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Seal(prev); err != nil {
			t.Fatal(err)
		}
		prev = r.Hash
		records = append(records, r)
	}

	if idx := VerifyChain(records); idx != -1 {
		t.Fatalf("Expected intact chain, broken at %d", idx)
	}

	records[1].OverallScore = 100
	if idx := VerifyChain(records); idx != 1 {
		t.Errorf("Expected tampering detected at 1, got %d", idx)
	}

	records[1].OverallScore = 44
	if idx := VerifyChain(append(records[:1:1], records[2])); idx != 1 {
		t.Errorf("Expected removed record detected at 1, got %d", idx)
	}
}

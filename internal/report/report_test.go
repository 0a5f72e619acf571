package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func sampleReport() Report {
	return Report{
		ScanID:      "3f1c9a4e-1111-4222-8333-944455556666",
		Target:      "https://example.com",
		Operator:    "alice",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Result: scan.ScanResult{
			OverallScore: 62,
			Timestamp:    time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
			Probes: map[scan.ProbeName]scan.ProbeResult{
				scan.ProbeHeaders: {
					Score: 60,
					Findings: []scan.Finding{
						{Severity: scan.SeverityMedium, Description: "Missing X-Frame-Options header.", Remediation: "Add X-Frame-Options."},
						{Severity: scan.SeverityHigh, Description: "Missing Content-Security-Policy header.", Remediation: "Add a CSP <script> policy."},
					},
					Details: map[string]any{},
				},
				scan.ProbeTLS: {
					Score:    0,
					Findings: []scan.Finding{},
					Details:  map[string]any{},
					Error:    "connection refused",
				},
				scan.ProbeCORS:    {Score: 100, Findings: []scan.Finding{}, Details: map[string]any{}},
				scan.ProbeMethods: {Score: 100, Findings: []scan.Finding{}, Details: map[string]any{"message": "No Allow header received in OPTIONS response."}},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"json", FormatJSON},
		{"YAML", FormatYAML},
		{" html ", FormatHTML},
		{"pdf", FormatPDF},
		{"text", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("docx")
	assert.True(t, errors.Is(err, sharedErrors.ErrInvalidFormat))
}

func TestFormatExtension(t *testing.T) {
	assert.Equal(t, "txt", FormatText.Extension())
	assert.Equal(t, "json", FormatJSON.Extension())
	assert.True(t, FormatPDF.Binary())
	assert.False(t, FormatHTML.Binary())
}

func TestRenderUnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, Format("xml"), sampleReport())
	assert.True(t, errors.Is(err, sharedErrors.ErrInvalidFormat))
}

func TestSectionsOrderAndSeveritySort(t *testing.T) {
	sections := sampleReport().Sections()
	require.Len(t, sections, 4)

	names := []scan.ProbeName{}
	for _, s := range sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, scan.PassiveProbes, names)

	headers := sections[0]
	require.Len(t, headers.Findings, 2)
	assert.Equal(t, scan.SeverityHigh, headers.Findings[0].Severity)
	assert.Equal(t, "medium", headers.Grade)
	assert.Equal(t, "high", sections[1].Grade)
}

func TestRenderJSONIsScanResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, sampleReport()))

	var decoded scan.ScanResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 62, decoded.OverallScore)
	assert.Equal(t, "connection refused", decoded.Probes[scan.ProbeTLS].Error)
	assert.NotContains(t, buf.String(), "alice", "metadata is not part of the machine-readable output")
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatYAML, sampleReport()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 62, decoded["overall_score"])
	probes, ok := decoded["probes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, probes, "headers")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatHTML, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "<title>Security Report - https://example.com</title>")
	assert.Contains(t, out, `class="score medium"`)
	assert.Contains(t, out, "HEADERS")
	assert.Contains(t, out, "Missing Content-Security-Policy header.")
	assert.Contains(t, out, "Error: connection refused")
	assert.Contains(t, out, "Operator: alice")
	assert.Contains(t, out, "2026-03-01T11:59:00Z")
	assert.Contains(t, out, "&lt;script&gt;", "finding text must be escaped")
	assert.NotContains(t, out, "<script>")
}

func TestRenderHTMLGradeBands(t *testing.T) {
	for score, class := range map[int]string{49: "high", 50: "medium", 79: "medium", 80: "good"} {
		r := sampleReport()
		r.Result.OverallScore = score
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, FormatHTML, r))
		assert.Contains(t, buf.String(), `class="score `+class+`"`, "score %d", score)
	}
}

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatPDF, sampleReport()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestRenderPDFManyFindingsPaginates(t *testing.T) {
	r := sampleReport()
	findings := make([]scan.Finding, 0, 80)
	for i := 0; i < 80; i++ {
		findings = append(findings, scan.Finding{Severity: scan.SeverityInfo, Description: strings.Repeat("x", 120), Remediation: "none"})
	}
	r.Result.Probes[scan.ProbePorts] = scan.ProbeResult{Score: 100, Findings: findings, Details: map[string]any{}}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatPDF, r))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRenderText(t *testing.T) {
	r := sampleReport()
	r.CacheHit = true

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatText, r))
	out := buf.String()

	assert.Contains(t, out, "Target:   https://example.com")
	assert.Contains(t, out, "Overall:  62/100")
	assert.Contains(t, out, "(cached)")
	assert.Contains(t, out, "PROBE")
	assert.Contains(t, out, "[High] Missing Content-Security-Policy header.")
	assert.Contains(t, out, "error: connection refused")
	assert.NotContains(t, out, "\nCORS\n", "probes without findings get no detail block")
}

func TestSeveritySummary(t *testing.T) {
	assert.Equal(t, "Findings: High 1, Medium 1", severitySummary(sampleReport()))
	assert.Equal(t, "Findings: none", severitySummary(Report{}))
}

package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

// pageBreakY is the vertical position after which a new probe section starts on a new page.
const pageBreakY = 250

func renderPDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Security Report: %s", r.Target), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("Security Report: %s", r.Target), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 10)
	if r.ScanID != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Scan ID: %s", r.ScanID), "", 1, "", false, 0, "")
	}
	if r.Operator != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Operator: %s", r.Operator), "", 1, "", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Scanned: %s", timestampLabel(r.Result.Timestamp)), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", timestampLabel(r.GeneratedAt)), "", 1, "", false, 0, "")
	if r.CacheHit {
		pdf.CellFormat(0, 6, "Served from cache", "", 1, "", false, 0, "")
	}
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "B", 14)
	red, green, blue := gradeColor(r.Grade())
	pdf.SetTextColor(red, green, blue)
	pdf.CellFormat(0, 8, fmt.Sprintf("Overall score: %d/100", r.Result.OverallScore), "", 1, "", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, severitySummary(r), "", 1, "", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Probe Results", "", 1, "", false, 0, "")
	pdf.Ln(2)

	for _, section := range r.Sections() {
		if pdf.GetY() > pageBreakY {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 7, fmt.Sprintf("%s - %d/100", strings.ToUpper(string(section.Name)), section.Score), "", 1, "", true, 0, "")
		pdf.Ln(1)

		if section.Error != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.SetTextColor(198, 40, 40)
			pdf.MultiCell(0, 5, fmt.Sprintf("Error: %s", section.Error), "", "", false)
			pdf.SetTextColor(0, 0, 0)
		}
		if len(section.Findings) == 0 && section.Error == "" {
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(0, 5, "No issues found.", "", 1, "", false, 0, "")
		}
		for _, f := range section.Findings {
			pdf.SetFont("Arial", "B", 9)
			pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s", f.Severity, f.Description), "", "", false)
			if f.Remediation != "" {
				pdf.SetFont("Arial", "I", 8)
				pdf.MultiCell(0, 4, fmt.Sprintf("  Remediation: %s", f.Remediation), "", "", false)
			}
		}
		pdf.Ln(3)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf report: %w", err)
	}
	return nil
}

func gradeColor(grade string) (int, int, int) {
	switch grade {
	case "good":
		return 46, 125, 50
	case "medium":
		return 239, 108, 0
	default:
		return 198, 40, 40
	}
}

// severitySummary renders "Findings: High 2, Medium 1" style text, most severe first.
func severitySummary(r Report) string {
	counts := r.Result.FindingCount()
	if len(counts) == 0 {
		return "Findings: none"
	}
	severities := make([]scan.Severity, 0, len(counts))
	for sev := range counts {
		severities = append(severities, sev)
	}
	sort.Slice(severities, func(i, j int) bool {
		return severities[i].Rank() > severities[j].Rank()
	})
	parts := make([]string, len(severities))
	for i, sev := range severities {
		parts[i] = fmt.Sprintf("%s %d", sev, counts[sev])
	}
	return "Findings: " + strings.Join(parts, ", ")
}

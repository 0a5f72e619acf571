// Package report renders a finished scan in the formats offered by the CLI.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	"github.com/khanhnv2901/cybersafe/internal/scoring"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// Format selects a renderer.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

// Formats lists every supported format in help-text order.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatHTML, FormatPDF}

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", sharedErrors.ErrInvalidFormat, s)
}

// Extension returns the file extension conventionally used for f.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// Binary reports whether the format should not be written to a terminal.
func (f Format) Binary() bool {
	return f == FormatPDF
}

// Report is the data every renderer works from. JSON and YAML serialize
// only Result; the human-readable formats also print the metadata.
type Report struct {
	ScanID      string
	Target      string
	Operator    string
	CacheHit    bool
	GeneratedAt time.Time
	Result      scan.ScanResult
}

// Grade returns the score band of the overall score: good, medium or high.
func (r Report) Grade() string {
	return scoring.Grade(r.Result.OverallScore)
}

// Section is one probe prepared for display.
type Section struct {
	Name     scan.ProbeName
	Score    int
	Grade    string
	Error    string
	Findings []scan.Finding
	Details  map[string]any
}

// Sections returns the probes in report order with findings sorted by
// descending severity.
func (r Report) Sections() []Section {
	names := r.Result.Names()
	sections := make([]Section, 0, len(names))
	for _, name := range names {
		pr := r.Result.Probes[name]
		findings := append([]scan.Finding(nil), pr.Findings...)
		sort.SliceStable(findings, func(i, j int) bool {
			return findings[i].Severity.Rank() > findings[j].Severity.Rank()
		})
		sections = append(sections, Section{
			Name:     name,
			Score:    pr.Score,
			Grade:    scoring.Grade(pr.Score),
			Error:    pr.Error,
			Findings: findings,
			Details:  pr.Details,
		})
	}
	return sections
}

// Render writes r to w in the given format.
func Render(w io.Writer, format Format, r Report) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, r)
	case FormatYAML:
		return renderYAML(w, r)
	case FormatHTML:
		return renderHTML(w, r)
	case FormatPDF:
		return renderPDF(w, r)
	case FormatText:
		return renderText(w, r)
	}
	return fmt.Errorf("%w: %q", sharedErrors.ErrInvalidFormat, format)
}

func timestampLabel(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

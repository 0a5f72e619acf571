package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

var (
	colorGood   = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorMedium = color.New(color.FgYellow, color.Bold).SprintFunc()
	colorHigh   = color.New(color.FgRed, color.Bold).SprintFunc()
	colorMuted  = color.New(color.FgHiBlack).SprintFunc()
)

func gradeSprint(grade string, a ...any) string {
	switch grade {
	case "good":
		return colorGood(a...)
	case "medium":
		return colorMedium(a...)
	default:
		return colorHigh(a...)
	}
}

func severitySprint(sev scan.Severity, a ...any) string {
	switch sev {
	case scan.SeverityCritical, scan.SeverityHigh:
		return colorHigh(a...)
	case scan.SeverityMedium:
		return colorMedium(a...)
	case scan.SeverityLow:
		return fmt.Sprint(a...)
	}
	return colorMuted(a...)
}

// renderText prints the terminal summary. Colour output follows
// color.NoColor, which fatih/color disables automatically off a TTY.
func renderText(w io.Writer, r Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Target:   %s\n", r.Target)
	if r.ScanID != "" {
		fmt.Fprintf(&b, "Scan ID:  %s\n", r.ScanID)
	}
	fmt.Fprintf(&b, "Scanned:  %s", timestampLabel(r.Result.Timestamp))
	if r.CacheHit {
		fmt.Fprintf(&b, " %s", colorMuted("(cached)"))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Overall:  %s\n\n", gradeSprint(r.Grade(), fmt.Sprintf("%d/100", r.Result.OverallScore)))

	sections := r.Sections()
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBE\tSCORE\tFINDINGS\tSTATUS")
	for _, s := range sections {
		status := "ok"
		if s.Error != "" {
			status = "error"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Name, s.Score, len(s.Findings), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range sections {
		if s.Error == "" && len(s.Findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", strings.ToUpper(string(s.Name)))
		if s.Error != "" {
			fmt.Fprintf(&b, "  %s %s\n", colorHigh("error:"), s.Error)
		}
		for _, f := range s.Findings {
			fmt.Fprintf(&b, "  %s %s\n", severitySprint(f.Severity, fmt.Sprintf("[%s]", f.Severity)), f.Description)
			if f.Remediation != "" {
				fmt.Fprintf(&b, "      %s\n", colorMuted("fix: "+f.Remediation))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	scanapp "github.com/khanhnv2901/cybersafe/internal/application/scan"
	"github.com/khanhnv2901/cybersafe/internal/checker"
	"github.com/khanhnv2901/cybersafe/internal/domain/consent"
	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	"github.com/khanhnv2901/cybersafe/internal/report"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

type scanOptions struct {
	active      bool
	consent     bool
	confirm     string
	advancedTLS bool
	ports       []int
	format      string
	output      string
	noCache     bool
	refresh     bool
}

func (s *scanOptions) request(target, operator string) scan.Request {
	return scan.Request{
		TargetURL:         target,
		ActiveRequested:   s.active,
		ConsentConfirmed:  s.consent,
		TypedConfirmation: s.confirm,
		AdvancedTLS:       s.advancedTLS,
		Ports:             s.ports,
		Refresh:           s.refresh,
		Operator:          operator,
	}
}

func formatHelp() string {
	names := make([]string, len(report.Formats))
	for i, f := range report.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, "|")
}

func newScanCmd(root *rootOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Scan one website and print its security report",
		Long: `Run the passive checks (headers, TLS, CORS, HTTP methods) against a target.

Add --active --consent --confirm <domain> to also scan common ports. The
confirmation must equal the target's host name exactly; a mismatch aborts
the scan before any request is sent.`,
		Example: `  cybersafe scan example.com
  cybersafe scan https://example.com --format html --output report.html
  cybersafe scan example.com --active --consent --confirm example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			if format.Binary() && opts.output == "" {
				return &OutputRequiredError{Format: string(format)}
			}

			ctx := cmd.Context()
			container, err := root.newContainer(ctx, opts.noCache)
			if err != nil {
				return err
			}
			defer root.closeContainer(container)
			defer root.flushMetrics(container)

			target := args[0]
			outcome, err := container.ScanService.Scan(ctx, opts.request(target, root.app.Operator))
			if err != nil {
				if errors.Is(err, sharedErrors.ErrConsentMismatch) {
					return consentMismatch(target, opts.confirm)
				}
				return err
			}

			errOut := cmd.ErrOrStderr()
			switch outcome.Decision.Outcome {
			case consent.OutcomeConsentMissing:
				fmt.Fprintf(errOut, "%s active scan requested without --consent; only passive checks were run\n", colorWarn("Warning:"))
			case consent.OutcomeGranted:
				fmt.Fprintf(errOut, "%s active port scan authorized for %s\n", colorInfo("Info:"), outcome.Target.Host)
			}

			path, err := writeReport(cmd.OutOrStdout(), format, reportFor(outcome, root.app.Operator), opts.output)
			if err != nil {
				return err
			}
			if path != "" {
				fmt.Fprintf(errOut, "%s report written to %s\n", colorSuccess("OK"), path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.active, "active", false, "also run the active port scan (requires --consent and --confirm)")
	flags.BoolVar(&opts.consent, "consent", false, "confirm you own the target or are authorized to scan it")
	flags.StringVar(&opts.confirm, "confirm", "", "type the target's domain to authorize the active scan")
	flags.BoolVar(&opts.advancedTLS, "advanced-tls", false, "enumerate every TLS protocol version the server accepts")
	flags.IntSliceVar(&opts.ports, "ports", nil, "candidate ports for the active scan (default from config)")
	flags.StringVarP(&opts.format, "format", "f", string(report.FormatText), "report format: "+formatHelp())
	flags.StringVar(&opts.output, "output", "", "write the report to this file instead of stdout")
	flags.BoolVar(&opts.noCache, "no-cache", false, "neither read nor store cached results")
	flags.BoolVar(&opts.refresh, "refresh", false, "ignore any cached result but store the new one")
	return cmd
}

func consentMismatch(target, typed string) error {
	expected := target
	if info, err := checker.NormalizeTarget(target); err == nil {
		expected = info.ConfirmationDomain()
	}
	return &ConsentMismatchError{Typed: typed, Expected: expected}
}

func reportFor(outcome *scanapp.Outcome, operator string) report.Report {
	return report.Report{
		ScanID:      outcome.ScanID,
		Target:      outcome.Target.FullURL,
		Operator:    operator,
		CacheHit:    outcome.CacheHit,
		GeneratedAt: time.Now().UTC(),
		Result:      outcome.Result,
	}
}

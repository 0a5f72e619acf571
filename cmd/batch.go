package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	scanapp "github.com/khanhnv2901/cybersafe/internal/application/scan"
	"github.com/khanhnv2901/cybersafe/internal/checker"
	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	"github.com/khanhnv2901/cybersafe/internal/report"
	"github.com/khanhnv2901/cybersafe/internal/scoring"
	"github.com/khanhnv2901/cybersafe/internal/shared/security"
)

type batchOptions struct {
	file        string
	concurrency int
	rateLimit   int
	timeout     time.Duration
	format      string
	outputDir   string
	reportFmt   string
	advancedTLS bool
	noCache     bool
	refresh     bool
	progress    bool
}

// batchEntry is one line of the batch summary.
type batchEntry struct {
	Target   string           `json:"target"`
	ScanID   string           `json:"scan_id,omitempty"`
	CacheHit bool             `json:"cache_hit"`
	Result   *scan.ScanResult `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run passive scans against every target listed in a file",
		Long: `Scan many targets with bounded concurrency and a global rate limit.

The targets file holds one target per line; blank lines and lines starting
with # are ignored. Use "-" to read targets from stdin. Batch scans are
always passive.`,
		Example: `  cybersafe batch --file targets.txt
  cybersafe batch --file targets.txt --concurrency 8 --rate-limit 4 --format json
  cybersafe batch --file targets.txt --output-dir reports --report-format html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.app.Config
			flags := cmd.Flags()
			applyIntDefault(flags, "concurrency", cfg.Batch.Concurrency, func(v int) { opts.concurrency = v })
			applyIntDefault(flags, "rate-limit", cfg.Batch.RateLimit, func(v int) { opts.rateLimit = v })
			applyDurationDefault(flags, "timeout", cfg.Batch.Timeout, func(v time.Duration) { opts.timeout = v })

			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unsupported batch format %q (use text or json)", opts.format)
			}
			var reportFormat report.Format
			if opts.outputDir != "" {
				f, err := report.ParseFormat(opts.reportFmt)
				if err != nil {
					return err
				}
				reportFormat = f
			}

			targets, err := loadTargets(cmd.InOrStdin(), opts.file)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no targets found in %s", opts.file)
			}

			ctx := cmd.Context()
			container, err := root.newContainer(ctx, opts.noCache)
			if err != nil {
				return err
			}
			defer root.closeContainer(container)
			defer root.flushMetrics(container)

			reqs := make([]scan.Request, len(targets))
			for i, t := range targets {
				reqs[i] = scan.Request{
					TargetURL:   t,
					AdvancedTLS: opts.advancedTLS,
					Refresh:     opts.refresh,
					Operator:    root.app.Operator,
				}
			}

			runner := &scanapp.BatchRunner{
				Concurrency: opts.concurrency,
				RateLimit:   opts.rateLimit,
				Timeout:     opts.timeout,
			}
			if opts.progress {
				printer := newProgressPrinter(cmd.ErrOrStderr(), len(reqs), "batch")
				runner.OnDone = func(item scanapp.BatchItem) {
					var seconds float64
					if item.Outcome != nil {
						seconds = item.Outcome.Duration.Seconds()
					}
					printer.Increment(item.Err == nil, seconds)
				}
				printer.Start()
				defer printer.Stop()
			}

			root.app.Logger.Infow("batch started", "targets", len(reqs), "concurrency", opts.concurrency, "rate_limit", opts.rateLimit)
			items := runner.Run(ctx, container.ScanService, reqs)

			if opts.outputDir != "" {
				if err := writeBatchReports(opts.outputDir, reportFormat, items, root.app.Operator); err != nil {
					return err
				}
			}

			entries := summarizeBatch(items)
			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return printBatchTable(cmd.OutOrStdout(), entries)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.file, "file", "", "file with one target per line (- for stdin)")
	flags.IntVar(&opts.concurrency, "concurrency", defaultBatchConcurrency, "maximum concurrent scans")
	flags.IntVar(&opts.rateLimit, "rate-limit", defaultBatchRateLimit, "scans started per second (0 = unlimited)")
	flags.DurationVar(&opts.timeout, "timeout", defaultBatchTimeout, "timeout for each scan")
	flags.StringVarP(&opts.format, "format", "f", "text", "summary format: text|json")
	flags.StringVar(&opts.outputDir, "output-dir", "", "also write one report per target into this directory")
	flags.StringVar(&opts.reportFmt, "report-format", string(report.FormatHTML), "per-target report format: "+formatHelp())
	flags.BoolVar(&opts.advancedTLS, "advanced-tls", false, "enumerate every TLS protocol version each server accepts")
	flags.BoolVar(&opts.noCache, "no-cache", false, "neither read nor store cached results")
	flags.BoolVar(&opts.refresh, "refresh", false, "ignore cached results but store the new ones")
	flags.BoolVar(&opts.progress, "progress", false, "show a progress line on stderr")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadTargets(stdin io.Reader, path string) ([]string, error) {
	if path == "-" {
		return readTargets(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()
	return readTargets(f)
}

// readTargets returns the distinct targets in r, in file order.
func readTargets(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	targets := []string{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return targets, nil
}

func summarizeBatch(items []scanapp.BatchItem) []batchEntry {
	entries := make([]batchEntry, len(items))
	for i, item := range items {
		entry := batchEntry{Target: item.Request.TargetURL}
		if item.Err != nil {
			entry.Error = item.Err.Error()
		}
		if item.Outcome != nil {
			entry.ScanID = item.Outcome.ScanID
			entry.CacheHit = item.Outcome.CacheHit
			result := item.Outcome.Result
			entry.Result = &result
		}
		entries[i] = entry
	}
	return entries
}

func printBatchTable(out io.Writer, entries []batchEntry) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSCORE\tGRADE\tFAILED PROBES\tSTATUS")

	failed := 0
	for _, e := range entries {
		if e.Result == nil {
			failed++
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s %s\n", e.Target, formatStatusWithColor("error"), e.Error)
			continue
		}
		probeErrors := []string{}
		for _, name := range e.Result.Names() {
			if e.Result.Probes[name].HasError() {
				probeErrors = append(probeErrors, string(name))
			}
		}
		errCol := "-"
		if len(probeErrors) > 0 {
			errCol = strings.Join(probeErrors, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Target, formatScoreWithColor(e.Result.OverallScore), scoring.Grade(e.Result.OverallScore), errCol, formatStatusWithColor("ok"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d targets, %d failed\n", len(entries), failed)
	return nil
}

// writeBatchReports writes one report per successful scan, named after the host.
func writeBatchReports(dir string, format report.Format, items []scanapp.BatchItem, operator string) error {
	for _, item := range items {
		if item.Outcome == nil {
			continue
		}
		name := reportFileName(item.Outcome.Target, format)
		path, err := security.ResolveWithin(dir, name)
		if err != nil {
			return err
		}
		if _, err := writeReport(io.Discard, format, reportFor(item.Outcome, operator), path); err != nil {
			return fmt.Errorf("write report for %s: %w", item.Request.TargetURL, err)
		}
	}
	return nil
}

func reportFileName(info *checker.TargetInfo, format report.Format) string {
	base := info.Host
	if info.Port != "" {
		base += "_" + info.Port
	}
	base = strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(base)
	return fmt.Sprintf("%s.%s", base, format.Extension())
}

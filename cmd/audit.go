package cmd

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/cybersafe/internal/domain/audit"
	auditlog "github.com/khanhnv2901/cybersafe/internal/infrastructure/audit"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// auditHeader is the CSV export header.
var auditHeader = []string{
	"timestamp",
	"scan_id",
	"operator",
	"target",
	"host",
	"consent_outcome",
	"active_ran",
	"advanced_tls",
	"cache_hit",
	"overall_score",
	"duration_seconds",
	"hash",
}

func newAuditCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the scan audit log",
	}
	cmd.AddCommand(newAuditListCmd(root), newAuditVerifyCmd(root))
	return cmd
}

func openAuditLog(root *rootOptions) (*auditlog.Log, error) {
	return auditlog.NewLog(root.app.Config.AuditPath)
}

func newAuditListCmd(root *rootOptions) *cobra.Command {
	var format string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded scans, most recent last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := openAuditLog(root)
			if err != nil {
				return err
			}
			records, err := log.List(cmd.Context())
			if errors.Is(err, sharedErrors.ErrAuditLogNotFound) {
				fmt.Fprintln(cmd.ErrOrStderr(), "No scans recorded yet.")
				return nil
			}
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}

			out := cmd.OutOrStdout()
			switch format {
			case "table":
				return printAuditTable(out, records)
			case "csv":
				return writeAuditCSV(out, records)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return fmt.Errorf("unsupported audit format %q (use table, csv or json)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table|csv|json")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last N records (0 = all)")
	return cmd
}

func newAuditVerifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the audit log hash chain for tampering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := openAuditLog(root)
			if err != nil {
				return err
			}
			if err := log.Verify(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", formatStatusWithColor("failed"), log.Path())
				return err
			}
			records, err := log.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d records in %s\n", formatStatusWithColor("verified"), len(records), log.Path())
			return nil
		},
	}
}

func printAuditTable(out io.Writer, records []*audit.Record) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSCAN ID\tHOST\tSCORE\tCONSENT\tCACHED\tOPERATOR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			r.Timestamp.Format(time.RFC3339),
			r.ScanID,
			r.Host,
			formatScoreWithColor(r.OverallScore),
			r.ConsentOutcome,
			r.CacheHit,
			r.Operator,
		)
	}
	return tw.Flush()
}

func writeAuditCSV(out io.Writer, records []*audit.Record) error {
	writer := csv.NewWriter(out)
	if err := writer.Write(auditHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Timestamp.Format(time.RFC3339),
			r.ScanID,
			r.Operator,
			r.Target,
			r.Host,
			r.ConsentOutcome,
			strconv.FormatBool(r.ActiveRan),
			strconv.FormatBool(r.AdvancedTLS),
			strconv.FormatBool(r.CacheHit),
			strconv.Itoa(r.OverallScore),
			fmt.Sprintf("%.3f", r.DurationSeconds),
			r.Hash,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

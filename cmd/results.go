package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored extraction results",
	Long: `Lists stored results, newest first.

Examples:
  promo-scout results --status needs_review
  promo-scout results --enhanced true --format json
  promo-scout results --limit 1000 --format csv > results.csv`,
	RunE: runResults,
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List escalation failure log entries",
	RunE:  runFailures,
}

func init() {
	f := resultsCmd.Flags()
	f.String("status", "", "filter by status (accepted, needs_review, rejected)")
	f.String("enhanced", "", "filter by secondary scorer involvement (true or false)")
	f.Int("limit", 100, "maximum results")
	f.Int("offset", 0, "skip this many results")
	f.String("format", "table", "output format: table, json, or csv")
	rootCmd.AddCommand(resultsCmd)

	ff := failuresCmd.Flags()
	ff.String("kind", "", "filter by failure kind")
	ff.Bool("due", false, "only entries due for retry")
	ff.Int("limit", 100, "maximum entries")
	ff.Bool("json", false, "print entries as JSON")
	rootCmd.AddCommand(failuresCmd)
}

func runResults(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	filter, err := resultFilterFromFlags(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")

	env, err := initEnv(ctx, cfg, envOptions{mode: "results", store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	results, err := env.Backend.Sink.ListResults(ctx, filter)
	if err != nil {
		return eris.Wrap(err, "results list")
	}
	return writeResults(cmd.OutOrStdout(), results, format)
}

func resultFilterFromFlags(cmd *cobra.Command) (store.ResultFilter, error) {
	var filter store.ResultFilter

	status, _ := cmd.Flags().GetString("status")
	if status != "" {
		filter.Status = model.Status(status)
		if !filter.Status.Valid() {
			return filter, eris.Errorf("unknown status %q", status)
		}
	}

	enhanced, _ := cmd.Flags().GetString("enhanced")
	if enhanced != "" {
		v, err := strconv.ParseBool(enhanced)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --enhanced %q", enhanced)
		}
		filter.Enhanced = &v
	}

	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.Offset, _ = cmd.Flags().GetInt("offset")
	return filter, nil
}

func writeResults(w io.Writer, results []model.ExtractionResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "csv":
		return writeResultsCSV(w, results)
	case "table", "":
		formatResultsTable(w, results)
		return nil
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

func formatResultsTable(w io.Writer, results []model.ExtractionResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tCONFIDENCE\tENHANCED\tCODES\tLINKS\tPROCESSED")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%t\t%s\t%d\t%s\n",
			r.SourceID, r.Status, r.Confidence, r.EnhancedByFallback,
			orNone(r.Candidates.CodeValues()), len(r.Candidates.Links),
			r.ProcessedAt.Format(time.RFC3339),
		)
	}
	_ = tw.Flush()
}

var resultsCSVHeader = []string{
	"source_id", "status", "confidence", "enhanced_by_fallback", "codes", "links",
	"percent_off", "flat_discount", "recommendation", "reasoning", "processed_at",
}

func writeResultsCSV(w io.Writer, results []model.ExtractionResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultsCSVHeader); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for _, r := range results {
		row := []string{
			r.SourceID,
			string(r.Status),
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			strconv.FormatBool(r.EnhancedByFallback),
			strings.Join(r.Candidates.CodeValues(), " "),
			strings.Join(r.Candidates.LinkValues(), " "),
			strings.Join(formatAmounts(r.Candidates.PercentOff, "%g"), " "),
			strings.Join(formatAmounts(r.Candidates.FlatDiscount, "%g"), " "),
			string(r.Recommendation),
			r.Reasoning,
			r.ProcessedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "write csv row %s", r.SourceID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush csv")
}

func runFailures(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	env, err := initEnv(ctx, cfg, envOptions{mode: "results", store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	kind, _ := cmd.Flags().GetString("kind")
	due, _ := cmd.Flags().GetBool("due")
	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := env.Backend.Failures.ListFailures(ctx, model.FailureFilter{
		Kind:    kind,
		DueOnly: due,
		Now:     time.Now().UTC(),
		Limit:   limit,
	})
	if err != nil {
		return eris.Wrap(err, "failures list")
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	formatFailuresTable(cmd.OutOrStdout(), entries)
	return nil
}

func formatFailuresTable(w io.Writer, entries []model.EscalationFailure) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No failures found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tKIND\tRETRIES\tNEXT RETRY\tERROR")
	for _, f := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			f.ID, f.SourceID, f.Kind, f.RetryCount, f.MaxRetries,
			f.NextRetryAt.Format(time.RFC3339), truncate(f.Error, 60),
		)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

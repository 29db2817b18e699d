package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/promo-scout/internal/confidence"
	"github.com/sells-group/promo-scout/internal/extract"
	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Extract and score promo codes from one piece of text",
	Long: `Runs a single item through extraction, scoring and escalation and prints the result.

Text comes from the argument, --file, or stdin when neither is given.

Examples:
  promo-scout extract "Use code SAVE20 to get 20% off your order!"
  promo-scout extract --file transcript.txt --source-id vid-123 --source-key chan-42 --explain
  cat description.txt | promo-scout extract --json --save`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.String("file", "", "read text from a file")
	f.String("source-id", "cli", "source item ID")
	f.String("source-key", "", "overlay key (channel or publisher ID)")
	f.Bool("json", false, "print the result as JSON")
	f.Bool("explain", false, "include the score breakdown, rejections and diagnostics")
	f.Bool("save", false, "write the result to the configured store")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	text, err := readExtractText(cmd, args)
	if err != nil {
		return err
	}

	save, _ := cmd.Flags().GetBool("save")
	mode := "extract"
	if save {
		mode = "batch"
	}
	env, err := initEnv(ctx, cfg, envOptions{mode: mode, store: save})
	if err != nil {
		return err
	}
	defer env.Close()

	sourceID, _ := cmd.Flags().GetString("source-id")
	sourceKey, _ := cmd.Flags().GetString("source-key")
	out, err := env.Processor.Process(ctx, pipeline.Item{SourceID: sourceID, Text: text, SourceKey: sourceKey})
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	explain, _ := cmd.Flags().GetBool("explain")
	if asJSON {
		return writeOutcomeJSON(cmd.OutOrStdout(), out, explain)
	}
	writeOutcomeText(cmd.OutOrStdout(), out, explain)
	return nil
}

func readExtractText(cmd *cobra.Command, args []string) (string, error) {
	path, _ := cmd.Flags().GetString("file")
	switch {
	case len(args) == 1 && path != "":
		return "", eris.New("pass text as an argument or --file, not both")
	case len(args) == 1:
		return args[0], nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", path)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", eris.Wrap(err, "read stdin")
		}
		return string(data), nil
	}
}

// explainedOutcome is the JSON shape printed with --explain.
type explainedOutcome struct {
	Result      model.ExtractionResult `json:"result"`
	Breakdown   *confidence.Breakdown  `json:"breakdown,omitempty"`
	Rejected    []rejection            `json:"rejected,omitempty"`
	Diagnostics []extract.Diagnostic   `json:"diagnostics,omitempty"`
	Escalation  *escalationInfo        `json:"escalation,omitempty"`
}

type rejection struct {
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type escalationInfo struct {
	Attempted bool   `json:"attempted"`
	Error     string `json:"error,omitempty"`
}

func writeOutcomeJSON(w io.Writer, out pipeline.Outcome, explain bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if !explain {
		return enc.Encode(out.Result)
	}

	v := explainedOutcome{
		Result:      out.Result,
		Breakdown:   &out.Breakdown,
		Diagnostics: out.Extraction.Diagnostics,
	}
	for _, r := range out.Extraction.Rejected {
		v.Rejected = append(v.Rejected, rejection{Value: r.Candidate.Value, Reason: string(r.Reason)})
	}
	if out.Decision.Attempted {
		v.Escalation = &escalationInfo{Attempted: true}
		if out.Decision.Err != nil {
			v.Escalation.Error = out.Decision.Err.Error()
		}
	}
	return enc.Encode(v)
}

func writeOutcomeText(w io.Writer, out pipeline.Outcome, explain bool) {
	r := out.Result
	fmt.Fprintf(w, "source:     %s\n", r.SourceID)
	fmt.Fprintf(w, "status:     %s\n", r.Status)
	fmt.Fprintf(w, "confidence: %.4f", r.Confidence)
	if r.EnhancedByFallback {
		fmt.Fprint(w, " (secondary scorer)")
	}
	fmt.Fprintln(w)

	codes := make([]string, 0, len(r.Candidates.Codes))
	for _, c := range r.Candidates.Codes {
		codes = append(codes, fmt.Sprintf("%s [%s]", c.Value, c.Tier))
	}
	fmt.Fprintf(w, "codes:      %s\n", orNone(codes))
	fmt.Fprintf(w, "links:      %s\n", orNone(r.Candidates.LinkValues()))
	fmt.Fprintf(w, "percent:    %s\n", orNone(formatAmounts(r.Candidates.PercentOff, "%g%%")))
	fmt.Fprintf(w, "flat:       %s\n", orNone(formatAmounts(r.Candidates.FlatDiscount, "%g")))
	if r.Reasoning != "" {
		fmt.Fprintf(w, "reasoning:  %s (%s)\n", r.Reasoning, r.Recommendation)
	}
	if out.Decision.Err != nil {
		fmt.Fprintf(w, "escalation: failed: %v\n", out.Decision.Err)
	}

	if !explain {
		return
	}
	b := out.Breakdown
	fmt.Fprintln(w, "\nbreakdown:")
	fmt.Fprintf(w, "  code %.4f  context %.4f  sponsor %.4f  link %.4f  coherence %.4f\n",
		b.Code, b.Context, b.Sponsor, b.Link, b.Coherence)
	fmt.Fprintf(w, "  penalties %.4f (spam %.4f, suspicious %.4f, echo %.4f)\n",
		b.Penalties, b.SpamPenalty, b.SuspiciousPenalty, b.EchoPenalty)
	fmt.Fprintf(w, "  heuristic confidence %.4f\n", b.Confidence)
	for _, n := range b.Notes {
		fmt.Fprintf(w, "  note: %s\n", n)
	}
	for _, rj := range out.Extraction.Rejected {
		fmt.Fprintf(w, "rejected:   %s (%s)\n", rj.Candidate.Value, rj.Reason)
	}
	for _, d := range out.Extraction.Diagnostics {
		fmt.Fprintf(w, "diagnostic: %s\n", d)
	}
}

func formatAmounts(vals []float64, format string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fmt.Sprintf(format, v)
	}
	return out
}

func orNone(vals []string) string {
	if len(vals) == 0 {
		return "-"
	}
	return strings.Join(vals, ", ")
}

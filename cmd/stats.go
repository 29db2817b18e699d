package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/promo-scout/internal/monitoring"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show result dispositions and failure log depth",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, envOptions{mode: "results", store: true})
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Collector().Collect(ctx)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		formatSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statsCmd)
}

func formatSnapshot(w io.Writer, s *monitoring.MetricsSnapshot) {
	fmt.Fprintf(w, "results:        %d\n", s.ResultsTotal)
	fmt.Fprintf(w, "  accepted:     %d\n", s.Accepted)
	fmt.Fprintf(w, "  needs review: %d (%.1f%%)\n", s.NeedsReview, s.ReviewRate*100)
	fmt.Fprintf(w, "  rejected:     %d\n", s.Rejected)
	fmt.Fprintf(w, "  enhanced:     %d\n", s.Enhanced)
	fmt.Fprintf(w, "avg confidence: %.4f\n", s.AvgConfidence)
	fmt.Fprintf(w, "failure log:    %d (%d due)\n", s.FailureDepth, s.FailuresDue)
	if s.BreakerState != "" {
		fmt.Fprintf(w, "breaker:        %s\n", s.BreakerState)
	}
}

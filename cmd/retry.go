package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/promo-scout/internal/pipeline"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run failed escalations from the failure log",
	Long: `Drains due entries from the escalation failure log. A recovered entry upgrades
the stored result and is removed; an entry that fails again is rescheduled with
exponential backoff until it runs out of retries.

Examples:
  promo-scout retry
  promo-scout retry --kind timeout --limit 50
  promo-scout retry --transient-only`,
	RunE: runRetry,
}

func init() {
	f := retryCmd.Flags()
	f.Int("limit", 100, "maximum entries to retry")
	f.String("kind", "", "only retry this failure kind (transport, timeout, parse, circuit_open, canceled)")
	f.Bool("transient-only", false, "skip entries that are not expected to clear")
	f.Int("concurrency", 0, "entries in flight (default escalation.concurrency)")
	f.Bool("json", false, "print stats as JSON")
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Escalation.Enabled {
		return eris.New("retry: escalation.enabled is false, no secondary scorer to retry with")
	}

	env, err := initEnv(ctx, cfg, envOptions{mode: "retry", store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	kind, _ := cmd.Flags().GetString("kind")
	transientOnly, _ := cmd.Flags().GetBool("transient-only")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = cfg.Escalation.Concurrency
	}

	r := pipeline.NewRetrier(env.Controller, env.Backend.Failures, env.Backend.Sink)
	stats, err := r.Run(ctx, pipeline.RetryOptions{
		Limit:         limit,
		Kind:          kind,
		TransientOnly: transientOnly,
		Concurrency:   concurrency,
		Backoff:       time.Duration(cfg.Failures.RetryBackoffMins) * time.Minute,
	})
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "due %d: %d recovered, %d rescheduled, %d exhausted, %d skipped, %d errors\n",
		stats.Due, stats.Recovered, stats.Rescheduled, stats.Exhausted, stats.Skipped, stats.Errors)
	return nil
}

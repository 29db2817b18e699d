package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/promo-scout/internal/input"
	"github.com/sells-group/promo-scout/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process a file of source items",
	Long: `Reads items from a CSV, TSV, XLSX, JSON or JSON lines file and processes them
concurrently. Each item is independent; one failure never stops the batch.

Recognized columns: source_id (or id, video_id, post_id), source_key (or
channel_id, channel, publisher) and any of text, title, description,
transcript, body, caption, which are joined in that order.

Examples:
  promo-scout batch --input videos.csv
  promo-scout batch --input posts.jsonl --concurrency 16 --skip-existing`,
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.String("input", "", "input file (required)")
	f.Int("concurrency", 0, "items in flight (default from config)")
	f.Int("limit", 0, "process at most this many items (0 = all)")
	f.Bool("skip-existing", false, "skip items that already have a stored result")
	f.Bool("json", false, "print batch stats as JSON")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, _ := cmd.Flags().GetString("input")
	limit, _ := cmd.Flags().GetInt("limit")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = cfg.Batch.MaxConcurrentItems
	}
	skip, _ := cmd.Flags().GetBool("skip-existing")

	items, err := input.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	log := zap.L().With(zap.String("command", "batch"))
	var done atomic.Int64
	total := len(items)
	observer := func(o pipeline.Outcome) {
		n := done.Add(1)
		if o.Err != nil {
			log.Error("item failed", zap.String("source_id", o.Item.SourceID), zap.Error(o.Err))
		}
		if n%100 == 0 || int(n) == total {
			log.Info("batch progress", zap.Int64("done", n), zap.Int("total", total))
		}
	}

	env, err := initEnv(ctx, cfg, envOptions{mode: "batch", store: true, skipExisting: skip, observer: observer})
	if err != nil {
		return err
	}
	defer env.Close()

	log.Info("starting batch", zap.String("input", path), zap.Int("items", total), zap.Int("concurrency", concurrency))

	outcomes := env.Processor.ProcessBatch(ctx, items, concurrency)
	stats := pipeline.Stats(outcomes)

	log.Info("batch complete",
		zap.Int("total", stats.Total),
		zap.Int("accepted", stats.Accepted),
		zap.Int("needs_review", stats.NeedsReview),
		zap.Int("rejected", stats.Rejected),
		zap.Int("enhanced", stats.Enhanced),
		zap.Int("escalation_errors", stats.EscalationErrors),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "processed %d items: %d accepted, %d needs review, %d rejected\n",
		stats.Total-stats.Skipped-stats.Failed, stats.Accepted, stats.NeedsReview, stats.Rejected)
	fmt.Fprintf(w, "escalated %d (%d enhanced, %d fell back), skipped %d, failed %d\n",
		stats.Escalated, stats.Enhanced, stats.EscalationErrors, stats.Skipped, stats.Failed)
	return nil
}

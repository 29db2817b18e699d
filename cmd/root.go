package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/promo-scout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "promo-scout",
	Short: "Promo code extraction and confidence scoring",
	Long: "Extracts promo codes, referral links and discounts from video transcripts, " +
		"descriptions and social posts, scores them, and escalates low-confidence results to an LLM reviewer.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

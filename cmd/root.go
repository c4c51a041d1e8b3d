package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadglass/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadglass",
	Short: "Lead perception and qualification pipeline",
	Long:  "Scores inbound leads through calibrated perception lenses, routes them by tier, tracks outcomes, mines failures for learnings, and runs classic-vs-experimental scoring trials.",
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

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadglass/internal/ledger"
	"github.com/sells-group/leadglass/internal/model"
	"github.com/sells-group/leadglass/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show qualification and conversion statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().String("branch", "", "restrict to one trial branch")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	branch, _ := cmd.Flags().GetString("branch")

	quals, err := env.Store.ListQualifications(ctx, store.QualificationFilter{
		Branch: branch,
		Limit:  10000,
	})
	if err != nil {
		return err
	}

	var hot, warm, cold, disq int
	for i := range quals {
		switch quals[i].Tier {
		case model.TierHot:
			hot++
		case model.TierWarm:
			warm++
		case model.TierCold:
			cold++
		case model.TierDisqualified:
			disq++
		}
	}
	total := len(quals)

	fmt.Printf("Standard lens: %s\n\n", env.Standard.Lens)
	fmt.Printf("Qualifications: %d\n", total)
	if total > 0 {
		fmt.Printf("  hot:          %4d (%.1f%%)\n", hot, pct(hot, total))
		fmt.Printf("  warm:         %4d (%.1f%%)\n", warm, pct(warm, total))
		fmt.Printf("  cold:         %4d (%.1f%%)\n", cold, pct(cold, total))
		fmt.Printf("  disqualified: %4d (%.1f%%)\n", disq, pct(disq, total))
		fmt.Printf("  qualification rate: %.1f%%\n", pct(total-disq, total))
	}

	outcomes, err := env.Store.ListOutcomes(ctx, "")
	if err != nil {
		return err
	}
	if len(outcomes) > 0 {
		fmt.Println()
		printMetrics(ledger.New(outcomes...).Metrics(branch))
	}

	return nil
}

func pct(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

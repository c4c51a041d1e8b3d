package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadglass/internal/graveyard"
	"github.com/sells-group/leadglass/internal/ledger"
	"github.com/sells-group/leadglass/internal/model"
)

var graveyardCmd = &cobra.Command{
	Use:   "graveyard",
	Short: "Mine failed leads for learnings and failure patterns",
}

var graveyardAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect failure patterns across all buried leads",
	Long: `Re-runs pattern analysis over the full failure history: repeated
competitor losses, tiers going dark, weak qualification criteria, and
recurring learning categories. Detected patterns are upserted by type,
so each run refreshes frequencies and priorities.`,
	RunE: runGraveyardAnalyze,
}

var graveyardNutrientsCmd = &cobra.Command{
	Use:   "nutrients",
	Short: "List extracted learnings",
	RunE:  runGraveyardNutrients,
}

var graveyardApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Mark a lead's nutrients as applied to the current standard",
	RunE:  runGraveyardApply,
}

func init() {
	graveyardNutrientsCmd.Flags().String("category", "", "filter by category")
	graveyardNutrientsCmd.Flags().Bool("critical", false, "only unapplied critical nutrients")
	graveyardApplyCmd.Flags().String("lead", "", "lead id (required)")

	graveyardCmd.AddCommand(graveyardAnalyzeCmd)
	graveyardCmd.AddCommand(graveyardNutrientsCmd)
	graveyardCmd.AddCommand(graveyardApplyCmd)
	rootCmd.AddCommand(graveyardCmd)
}

func runGraveyardAnalyze(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	outcomes, err := env.Store.ListOutcomes(ctx, "")
	if err != nil {
		return err
	}
	nutrients, err := env.Store.ListNutrients(ctx, "")
	if err != nil {
		return err
	}

	feed := ledger.New(outcomes...).FailureFeed()
	patterns := graveyard.NewMiner(feed, nutrients).Analyze()
	if err := env.Store.SavePatterns(ctx, patterns); err != nil {
		return err
	}

	if len(patterns) == 0 {
		fmt.Printf("No patterns detected across %d buried lead(s).\n", len(feed))
		return nil
	}

	fmt.Printf("%-40s %5s %-9s %-13s %s\n", "Pattern", "Freq", "Priority", "Primary Tier", "Recommended Action")
	fmt.Println(strings.Repeat("-", 130))
	for _, p := range patterns {
		fmt.Printf("%-40s %5d %-9s %-13s %s\n",
			p.Type, p.Frequency, p.Priority, p.PrimaryTier, p.RecommendedAction)
	}
	return nil
}

func runGraveyardNutrients(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	category, _ := cmd.Flags().GetString("category")
	criticalOnly, _ := cmd.Flags().GetBool("critical")

	nutrients, err := env.Store.ListNutrients(ctx, model.NutrientCategory(category))
	if err != nil {
		return err
	}

	if criticalOnly {
		miner := graveyard.NewMiner(nil, nutrients)
		nutrients = miner.CriticalNutrients()
	}

	if len(nutrients) == 0 {
		fmt.Println("No nutrients found.")
		return nil
	}

	fmt.Printf("%-36s %-13s %-9s %-8s %s\n", "Lead ID", "Category", "Severity", "Applied", "Lesson")
	fmt.Println(strings.Repeat("-", 120))
	for _, n := range nutrients {
		fmt.Printf("%-36s %-13s %-9s %-8v %s\n",
			n.LeadID, n.Category, n.Severity, n.AppliedToStandard, n.Lesson)
	}
	return nil
}

func runGraveyardApply(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	leadID, _ := cmd.Flags().GetString("lead")
	if leadID == "" {
		return fmt.Errorf("graveyard apply: --lead is required")
	}

	n, err := env.Store.MarkNutrientsApplied(ctx, leadID)
	if err != nil {
		return err
	}
	fmt.Printf("Marked %d nutrient(s) applied for %s\n", n, leadID)
	return nil
}

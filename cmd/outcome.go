package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadglass/internal/graveyard"
	"github.com/sells-group/leadglass/internal/ledger"
	"github.com/sells-group/leadglass/internal/model"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Record terminal lead outcomes and view conversion metrics",
}

var outcomeRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the terminal result for a lead",
	Long: `Records a won, lost, or disqualified outcome. Failed outcomes are
buried in the graveyard immediately: their learnings are extracted as
categorized nutrients and persisted for pattern analysis.

Examples:
  outcome record --lead lead-1 --company "Acme Corp" --type won \
    --deal-value 85000 --cost 4000 --tier hot

  outcome record --lead lead-2 --company Globex --type lost_competitor \
    --competitor "RivalSoft" --lesson "Engage security team earlier" \
    --went-wrong "No champion" --went-wrong "Price objection too late"`,
	RunE: runOutcomeRecord,
}

var outcomeMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show conversion, revenue, and timeline metrics",
	RunE:  runOutcomeMetrics,
}

func init() {
	f := outcomeRecordCmd.Flags()
	f.String("lead", "", "lead id (required)")
	f.String("company", "", "company name")
	f.String("type", "", "outcome type: won, lost_competitor, lost_no_budget, lost_no_decision, lost_timing, lost_dark, disqualified, nurture_ongoing")
	f.Float64("deal-value", 0, "closed deal value")
	f.Float64("expected-value", 0, "expected deal value at qualification time")
	f.Float64("cost", 0, "cost to acquire")
	f.String("tier", "", "qualification tier at outcome time")
	f.Float64("coherence", 0, "coherence score at qualification time")
	f.String("branch", "", "trial branch label")
	f.String("competitor", "", "competitor chosen (for lost_competitor)")
	f.String("reason", "", "loss reason")
	f.String("lesson", "", "lesson learned")
	f.StringSlice("went-wrong", nil, "what went wrong (repeatable)")
	f.StringSlice("went-right", nil, "what went right (repeatable)")
	f.String("first-contact", "", "first contact date (YYYY-MM-DD)")

	outcomeMetricsCmd.Flags().String("branch", "", "restrict metrics to one trial branch")

	outcomeCmd.AddCommand(outcomeRecordCmd)
	outcomeCmd.AddCommand(outcomeMetricsCmd)
	rootCmd.AddCommand(outcomeCmd)
}

func runOutcomeRecord(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	leadID, _ := cmd.Flags().GetString("lead")
	outcomeType, _ := cmd.Flags().GetString("type")

	o := model.Outcome{
		LeadID: leadID,
		Type:   model.OutcomeType(outcomeType),
	}
	o.CompanyName, _ = cmd.Flags().GetString("company")
	o.DealValue, _ = cmd.Flags().GetFloat64("deal-value")
	o.ExpectedValue, _ = cmd.Flags().GetFloat64("expected-value")
	o.CostToAcquire, _ = cmd.Flags().GetFloat64("cost")
	o.CoherenceScore, _ = cmd.Flags().GetFloat64("coherence")
	o.TrialBranch, _ = cmd.Flags().GetString("branch")
	o.CompetitorChosen, _ = cmd.Flags().GetString("competitor")
	o.LossReason, _ = cmd.Flags().GetString("reason")
	o.LessonLearned, _ = cmd.Flags().GetString("lesson")
	o.WhatWentWrong, _ = cmd.Flags().GetStringSlice("went-wrong")
	o.WhatWentRight, _ = cmd.Flags().GetStringSlice("went-right")

	if tier, _ := cmd.Flags().GetString("tier"); tier != "" {
		o.Tier = model.Tier(tier)
	}
	if fc, _ := cmd.Flags().GetString("first-contact"); fc != "" {
		t, err := time.Parse("2006-01-02", fc)
		if err != nil {
			return eris.Wrapf(err, "outcome: parse --first-contact %q", fc)
		}
		o.FirstContactAt = &t
	}

	// The ledger validates and defaults timestamps.
	recorded, err := ledger.New().Record(o)
	if err != nil {
		return err
	}
	if err := env.Store.SaveOutcome(ctx, recorded); err != nil {
		return err
	}

	fmt.Printf("Recorded %s outcome for %s (%s)\n", recorded.Type, recorded.CompanyName, recorded.LeadID)

	// Failures go straight to the graveyard.
	if recorded.IsLost() || recorded.IsDisqualified() {
		nutrients := graveyard.NewMiner(nil, nil).Bury(*recorded)
		if err := env.Store.SaveNutrients(ctx, nutrients); err != nil {
			return err
		}
		fmt.Printf("Buried in graveyard: %d nutrient(s) extracted\n", len(nutrients))
		for _, n := range nutrients {
			fmt.Printf("  [%s/%s] %s\n", n.Category, n.Severity, n.Lesson)
		}
	}

	return nil
}

func runOutcomeMetrics(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	branch, _ := cmd.Flags().GetString("branch")

	outcomes, err := env.Store.ListOutcomes(ctx, "")
	if err != nil {
		return err
	}

	m := ledger.New(outcomes...).Metrics(branch)
	printMetrics(m)
	return nil
}

func printMetrics(m ledger.Metrics) {
	if m.TotalOutcomes == 0 {
		fmt.Println("No outcomes recorded.")
		return
	}

	if m.TrialBranch != "" {
		fmt.Printf("Branch:          %s\n", m.TrialBranch)
	}
	fmt.Printf("Total outcomes:  %d\n", m.TotalOutcomes)
	fmt.Printf("Won:             %d\n", m.Won)
	fmt.Printf("Lost:            %d\n", m.Lost)
	fmt.Printf("Disqualified:    %d\n", m.Disqualified)
	fmt.Printf("Conversion rate: %.1f%%\n", m.ConversionRate*100)

	fmt.Println("\nBy tier:")
	for _, tier := range []model.Tier{model.TierHot, model.TierWarm, model.TierCold, model.TierDisqualified} {
		tm := m.ByTier[tier]
		if tm.Total == 0 {
			continue
		}
		fmt.Printf("  %-13s %4d total, %4d won (%.1f%%)\n", tier, tm.Total, tm.Won, tm.ConversionRate*100)
	}

	fmt.Printf("\nRevenue:         $%.2f\n", m.Revenue.Total)
	if m.Won > 0 {
		fmt.Printf("Avg deal size:   $%.2f\n", m.Revenue.AvgDealSize)
	}
	if m.Revenue.TotalCost > 0 {
		fmt.Printf("ROI:             %.2f\n", m.Revenue.ROI)
	}
	if m.Timeline.AvgDaysToClose > 0 {
		fmt.Printf("Avg days to close: %.1f (fastest %d, slowest %d)\n",
			m.Timeline.AvgDaysToClose, m.Timeline.FastestDeal, m.Timeline.SlowestDeal)
	}
}

package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadglass/internal/model"
	"github.com/sells-group/leadglass/internal/trial"
)

var trialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Run classic-vs-experimental scoring trials",
	Long: `Manages A/B trials that pit the current standard scoring
configuration (classic) against an experimental one. Running trials
split qualify traffic between branches; once both branches reach the
minimum sample size the trial can be evaluated and, if the experimental
branch wins with high confidence, promoted to become the new standard.`,
}

var trialCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a trial against the current standard",
	Long: `Examples:
  trial create --name "smb lens test" --lens smb_tech

  trial create --name "authority heavy" --lens enterprise_saas \
    --weights "psi_intent=0.20,rho_authority=0.40,q_urgency=0.20,f_fit=0.20" \
    --split 0.3 --min-sample 100`,
	RunE: runTrialCreate,
}

var trialStartCmd = &cobra.Command{Use: "start <trial-id>", Short: "Start or resume a trial", Args: cobra.ExactArgs(1), RunE: runTrialLifecycle}
var trialPauseCmd = &cobra.Command{Use: "pause <trial-id>", Short: "Pause a running trial", Args: cobra.ExactArgs(1), RunE: runTrialLifecycle}
var trialCompleteCmd = &cobra.Command{Use: "complete <trial-id>", Short: "Complete a trial without promotion", Args: cobra.ExactArgs(1), RunE: runTrialLifecycle}
var trialArchiveCmd = &cobra.Command{Use: "archive <trial-id>", Short: "Archive a trial", Args: cobra.ExactArgs(1), RunE: runTrialLifecycle}

var trialEvaluateCmd = &cobra.Command{
	Use:   "evaluate <trial-id>",
	Short: "Compare branch fitness and record the winner",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrialEvaluate,
}

var trialPromoteCmd = &cobra.Command{
	Use:   "promote <trial-id>",
	Short: "Promote a winning experimental branch to the standard",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrialPromote,
}

var trialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all trials",
	RunE:  runTrialList,
}

var trialStatusCmd = &cobra.Command{
	Use:   "status <trial-id>",
	Short: "Show branch counters and fitness for a trial",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrialStatus,
}

func init() {
	f := trialCreateCmd.Flags()
	f.String("name", "", "trial name (required)")
	f.String("description", "", "what the experiment changes")
	f.String("lens", "", "experimental calibration name (required)")
	f.String("weights", "", "experimental weight overrides, e.g. psi_intent=0.3,rho_authority=0.3")
	f.Float64("authority-threshold", 0, "experimental authority threshold override")
	f.Float64("split", 0, "experimental traffic share (default from config)")
	f.Int("min-sample", 0, "minimum sample size per branch (default from config)")

	trialCmd.AddCommand(trialCreateCmd)
	trialCmd.AddCommand(trialStartCmd)
	trialCmd.AddCommand(trialPauseCmd)
	trialCmd.AddCommand(trialCompleteCmd)
	trialCmd.AddCommand(trialArchiveCmd)
	trialCmd.AddCommand(trialEvaluateCmd)
	trialCmd.AddCommand(trialPromoteCmd)
	trialCmd.AddCommand(trialListCmd)
	trialCmd.AddCommand(trialStatusCmd)
	rootCmd.AddCommand(trialCmd)
}

func runTrialCreate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	name, _ := cmd.Flags().GetString("name")
	lensName, _ := cmd.Flags().GetString("lens")
	if name == "" || lensName == "" {
		return eris.New("trial create: --name and --lens are required")
	}

	description, _ := cmd.Flags().GetString("description")
	weightsSpec, _ := cmd.Flags().GetString("weights")
	threshold, _ := cmd.Flags().GetFloat64("authority-threshold")

	split, _ := cmd.Flags().GetFloat64("split")
	if split == 0 {
		split = cfg.Trial.TrafficSplit
	}
	minSample, _ := cmd.Flags().GetInt("min-sample")
	if minSample == 0 {
		minSample = cfg.Trial.MinSampleSize
	}

	weights, err := parseWeights(weightsSpec)
	if err != nil {
		return err
	}

	experimental := model.BranchConfig{
		Lens:               lensName,
		Weights:            weights,
		AuthorityThreshold: threshold,
		Approach:           "experimental",
	}

	engine, err := env.loadEngine(ctx)
	if err != nil {
		return err
	}
	t, err := engine.Create(name, description, experimental, split, minSample)
	if err != nil {
		return err
	}
	if err := env.Store.SaveTrial(ctx, t); err != nil {
		return err
	}

	fmt.Printf("Created trial %s (%s)\n", t.ID, t.Name)
	fmt.Printf("  classic:      %s\n", t.Classic.Config.Lens)
	fmt.Printf("  experimental: %s\n", t.Experimental.Config.Lens)
	fmt.Printf("  split:        %.0f%% experimental, min sample %d per branch\n", split*100, minSample)
	fmt.Printf("\nStart it with: trial start %s\n", t.ID)
	return nil
}

func runTrialLifecycle(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	engine, err := env.loadEngine(ctx)
	if err != nil {
		return err
	}

	trialID := args[0]
	switch cmd.Name() {
	case "start":
		err = engine.Start(trialID)
	case "pause":
		err = engine.Pause(trialID)
	case "complete":
		err = engine.Complete(trialID)
	case "archive":
		err = engine.Archive(trialID)
	}
	if err != nil {
		return err
	}

	t, err := engine.Get(trialID)
	if err != nil {
		return err
	}
	if err := env.Store.SaveTrial(ctx, t); err != nil {
		return err
	}

	fmt.Printf("Trial %s is now %s\n", trialID, t.Status)
	return nil
}

func runTrialEvaluate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	engine, err := env.loadEngine(ctx)
	if err != nil {
		return err
	}

	trialID := args[0]
	result, err := engine.Evaluate(trialID)
	if errors.Is(err, trial.ErrNotReady) {
		t, getErr := engine.Get(trialID)
		if getErr != nil {
			return getErr
		}
		fmt.Printf("Not ready: classic %d/%d, experimental %d/%d qualified leads\n",
			t.Classic.LeadsQualified, t.MinSampleSize,
			t.Experimental.LeadsQualified, t.MinSampleSize)
		return nil
	}
	if err != nil {
		return err
	}

	t, err := engine.Get(trialID)
	if err != nil {
		return err
	}
	if err := env.Store.SaveTrial(ctx, t); err != nil {
		return err
	}
	if err := env.Store.SaveTrialResult(ctx, result); err != nil {
		return err
	}

	fmt.Printf("Winner:         %s\n", result.Winner)
	fmt.Printf("Classic:        %.3f fitness\n", result.ClassicFitness)
	fmt.Printf("Experimental:   %.3f fitness\n", result.ExperimentalFitness)
	if result.Winner != model.WinnerInconclusive {
		fmt.Printf("Improvement:    %.1f%%\n", result.Improvement)
		fmt.Printf("Confidence:     %.2f\n", result.Confidence)
	}
	fmt.Printf("Recommendation: %s\n", result.Recommendation)
	fmt.Printf("Rationale:      %s\n", result.Rationale)
	return nil
}

func runTrialPromote(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	engine, err := env.loadEngine(ctx)
	if err != nil {
		return err
	}

	trialID := args[0]
	if err := engine.Promote(trialID); err != nil {
		return err
	}

	// Persist the new standard plus the displaced one in history.
	history := engine.Standards().History()
	var record *model.StandardRecord
	if len(history) > 0 {
		record = &history[len(history)-1]
	}
	if err := env.Store.SetStandard(ctx, engine.Standards().Current(), record); err != nil {
		return err
	}

	t, err := engine.Get(trialID)
	if err != nil {
		return err
	}
	if err := env.Store.SaveTrial(ctx, t); err != nil {
		return err
	}

	fmt.Printf("Promoted %s: %s is the new standard (lens %s)\n",
		trialID, t.Experimental.Name, t.Experimental.Config.Lens)
	return nil
}

func runTrialList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	trials, err := env.Store.ListTrials(ctx)
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		fmt.Println("No trials.")
		return nil
	}

	fmt.Printf("%-16s %-30s %-10s %8s %8s %-14s\n",
		"Trial ID", "Name", "Status", "Classic", "Exper.", "Winner")
	fmt.Println(strings.Repeat("-", 92))
	for i := range trials {
		t := &trials[i]
		name := t.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Printf("%-16s %-30s %-10s %8d %8d %-14s\n",
			t.ID, name, t.Status,
			t.Classic.LeadsQualified, t.Experimental.LeadsQualified, t.Winner)
	}
	return nil
}

func runTrialStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	t, err := env.Store.GetTrial(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Trial:   %s (%s)\n", t.ID, t.Name)
	fmt.Printf("Status:  %s\n", t.Status)
	fmt.Printf("Split:   %.0f%% experimental, min sample %d\n\n", t.TrafficSplit*100, t.MinSampleSize)

	printBranch := func(label string, b *model.TrialBranch) {
		fmt.Printf("%s (%s)\n", label, b.Config.Lens)
		fmt.Printf("  qualified: %d (hot %d, warm %d, cold %d, disq %d)\n",
			b.LeadsQualified, b.LeadsHot, b.LeadsWarm, b.LeadsCold, b.LeadsDisqualified)
		fmt.Printf("  outcomes:  %d won, %d lost, $%.2f revenue\n",
			b.OutcomesWon, b.OutcomesLost, b.TotalRevenue)
		fmt.Printf("  fitness:   %.3f\n", b.FitnessScore())
	}
	printBranch("Classic", &t.Classic)
	fmt.Println()
	printBranch("Experimental", &t.Experimental)

	if t.Winner != "" {
		fmt.Printf("\nWinner: %s (confidence %.2f)\n", t.Winner, t.Confidence)
	}
	return nil
}

// parseWeights parses "psi_intent=0.3,rho_authority=0.3" style specs.
func parseWeights(spec string) (map[string]float64, error) {
	if spec == "" {
		return nil, nil
	}
	weights := make(map[string]float64)
	for _, part := range strings.Split(spec, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, eris.Errorf("trial: invalid weight %q, want name=value", part)
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "trial: invalid weight value %q", kv[1])
		}
		weights[kv[0]] = v
	}
	return weights, nil
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadglass/internal/model"
	"github.com/sells-group/leadglass/internal/qualify"
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Score leads through the perception lens and route them by tier",
	Long: `Perceives one lead (from flags) or many (from a JSON/JSONL file)
through the current standard calibration, assigns a qualification tier,
and persists the routing decision.

When --trial names a running trial, each lead is randomly assigned to
the classic or experimental branch and scored with that branch's
configuration.

Examples:
  # Qualify a single lead
  qualify --company "Acme Corp" --source referral --title "VP Engineering" \
    --size enterprise --timeline this_quarter --budget

  # Qualify a batch under a running trial
  qualify --file leads.jsonl --trial trial_abc12345`,
	RunE: runQualify,
}

func init() {
	f := qualifyCmd.Flags()
	f.String("id", "", "lead id (generated when empty)")
	f.String("company", "", "company name")
	f.String("contact", "", "contact name")
	f.String("title", "", "contact title")
	f.String("email", "", "contact email")
	f.String("industry", "", "industry")
	f.String("size", "", "company size: startup, smb, mid-market, enterprise")
	f.String("source", "unknown", "lead source: inbound, referral, event, content, outbound")
	f.String("interest", "", "initial interest statement")
	f.String("timeline", "", "buying timeline: immediate, this_quarter, next_quarter, this_year")
	f.String("notes", "", "free-text notes")
	f.Bool("decision-maker", false, "contact is a decision maker")
	f.Bool("budget", false, "budget was mentioned")
	f.String("lens", "", "calibration name (overrides the current standard)")
	f.String("file", "", "path to a JSON array or JSONL file of leads")
	f.String("trial", "", "running trial id for branch assignment")
	f.Int("concurrency", 4, "concurrent store writes for batch mode")

	rootCmd.AddCommand(qualifyCmd)
}

func runQualify(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	filePath, _ := cmd.Flags().GetString("file")
	trialID, _ := cmd.Flags().GetString("trial")

	// Resolve the branch to score under.
	branchCfg := env.Standard
	branchName := ""
	if lensName, _ := cmd.Flags().GetString("lens"); lensName != "" {
		branchCfg = model.BranchConfig{Lens: lensName}
	}

	engine, err := env.loadEngine(ctx)
	if err != nil {
		return err
	}
	if trialID != "" {
		t, err := engine.Get(trialID)
		if err != nil {
			return err
		}
		if t.Status != model.TrialRunning {
			return eris.Errorf("trial %s is %s, not running", trialID, t.Status)
		}
	}

	var leads []*model.Lead
	if filePath != "" {
		leads, err = readLeadsFile(filePath)
		if err != nil {
			return err
		}
	} else {
		lead, err := leadFromFlags(cmd)
		if err != nil {
			return err
		}
		leads = []*model.Lead{lead}
	}

	// Score each lead; under a trial, every lead draws its own branch.
	var results []*model.Qualification
	for _, lead := range leads {
		bcfg, branch := branchCfg, branchName
		if trialID != "" {
			branch = engine.AssignBranch(trialID)
			t, _ := engine.Get(trialID)
			bcfg = t.Branch(branch).Config
		}

		q := qualify.New(env.calibrationFor(bcfg), branch)
		result, err := q.Qualify(lead)
		if err != nil {
			zap.L().Error("qualification failed",
				zap.String("company", lead.CompanyName),
				zap.Error(err),
			)
			continue
		}
		results = append(results, result)

		if trialID != "" {
			if err := engine.RecordQualification(trialID, branch, result.Tier); err != nil {
				return err
			}
		}
	}

	// Persist concurrently; scoring stays deterministic and ordered.
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, result := range results {
		g.Go(func() error {
			return env.Store.SaveQualification(gctx, result)
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "qualify: save results")
	}

	if trialID != "" {
		t, _ := engine.Get(trialID)
		if err := env.Store.SaveTrial(ctx, t); err != nil {
			return err
		}
	}

	sortByPriority(results)
	printQualifications(results)
	return nil
}

// sortByPriority orders results by non-increasing priority so the table
// reads as a work queue. Scoring happens in input order; only the
// output is reordered.
func sortByPriority(results []*model.Qualification) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Priority > results[j].Priority
	})
}

func leadFromFlags(cmd *cobra.Command) (*model.Lead, error) {
	company, _ := cmd.Flags().GetString("company")
	if company == "" {
		return nil, eris.New("qualify: --company is required (or use --file)")
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.New().String()
	}

	lead := &model.Lead{
		ID:          id,
		CompanyName: company,
	}
	lead.ContactName, _ = cmd.Flags().GetString("contact")
	lead.ContactTitle, _ = cmd.Flags().GetString("title")
	lead.ContactEmail, _ = cmd.Flags().GetString("email")
	lead.Industry, _ = cmd.Flags().GetString("industry")
	lead.CompanySize, _ = cmd.Flags().GetString("size")
	lead.Source, _ = cmd.Flags().GetString("source")
	lead.InitialInterest, _ = cmd.Flags().GetString("interest")
	lead.Timeline, _ = cmd.Flags().GetString("timeline")
	lead.Notes, _ = cmd.Flags().GetString("notes")

	if cmd.Flags().Changed("decision-maker") {
		v, _ := cmd.Flags().GetBool("decision-maker")
		lead.IsDecisionMaker = &v
	}
	if cmd.Flags().Changed("budget") {
		v, _ := cmd.Flags().GetBool("budget")
		lead.BudgetMentioned = &v
	}

	return lead, nil
}

// readLeadsFile parses either a JSON array of leads or one lead per
// line (JSONL). Leads without an id get one assigned.
func readLeadsFile(path string) ([]*model.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "qualify: open %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.Peek(1)
	if err != nil {
		return nil, eris.Wrapf(err, "qualify: read %s", path)
	}

	var leads []*model.Lead
	if first[0] == '[' {
		if err := json.NewDecoder(br).Decode(&leads); err != nil {
			return nil, eris.Wrapf(err, "qualify: parse %s", path)
		}
	} else {
		scanner := bufio.NewScanner(br)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var lead model.Lead
			if err := json.Unmarshal([]byte(line), &lead); err != nil {
				return nil, eris.Wrapf(err, "qualify: parse %s line %d", path, lineNo)
			}
			leads = append(leads, &lead)
		}
		if err := scanner.Err(); err != nil {
			return nil, eris.Wrapf(err, "qualify: scan %s", path)
		}
	}

	for _, lead := range leads {
		if lead.ID == "" {
			lead.ID = uuid.New().String()
		}
	}
	return leads, nil
}

func printQualifications(results []*model.Qualification) {
	if len(results) == 0 {
		fmt.Println("No leads qualified.")
		return
	}

	fmt.Printf("%-36s %-30s %-13s %9s %8s %-13s\n",
		"Lead ID", "Company", "Tier", "Coherence", "Priority", "Next Stage")
	fmt.Println(strings.Repeat("-", 115))
	for _, r := range results {
		name := r.CompanyName
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Printf("%-36s %-30s %-13s %9.2f %8.2f %-13s\n",
			r.LeadID, name, r.Tier, r.Coherence.Score, r.Priority, r.NextStage)
	}

	var hot, warm, cold, disq int
	for _, r := range results {
		switch r.Tier {
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
	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Total:        %d\n", len(results))
	fmt.Printf("Hot:          %d\n", hot)
	fmt.Printf("Warm:         %d\n", warm)
	fmt.Printf("Cold:         %d\n", cold)
	fmt.Printf("Disqualified: %d\n", disq)
}

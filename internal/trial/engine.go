package trial

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadglass/internal/model"
)

// ErrNotReady is returned when a trial is evaluated before both
// branches reach the minimum sample size.
var ErrNotReady = eris.New("trial: not ready for evaluation")

// winMargin is the relative fitness edge a branch needs to win.
const winMargin = 1.05

// confidenceGapRef is the absolute fitness difference treated as full
// confidence by the heuristic.
const confidenceGapRef = 0.2

// Engine manages trials and the promotion of winning configurations.
// Single logical writer per instance; the random branch draw is the
// only non-deterministic element and is drawn fresh per call.
type Engine struct {
	standards StandardStore
	trials    []*model.Trial
	results   []model.TrialResult
	randFloat func() float64
}

// NewEngine creates an Engine over the given standard store.
func NewEngine(standards StandardStore) *Engine {
	return &Engine{
		standards: standards,
		randFloat: rand.Float64,
	}
}

// Load seeds the engine with previously persisted trials.
func (e *Engine) Load(trials []model.Trial) {
	for i := range trials {
		t := trials[i]
		e.trials = append(e.trials, &t)
	}
}

// Create registers a new trial comparing the current standard against
// an experimental configuration. The trial starts in the planned state.
func (e *Engine) Create(name, description string, experimental model.BranchConfig, trafficSplit float64, minSampleSize int) (*model.Trial, error) {
	if trafficSplit < 0 || trafficSplit > 1 {
		return nil, eris.Errorf("trial: traffic split must be in [0,1], got %.2f", trafficSplit)
	}
	if minSampleSize <= 0 {
		return nil, eris.Errorf("trial: min sample size must be > 0, got %d", minSampleSize)
	}

	id := fmt.Sprintf("trial_%s", uuid.New().String()[:8])
	t := &model.Trial{
		ID:          id,
		Name:        name,
		Description: description,
		Classic: model.TrialBranch{
			Name:        model.BranchClassic,
			Description: "Current standard approach",
			Config:      e.standards.Current(),
		},
		Experimental: model.TrialBranch{
			Name:        fmt.Sprintf("experimental_%s", id),
			Description: description,
			Config:      experimental,
		},
		TrafficSplit:        trafficSplit,
		MinSampleSize:       minSampleSize,
		ConfidenceThreshold: 0.95,
		Status:              model.TrialPlanned,
	}
	e.trials = append(e.trials, t)

	zap.L().Info("trial: created",
		zap.String("trial_id", id),
		zap.String("name", name),
		zap.Float64("traffic_split", trafficSplit),
		zap.Int("min_sample_size", minSampleSize),
	)

	return t, nil
}

// Start moves a planned or paused trial to running.
func (e *Engine) Start(trialID string) error {
	t, err := e.get(trialID)
	if err != nil {
		return err
	}
	switch t.Status {
	case model.TrialPlanned, model.TrialPaused:
	default:
		return eris.Errorf("trial: cannot start from status %q", t.Status)
	}
	now := time.Now().UTC()
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.Status = model.TrialRunning
	zap.L().Info("trial: started", zap.String("trial_id", trialID))
	return nil
}

// Pause suspends a running trial.
func (e *Engine) Pause(trialID string) error {
	t, err := e.get(trialID)
	if err != nil {
		return err
	}
	if t.Status != model.TrialRunning {
		return eris.Errorf("trial: cannot pause from status %q", t.Status)
	}
	t.Status = model.TrialPaused
	zap.L().Info("trial: paused", zap.String("trial_id", trialID))
	return nil
}

// Complete closes out a running or paused trial without promotion.
func (e *Engine) Complete(trialID string) error {
	t, err := e.get(trialID)
	if err != nil {
		return err
	}
	switch t.Status {
	case model.TrialRunning, model.TrialPaused:
	default:
		return eris.Errorf("trial: cannot complete from status %q", t.Status)
	}
	now := time.Now().UTC()
	t.Status = model.TrialCompleted
	t.CompletedAt = &now
	return nil
}

// AssignBranch draws a branch for an incoming lead. Only a running
// trial routes traffic to the experimental side; every other status
// fails safe to classic. Each call draws fresh randomness.
func (e *Engine) AssignBranch(trialID string) string {
	t, err := e.get(trialID)
	if err != nil || t.Status != model.TrialRunning {
		return model.BranchClassic
	}
	if e.randFloat() < t.TrafficSplit {
		return model.BranchExperimental
	}
	return model.BranchClassic
}

// RecordQualification increments branch counters for one qualified
// lead.
func (e *Engine) RecordQualification(trialID, branch string, tier model.Tier) error {
	t, err := e.get(trialID)
	if err != nil {
		return err
	}
	b := t.Branch(branch)
	b.LeadsQualified++
	switch tier {
	case model.TierHot:
		b.LeadsHot++
	case model.TierWarm:
		b.LeadsWarm++
	case model.TierCold:
		b.LeadsCold++
	case model.TierDisqualified:
		b.LeadsDisqualified++
	}
	return nil
}

// RecordOutcome increments branch outcome counters and financials.
func (e *Engine) RecordOutcome(trialID, branch string, outcomeType model.OutcomeType, dealValue, cost float64) error {
	t, err := e.get(trialID)
	if err != nil {
		return err
	}
	b := t.Branch(branch)
	if outcomeType == model.OutcomeWon {
		b.OutcomesWon++
		b.TotalRevenue += dealValue
	} else {
		b.OutcomesLost++
	}
	b.TotalCost += cost
	return nil
}

// Evaluate compares branch fitness and records the winner on the trial.
// Returns ErrNotReady before the sample-size gate is met on both
// branches.
func (e *Engine) Evaluate(trialID string) (*model.TrialResult, error) {
	t, err := e.get(trialID)
	if err != nil {
		return nil, err
	}
	if !t.ReadyForEvaluation() {
		zap.L().Warn("trial: evaluation gated on sample size",
			zap.String("trial_id", trialID),
			zap.Int("min_sample_size", t.MinSampleSize),
			zap.Int("classic_n", t.Classic.LeadsQualified),
			zap.Int("experimental_n", t.Experimental.LeadsQualified),
		)
		return nil, ErrNotReady
	}

	classicFitness := t.Classic.FitnessScore()
	experimentalFitness := t.Experimental.FitnessScore()

	var (
		winner         string
		improvement    float64
		confidence     float64
		recommendation string
		rationale      string
	)

	switch {
	case experimentalFitness > classicFitness*winMargin:
		winner = model.BranchExperimental
		improvement = (experimentalFitness - classicFitness) / classicFitness * 100
		confidence = e.confidence(t)
		if confidence > t.ConfidenceThreshold {
			recommendation = model.RecommendPromote
		} else {
			recommendation = model.RecommendContinue
		}
		rationale = fmt.Sprintf("Experimental shows %.1f%% improvement (fitness: %.3f vs %.3f)",
			improvement, experimentalFitness, classicFitness)

	case classicFitness > experimentalFitness*winMargin:
		winner = model.BranchClassic
		improvement = (classicFitness - experimentalFitness) / experimentalFitness * 100
		confidence = e.confidence(t)
		recommendation = model.RecommendArchive
		rationale = fmt.Sprintf("Classic performs %.1f%% better (fitness: %.3f vs %.3f)",
			improvement, classicFitness, experimentalFitness)

	default:
		winner = model.WinnerInconclusive
		recommendation = model.RecommendContinue
		rationale = "No significant difference - need more data"
	}

	result := model.TrialResult{
		TrialID:             trialID,
		Winner:              winner,
		Confidence:          confidence,
		ClassicFitness:      classicFitness,
		ExperimentalFitness: experimentalFitness,
		Improvement:         improvement,
		Recommendation:      recommendation,
		Rationale:           rationale,
		EvaluatedAt:         time.Now().UTC(),
	}

	t.Winner = winner
	t.Confidence = confidence
	e.results = append(e.results, result)

	zap.L().Info("trial: evaluated",
		zap.String("trial_id", trialID),
		zap.String("winner", winner),
		zap.Float64("confidence", confidence),
		zap.Float64("improvement_pct", improvement),
		zap.String("recommendation", recommendation),
	)

	return &result, nil
}

// Promote replaces the current standard with the experimental branch
// configuration. Rejected unless the trial's recorded winner is the
// experimental branch.
func (e *Engine) Promote(trialID string) error {
	t, err := e.get(trialID)
	if err != nil {
		return err
	}
	if t.Winner != model.BranchExperimental {
		zap.L().Warn("trial: promotion rejected, experimental is not the winner",
			zap.String("trial_id", trialID),
			zap.String("winner", t.Winner),
		)
		return eris.Errorf("trial: cannot promote %s, winner is %q", trialID, t.Winner)
	}

	prior := e.standards.Current()
	record := model.StandardRecord{
		Config:     prior,
		ReplacedAt: time.Now().UTC(),
		ReplacedBy: t.Experimental.Name,
		TrialID:    trialID,
	}
	if err := e.standards.Replace(t.Experimental.Config, record); err != nil {
		return eris.Wrap(err, "trial: replace standard")
	}

	now := time.Now().UTC()
	t.Status = model.TrialPromoted
	t.CompletedAt = &now

	zap.L().Info("trial: experimental promoted to standard",
		zap.String("trial_id", trialID),
		zap.String("branch", t.Experimental.Name),
		zap.Float64("confidence", t.Confidence),
	)

	return nil
}

// Archive ends a trial whose experimental branch lost or was abandoned.
func (e *Engine) Archive(trialID string) error {
	t, err := e.get(trialID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.Status = model.TrialArchived
	t.CompletedAt = &now
	zap.L().Info("trial: archived", zap.String("trial_id", trialID))
	return nil
}

// Active returns the first running trial, or nil when none is running.
func (e *Engine) Active() *model.Trial {
	for _, t := range e.trials {
		if t.Status == model.TrialRunning {
			return t
		}
	}
	return nil
}

// Get returns the trial with the given id.
func (e *Engine) Get(trialID string) (*model.Trial, error) {
	return e.get(trialID)
}

// Trials returns all tracked trials.
func (e *Engine) Trials() []*model.Trial {
	out := make([]*model.Trial, len(e.trials))
	copy(out, e.trials)
	return out
}

// Results returns all evaluation snapshots taken so far.
func (e *Engine) Results() []model.TrialResult {
	out := make([]model.TrialResult, len(e.results))
	copy(out, e.results)
	return out
}

// Standards exposes the engine's standard store.
func (e *Engine) Standards() StandardStore {
	return e.standards
}

// confidence is a heuristic, not a significance test: the average of a
// sample-size term (combined n over 4x the minimum) and a fitness-gap
// term (absolute difference over a 0.2 reference), each capped at 1.
func (e *Engine) confidence(t *model.Trial) float64 {
	combined := float64(t.Classic.LeadsQualified + t.Experimental.LeadsQualified)
	sampleConfidence := math.Min(combined/float64(t.MinSampleSize*4), 1.0)

	gap := math.Abs(t.Classic.FitnessScore() - t.Experimental.FitnessScore())
	gapConfidence := math.Min(gap/confidenceGapRef, 1.0)

	return (sampleConfidence + gapConfidence) / 2
}

func (e *Engine) get(trialID string) (*model.Trial, error) {
	for _, t := range e.trials {
		if t.ID == trialID {
			return t, nil
		}
	}
	return nil, eris.Errorf("trial: not found: %s", trialID)
}

package model

import (
	"math"
	"time"
)

// TrialStatus is the lifecycle state of a trial.
type TrialStatus string

const (
	TrialPlanned   TrialStatus = "planned"
	TrialRunning   TrialStatus = "running"
	TrialPaused    TrialStatus = "paused"
	TrialCompleted TrialStatus = "completed"
	TrialPromoted  TrialStatus = "promoted"
	TrialArchived  TrialStatus = "archived"
)

// Branch labels within a trial.
const (
	BranchClassic      = "classic"
	BranchExperimental = "experimental"
	WinnerInconclusive = "inconclusive"
)

// Trial recommendations.
const (
	RecommendPromote  = "promote"
	RecommendContinue = "continue"
	RecommendArchive  = "archive"
)

// BranchConfig is the scoring configuration carried by a trial branch.
// It is the same shape as the promoted "current standard".
type BranchConfig struct {
	Lens               string             `json:"lens"`
	Weights            map[string]float64 `json:"weights,omitempty"`
	AuthorityThreshold float64            `json:"authority_threshold,omitempty"`
	Approach           string             `json:"approach,omitempty"`
}

// TrialBranch is one side of a trial with its own counters. Counters
// only increase; derived rates are computed on read, never stored.
type TrialBranch struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Config      BranchConfig `json:"config"`

	LeadsQualified    int `json:"leads_qualified"`
	LeadsHot          int `json:"leads_hot"`
	LeadsWarm         int `json:"leads_warm"`
	LeadsCold         int `json:"leads_cold"`
	LeadsDisqualified int `json:"leads_disqualified"`

	OutcomesWon  int     `json:"outcomes_won"`
	OutcomesLost int     `json:"outcomes_lost"`
	TotalRevenue float64 `json:"total_revenue"`
	TotalCost    float64 `json:"total_cost"`
}

// QualificationRate is the share of perceived leads not disqualified.
func (b *TrialBranch) QualificationRate() float64 {
	if b.LeadsQualified == 0 {
		return 0
	}
	return float64(b.LeadsQualified-b.LeadsDisqualified) / float64(b.LeadsQualified)
}

// ConversionRate is the share of closed outcomes that were won.
func (b *TrialBranch) ConversionRate() float64 {
	total := b.OutcomesWon + b.OutcomesLost
	if total == 0 {
		return 0
	}
	return float64(b.OutcomesWon) / float64(total)
}

// AvgDealValue is revenue per won deal.
func (b *TrialBranch) AvgDealValue() float64 {
	if b.OutcomesWon == 0 {
		return 0
	}
	return b.TotalRevenue / float64(b.OutcomesWon)
}

// ROI is (revenue - cost) / cost, 0 when no cost recorded.
func (b *TrialBranch) ROI() float64 {
	if b.TotalCost == 0 {
		return 0
	}
	return (b.TotalRevenue - b.TotalCost) / b.TotalCost
}

// FitnessScore is the scalar used to compare branches:
// 0.3*qualification rate + 0.5*conversion rate + 0.2*revenue weight,
// where revenue weight caps average deal value at $100k.
func (b *TrialBranch) FitnessScore() float64 {
	revenueWeight := math.Min(b.AvgDealValue()/100_000, 1.0)
	return b.QualificationRate()*0.3 + b.ConversionRate()*0.5 + revenueWeight*0.2
}

// Trial pairs a classic and an experimental branch under one lifecycle.
type Trial struct {
	ID          string `json:"trial_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Classic      TrialBranch `json:"classic_branch"`
	Experimental TrialBranch `json:"experimental_branch"`

	// Share of running traffic routed to the experimental branch.
	TrafficSplit        float64 `json:"traffic_split"`
	MinSampleSize       int     `json:"min_sample_size"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	Status      TrialStatus `json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`

	// Set by evaluation; Winner is empty until then.
	Winner     string  `json:"winner,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ReadyForEvaluation reports whether both branches have reached the
// minimum sample size.
func (t *Trial) ReadyForEvaluation() bool {
	return t.Classic.LeadsQualified >= t.MinSampleSize &&
		t.Experimental.LeadsQualified >= t.MinSampleSize
}

// Branch returns the named branch, defaulting to classic for any label
// that is not the experimental branch.
func (t *Trial) Branch(name string) *TrialBranch {
	if name == t.Experimental.Name || name == BranchExperimental {
		return &t.Experimental
	}
	return &t.Classic
}

// TrialResult is an immutable snapshot of one evaluation.
type TrialResult struct {
	TrialID    string  `json:"trial_id"`
	Winner     string  `json:"winner"` // classic, experimental, inconclusive
	Confidence float64 `json:"confidence"`

	ClassicFitness      float64 `json:"classic_fitness"`
	ExperimentalFitness float64 `json:"experimental_fitness"`
	Improvement         float64 `json:"improvement"` // percent, winner over loser

	Recommendation string `json:"recommendation"` // promote, continue, archive
	Rationale      string `json:"rationale"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// StandardRecord is one entry in the promoted-standard history.
type StandardRecord struct {
	Config     BranchConfig `json:"config"`
	ReplacedAt time.Time    `json:"replaced_at"`
	ReplacedBy string       `json:"replaced_by"`
	TrialID    string       `json:"trial_id"`
}

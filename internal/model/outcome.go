package model

import (
	"strings"
	"time"
)

// OutcomeType is the terminal business result for a lead.
type OutcomeType string

const (
	OutcomeWon            OutcomeType = "won"
	OutcomeLostCompetitor OutcomeType = "lost_competitor"
	OutcomeLostNoBudget   OutcomeType = "lost_no_budget"
	OutcomeLostNoDecision OutcomeType = "lost_no_decision"
	OutcomeLostTiming     OutcomeType = "lost_timing"
	OutcomeLostDark       OutcomeType = "lost_dark"
	OutcomeDisqualified   OutcomeType = "disqualified"
	OutcomeNurtureOngoing OutcomeType = "nurture_ongoing"
)

// Outcome records a lead's terminal result along with the qualification
// context at the time and free-form learnings. Created once; only the
// store loader reconstructs it afterward.
type Outcome struct {
	LeadID      string      `json:"lead_id"`
	CompanyName string      `json:"company_name"`
	Type        OutcomeType `json:"outcome_type"`

	// Financials
	DealValue     float64 `json:"deal_value"`
	ExpectedValue float64 `json:"expected_value"`
	CostToAcquire float64 `json:"cost_to_acquire"`

	// Timeline
	CreatedAt      time.Time  `json:"created_at"`
	FirstContactAt *time.Time `json:"first_contact_at,omitempty"`
	QualifiedAt    *time.Time `json:"qualified_at,omitempty"`
	OutcomeAt      time.Time  `json:"outcome_at"`

	// Qualification context
	Tier           Tier    `json:"qualification_tier,omitempty"`
	CoherenceScore float64 `json:"coherence_score,omitempty"`
	TrialBranch    string  `json:"trial_branch,omitempty"`

	// Learnings
	LossReason       string   `json:"loss_reason,omitempty"`
	CompetitorChosen string   `json:"competitor_chosen,omitempty"`
	WhatWentWrong    []string `json:"what_went_wrong,omitempty"`
	WhatWentRight    []string `json:"what_went_right,omitempty"`
	LessonLearned    string   `json:"lesson_learned,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// IsWon reports whether the lead converted to a customer.
func (o *Outcome) IsWon() bool { return o.Type == OutcomeWon }

// IsLost reports whether the lead was lost (any lost_* outcome).
func (o *Outcome) IsLost() bool {
	return strings.HasPrefix(string(o.Type), "lost_")
}

// IsDisqualified reports whether the lead never qualified.
func (o *Outcome) IsDisqualified() bool { return o.Type == OutcomeDisqualified }

// DaysToClose returns days from first contact to outcome. The second
// return is false when no first-contact timestamp was recorded.
func (o *Outcome) DaysToClose() (int, bool) {
	if o.FirstContactAt == nil {
		return 0, false
	}
	return int(o.OutcomeAt.Sub(*o.FirstContactAt).Hours() / 24), true
}

// ROI returns (deal value - acquisition cost) / cost, or 0 when no cost
// was recorded.
func (o *Outcome) ROI() float64 {
	if o.CostToAcquire <= 0 {
		return 0
	}
	return (o.DealValue - o.CostToAcquire) / o.CostToAcquire
}

// NutrientCategory is the taxonomy for graveyard learnings.
type NutrientCategory string

const (
	CategoryQualification NutrientCategory = "qualification"
	CategoryMessaging     NutrientCategory = "messaging"
	CategoryTiming        NutrientCategory = "timing"
	CategoryAuthority     NutrientCategory = "authority"
	CategoryPricing       NutrientCategory = "pricing"
	CategoryCompetitive   NutrientCategory = "competitive"
	CategoryEngagement    NutrientCategory = "engagement"
	CategoryTechnical     NutrientCategory = "technical"
	CategoryGeneral       NutrientCategory = "general"
)

// Severity grades how costly the underlying failure was.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Nutrient is one categorized learning extracted from a failed lead.
// Mutated only to flip AppliedToStandard.
type Nutrient struct {
	LeadID      string      `json:"lead_id"`
	CompanyName string      `json:"company_name"`
	OutcomeType OutcomeType `json:"outcome_type"`

	Category NutrientCategory `json:"category"`
	Lesson   string           `json:"lesson"`
	Severity Severity         `json:"severity"`

	Tier           Tier    `json:"qualification_tier,omitempty"`
	CoherenceScore float64 `json:"coherence_score,omitempty"`
	TrialBranch    string  `json:"trial_branch,omitempty"`

	ExtractedAt       time.Time `json:"extracted_at"`
	AppliedToStandard bool      `json:"applied_to_standard"`
}

// PatternPriority ranks how urgently a failure pattern needs action.
type PatternPriority string

const (
	PriorityLow      PatternPriority = "low"
	PriorityMedium   PatternPriority = "medium"
	PriorityHigh     PatternPriority = "high"
	PriorityCritical PatternPriority = "critical"
)

// FailurePattern aggregates a recurring commonality across failed leads.
// Recomputed in full on each analysis pass, not maintained incrementally.
type FailurePattern struct {
	Type      string   `json:"pattern_type"`
	Frequency int      `json:"frequency"`
	Affected  []string `json:"affected_leads"`

	AvgCoherenceAtFail float64 `json:"avg_coherence_at_fail"`
	PrimaryTier        Tier    `json:"primary_tier"`

	RecommendedAction string          `json:"recommended_action"`
	Priority          PatternPriority `json:"priority"`

	DetectedAt time.Time `json:"detected_at"`
}

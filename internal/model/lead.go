// Package model defines the shared data types for lead perception,
// qualification, outcome tracking, failure mining, and trials.
package model

import (
	"strings"
	"time"
)

// Tier is the qualification tier assigned by the perception lens.
type Tier string

const (
	TierHot          Tier = "hot"
	TierWarm         Tier = "warm"
	TierCold         Tier = "cold"
	TierDisqualified Tier = "disqualified"
)

// Stage is the routing destination for a qualified lead.
type Stage string

const (
	StageActive      Stage = "active"
	StageNurtureWarm Stage = "nurture_warm"
	StageNurtureCold Stage = "nurture_cold"
	StageArchived    Stage = "archived"
)

// Lead is a normalized inbound lead record. It is created by the
// ingestion layer and never mutated once perceived.
type Lead struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`

	// Contact
	ContactName  string `json:"contact_name,omitempty"`
	ContactTitle string `json:"contact_title,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`

	// Firmographics
	Industry     string   `json:"industry,omitempty"`
	CompanySize  string   `json:"company_size,omitempty"` // startup, smb, mid-market, enterprise
	RevenueRange string   `json:"revenue_range,omitempty"`
	TechStack    []string `json:"tech_stack,omitempty"`

	// Intent
	Source          string   `json:"source"` // inbound, referral, event, content, outbound, unknown
	InitialInterest string   `json:"initial_interest,omitempty"`
	PainPoints      []string `json:"pain_points,omitempty"`
	UseCase         string   `json:"use_case,omitempty"`

	// Authority
	IsDecisionMaker *bool  `json:"is_decision_maker,omitempty"`
	BudgetMentioned *bool  `json:"budget_mentioned,omitempty"`
	Timeline        string `json:"timeline,omitempty"` // immediate, this_quarter, next_quarter, this_year

	// Fit
	CurrentSolution      string   `json:"current_solution,omitempty"`
	CompetitorsMentioned []string `json:"competitors_mentioned,omitempty"`

	// Engagement
	WebsiteVisits    int      `json:"website_visits,omitempty"`
	ContentDownloads []string `json:"content_downloads,omitempty"`
	EmailOpens       int      `json:"email_opens,omitempty"`
	MeetingRequests  int      `json:"meeting_requests,omitempty"`

	// Free text
	Notes          string `json:"notes,omitempty"`
	EmailContent   string `json:"email_content,omitempty"`
	CallTranscript string `json:"call_transcript,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// AnalysisText combines all free-text fields for keyword analysis.
func (l *Lead) AnalysisText() string {
	parts := []string{
		l.Notes,
		l.EmailContent,
		l.CallTranscript,
		l.InitialInterest,
		strings.Join(l.PainPoints, " "),
		l.UseCase,
	}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// Coherence is the result of perceiving a lead through a calibrated
// lens: four bounded dimension scores plus derived tier and signals.
type Coherence struct {
	// Dimensions, each in [0,1].
	PsiIntent    float64 `json:"psi_intent"`
	RhoAuthority float64 `json:"rho_authority"`
	QUrgency     float64 `json:"q_urgency"`
	FFit         float64 `json:"f_fit"`

	// Combined score in [0,4].
	Score float64 `json:"coherence_score"`
	Tier  Tier    `json:"qualification_tier"`

	LensUsed   string    `json:"lens_used"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"` // data-completeness estimate, [0,1]

	PositiveSignals []string `json:"positive_signals,omitempty"`
	WarningSignals  []string `json:"warning_signals,omitempty"`
	Disqualifiers   []string `json:"disqualifiers,omitempty"`
	NextActions     []string `json:"next_actions,omitempty"`
}

// Qualification wraps one Coherence reading with a routing decision.
type Qualification struct {
	LeadID      string `json:"lead_id"`
	CompanyName string `json:"company_name"`

	Coherence Coherence `json:"coherence"`

	Tier      Tier  `json:"qualification_tier"`
	Qualified bool  `json:"qualified"`
	NextStage Stage `json:"next_stage"`

	// Priority in [0,1] for ordering work queues.
	Priority float64 `json:"priority_score"`

	QualifiedAt time.Time `json:"qualified_at"`
	QualifiedBy string    `json:"qualified_by"`
	LensUsed    string    `json:"lens_used"`
	TrialBranch string    `json:"trial_branch,omitempty"`
}

// StageForTier maps a qualification tier to its routing stage.
func StageForTier(tier Tier) Stage {
	switch tier {
	case TierHot:
		return StageActive
	case TierWarm:
		return StageNurtureWarm
	case TierCold:
		return StageNurtureCold
	default:
		return StageArchived
	}
}

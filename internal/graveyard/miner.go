// Package graveyard mines failed and disqualified lead outcomes for
// categorized learnings (nutrients) and cross-lead failure patterns.
package graveyard

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadglass/internal/model"
)

// categoryRule maps keywords in a learning to a nutrient category. The
// table is evaluated in order; the first matching rule wins, so the
// categorization stays deterministic.
type categoryRule struct {
	category model.NutrientCategory
	keywords []string
}

var categoryRules = []categoryRule{
	{model.CategoryQualification, []string{"qualify", "icp", "fit", "criteria", "disqualif"}},
	{model.CategoryMessaging, []string{"message", "value", "positioning", "communication", "pitch"}},
	{model.CategoryTiming, []string{"timing", "timeline", "urgency", "too early", "too late"}},
	{model.CategoryAuthority, []string{"authority", "decision", "stakeholder", "champion", "multi-thread"}},
	{model.CategoryPricing, []string{"price", "budget", "cost", "expensive", "roi"}},
	{model.CategoryCompetitive, []string{"competitor", "competitive", "alternative", "comparison"}},
	{model.CategoryEngagement, []string{"engagement", "response", "dark", "ghosted", "follow-up"}},
	{model.CategoryTechnical, []string{"technical", "integration", "feature", "requirement"}},
}

// Miner accumulates buried outcomes and extracted nutrients.
// Single-writer; callers coordinate their own concurrency.
type Miner struct {
	buried    []model.Outcome
	nutrients []model.Nutrient
}

// NewMiner returns an empty Miner, optionally reloaded from persisted
// outcomes and nutrients.
func NewMiner(outcomes []model.Outcome, nutrients []model.Nutrient) *Miner {
	m := &Miner{}
	m.buried = append(m.buried, outcomes...)
	m.nutrients = append(m.nutrients, nutrients...)
	return m
}

// Bury records a failed outcome and extracts its nutrients: one per
// explicit what-went-wrong item, one from the overall lesson if present,
// and one inferred from the outcome type. Burying the same outcome
// twice is not deduplicated; callers must not double-submit.
func (m *Miner) Bury(outcome model.Outcome) []model.Nutrient {
	m.buried = append(m.buried, outcome)

	nutrients := extractNutrients(&outcome)
	m.nutrients = append(m.nutrients, nutrients...)

	zap.L().Info("graveyard: lead buried",
		zap.String("lead_id", outcome.LeadID),
		zap.String("company", outcome.CompanyName),
		zap.String("type", string(outcome.Type)),
		zap.Int("nutrients", len(nutrients)),
	)

	return nutrients
}

// Nutrients returns all extracted nutrients.
func (m *Miner) Nutrients() []model.Nutrient {
	out := make([]model.Nutrient, len(m.nutrients))
	copy(out, m.nutrients)
	return out
}

// NutrientsByCategory groups extracted nutrients by category.
func (m *Miner) NutrientsByCategory() map[model.NutrientCategory][]model.Nutrient {
	byCategory := make(map[model.NutrientCategory][]model.Nutrient)
	for _, n := range m.nutrients {
		byCategory[n.Category] = append(byCategory[n.Category], n)
	}
	return byCategory
}

// CriticalNutrients returns high-severity nutrients not yet applied to
// the current standard.
func (m *Miner) CriticalNutrients() []model.Nutrient {
	var out []model.Nutrient
	for _, n := range m.nutrients {
		if n.Severity == model.SeverityCritical && !n.AppliedToStandard {
			out = append(out, n)
		}
	}
	return out
}

// MarkApplied flips the applied flag on all nutrients from the given
// lead and returns how many were updated.
func (m *Miner) MarkApplied(leadID string) int {
	var updated int
	for i := range m.nutrients {
		if m.nutrients[i].LeadID == leadID && !m.nutrients[i].AppliedToStandard {
			m.nutrients[i].AppliedToStandard = true
			updated++
		}
	}
	return updated
}

func extractNutrients(o *model.Outcome) []model.Nutrient {
	var nutrients []model.Nutrient
	now := time.Now().UTC()

	base := model.Nutrient{
		LeadID:         o.LeadID,
		CompanyName:    o.CompanyName,
		OutcomeType:    o.Type,
		Tier:           o.Tier,
		CoherenceScore: o.CoherenceScore,
		TrialBranch:    o.TrialBranch,
		ExtractedAt:    now,
	}

	for _, issue := range o.WhatWentWrong {
		n := base
		n.Category = categorize(issue)
		n.Lesson = issue
		n.Severity = assessSeverity(o)
		nutrients = append(nutrients, n)
	}

	if o.LessonLearned != "" {
		n := base
		n.Category = categorize(o.LessonLearned)
		n.Lesson = o.LessonLearned
		n.Severity = model.SeverityModerate
		nutrients = append(nutrients, n)
	}

	switch o.Type {
	case model.OutcomeLostCompetitor:
		if o.CompetitorChosen != "" {
			n := base
			n.Category = model.CategoryCompetitive
			n.Lesson = fmt.Sprintf("Lost to %s - analyze competitive positioning", o.CompetitorChosen)
			n.Severity = model.SeverityModerate
			nutrients = append(nutrients, n)
		}
	case model.OutcomeLostDark:
		n := base
		n.Category = model.CategoryEngagement
		n.Lesson = "Lead went dark - review engagement cadence and value delivery"
		n.Severity = model.SeverityModerate
		nutrients = append(nutrients, n)
	case model.OutcomeDisqualified:
		n := base
		n.Category = model.CategoryQualification
		n.Lesson = fmt.Sprintf("Disqualified with coherence %.2f - review qualification criteria", o.CoherenceScore)
		n.Severity = model.SeverityMinor
		n.Tier = model.TierDisqualified
		nutrients = append(nutrients, n)
	}

	return nutrients
}

// categorize resolves a learning to a nutrient category via the ordered
// rule table; unmatched text falls through to general.
func categorize(lesson string) model.NutrientCategory {
	lower := strings.ToLower(lesson)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return model.CategoryGeneral
}

// assessSeverity grades a what-went-wrong item by how costly the
// underlying loss was.
func assessSeverity(o *model.Outcome) model.Severity {
	switch {
	case o.ExpectedValue > 50_000:
		return model.SeverityCritical
	case o.CoherenceScore > 2.5:
		return model.SeverityCritical
	case o.CoherenceScore > 1.5:
		return model.SeverityModerate
	default:
		return model.SeverityMinor
	}
}

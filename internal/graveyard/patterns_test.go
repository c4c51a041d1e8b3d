package graveyard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadglass/internal/model"
)

func findPattern(t *testing.T, patterns []model.FailurePattern, patternType string) model.FailurePattern {
	t.Helper()
	for _, p := range patterns {
		if p.Type == patternType {
			return p
		}
	}
	t.Fatalf("pattern %q not detected in %d patterns", patternType, len(patterns))
	return model.FailurePattern{}
}

func TestAnalyze_CompetitorPattern(t *testing.T) {
	m := NewMiner([]model.Outcome{
		{LeadID: "a", Type: model.OutcomeLostCompetitor, CompetitorChosen: "Rival CRM", Tier: model.TierHot, CoherenceScore: 3.0},
		{LeadID: "b", Type: model.OutcomeLostCompetitor, CompetitorChosen: "Rival CRM", Tier: model.TierHot, CoherenceScore: 2.6},
		{LeadID: "c", Type: model.OutcomeLostCompetitor, CompetitorChosen: "OneOff Tools"},
	}, nil)

	patterns := m.Analyze()
	p := findPattern(t, patterns, "frequent_loss_to_Rival_CRM")
	assert.Equal(t, 2, p.Frequency)
	assert.ElementsMatch(t, []string{"a", "b"}, p.Affected)
	assert.InDelta(t, 2.8, p.AvgCoherenceAtFail, 1e-9)
	assert.Equal(t, model.TierHot, p.PrimaryTier)
	assert.Equal(t, model.PriorityMedium, p.Priority)
	assert.Contains(t, p.RecommendedAction, "Rival CRM")

	// A single loss to one competitor is noise, not a pattern.
	for _, got := range patterns {
		assert.NotContains(t, got.Type, "OneOff")
	}
}

func TestAnalyze_CompetitorPattern_HighPriority(t *testing.T) {
	var outcomes []model.Outcome
	for i := 0; i < 4; i++ {
		outcomes = append(outcomes, model.Outcome{
			LeadID:           fmt.Sprintf("lead-%d", i),
			Type:             model.OutcomeLostCompetitor,
			CompetitorChosen: "Rival CRM",
		})
	}
	m := NewMiner(outcomes, nil)

	p := findPattern(t, m.Analyze(), "frequent_loss_to_Rival_CRM")
	assert.Equal(t, 4, p.Frequency)
	assert.Equal(t, model.PriorityHigh, p.Priority)
}

func TestAnalyze_GoneDarkPattern(t *testing.T) {
	m := NewMiner([]model.Outcome{
		{LeadID: "a", Type: model.OutcomeLostDark, Tier: model.TierHot},
		{LeadID: "b", Type: model.OutcomeLostDark, Tier: model.TierHot},
		{LeadID: "c", Type: model.OutcomeLostDark, Tier: model.TierWarm},
	}, nil)

	patterns := m.Analyze()
	p := findPattern(t, patterns, "hot_tier_going_dark")
	assert.Equal(t, 2, p.Frequency)
	assert.Equal(t, model.PriorityHigh, p.Priority)

	// The single warm dark outcome is below the per-tier threshold.
	for _, got := range patterns {
		assert.NotEqual(t, "warm_tier_going_dark", got.Type)
	}
}

func TestAnalyze_GoneDark_NeedsThreeOverall(t *testing.T) {
	m := NewMiner([]model.Outcome{
		{LeadID: "a", Type: model.OutcomeLostDark, Tier: model.TierHot},
		{LeadID: "b", Type: model.OutcomeLostDark, Tier: model.TierHot},
	}, nil)

	for _, p := range m.Analyze() {
		assert.NotContains(t, p.Type, "going_dark")
	}
}

func TestAnalyze_WeakQualificationPattern(t *testing.T) {
	var outcomes []model.Outcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, model.Outcome{
			LeadID:         fmt.Sprintf("disq-%d", i),
			Type:           model.OutcomeDisqualified,
			CoherenceScore: 0.5,
		})
	}
	m := NewMiner(outcomes, nil)

	p := findPattern(t, m.Analyze(), "weak_qualification_criteria")
	assert.Equal(t, 5, p.Frequency)
	assert.InDelta(t, 0.5, p.AvgCoherenceAtFail, 1e-9)
	assert.Equal(t, model.PriorityCritical, p.Priority)
	assert.Equal(t, model.TierDisqualified, p.PrimaryTier)
}

func TestAnalyze_WeakQualification_NotBelowAverage(t *testing.T) {
	var outcomes []model.Outcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, model.Outcome{
			LeadID:         fmt.Sprintf("disq-%d", i),
			Type:           model.OutcomeDisqualified,
			CoherenceScore: 1.1,
		})
	}
	m := NewMiner(outcomes, nil)

	for _, p := range m.Analyze() {
		assert.NotEqual(t, "weak_qualification_criteria", p.Type)
	}
}

func TestAnalyze_CategoryPattern(t *testing.T) {
	m := NewMiner(nil, []model.Nutrient{
		{LeadID: "a", Category: model.CategoryPricing, CoherenceScore: 2.0},
		{LeadID: "b", Category: model.CategoryPricing, CoherenceScore: 2.2},
		{LeadID: "b", Category: model.CategoryPricing, CoherenceScore: 2.2},
		{LeadID: "c", Category: model.CategoryTiming},
	})

	p := findPattern(t, m.Analyze(), "recurring_pricing_issues")
	assert.Equal(t, 3, p.Frequency)
	// Affected leads are deduplicated.
	assert.Equal(t, []string{"a", "b"}, p.Affected)
	assert.Equal(t, model.PriorityMedium, p.Priority)
}

func TestAnalyze_Empty(t *testing.T) {
	assert.Empty(t, NewMiner(nil, nil).Analyze())
}

func TestTopKeys_Deterministic(t *testing.T) {
	counts := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}
	keys := topKeys(counts, 3)
	require.Equal(t, []string{"c", "a", "b"}, keys)
}

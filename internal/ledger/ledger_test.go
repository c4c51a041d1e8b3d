package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadglass/internal/model"
)

func daysBefore(t time.Time, days int) *time.Time {
	ts := t.Add(-time.Duration(days) * 24 * time.Hour)
	return &ts
}

func TestRecord_Validation(t *testing.T) {
	l := New()

	_, err := l.Record(model.Outcome{Type: model.OutcomeWon})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing lead id")

	_, err = l.Record(model.Outcome{LeadID: "lead-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")

	assert.Empty(t, l.Outcomes(""))
}

func TestRecord_DefaultsTimestamps(t *testing.T) {
	l := New()

	o, err := l.Record(model.Outcome{LeadID: "lead-1", Type: model.OutcomeWon})
	require.NoError(t, err)
	assert.False(t, o.CreatedAt.IsZero())
	assert.False(t, o.OutcomeAt.IsZero())

	// Reloaded records keep their original timestamps.
	then := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	o, err = l.Record(model.Outcome{
		LeadID:    "lead-2",
		Type:      model.OutcomeLostTiming,
		CreatedAt: then,
		OutcomeAt: then,
	})
	require.NoError(t, err)
	assert.Equal(t, then, o.OutcomeAt)
}

func TestRecordLost_RejectsNonLossTypes(t *testing.T) {
	l := New()

	_, err := l.RecordLost(model.OutcomeWon, model.Outcome{LeadID: "lead-1"})
	require.Error(t, err)

	_, err = l.RecordLost(model.OutcomeDisqualified, model.Outcome{LeadID: "lead-1"})
	require.Error(t, err)

	o, err := l.RecordLost(model.OutcomeLostCompetitor, model.Outcome{LeadID: "lead-1"})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeLostCompetitor, o.Type)
}

func TestRecordDisqualified_ForcesTier(t *testing.T) {
	l := New()

	o, err := l.RecordDisqualified(model.Outcome{LeadID: "lead-1", Tier: model.TierWarm})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDisqualified, o.Type)
	assert.Equal(t, model.TierDisqualified, o.Tier)
}

func TestMetrics(t *testing.T) {
	closedAt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	l := New(
		model.Outcome{
			LeadID: "won-1", Type: model.OutcomeWon, Tier: model.TierHot,
			DealValue: 120_000, CostToAcquire: 20_000,
			FirstContactAt: daysBefore(closedAt, 30), OutcomeAt: closedAt,
		},
		model.Outcome{
			LeadID: "won-2", Type: model.OutcomeWon, Tier: model.TierWarm,
			DealValue:      30_000,
			FirstContactAt: daysBefore(closedAt, 10), OutcomeAt: closedAt,
		},
		model.Outcome{LeadID: "lost-1", Type: model.OutcomeLostCompetitor, Tier: model.TierHot, OutcomeAt: closedAt},
		model.Outcome{LeadID: "lost-2", Type: model.OutcomeLostDark, Tier: model.TierWarm, OutcomeAt: closedAt},
		model.Outcome{LeadID: "disq-1", Type: model.OutcomeDisqualified, Tier: model.TierDisqualified, OutcomeAt: closedAt},
	)

	m := l.Metrics("")
	assert.Equal(t, 5, m.TotalOutcomes)
	assert.Equal(t, 2, m.Won)
	assert.Equal(t, 2, m.Lost)
	assert.Equal(t, 1, m.Disqualified)
	assert.InDelta(t, 0.4, m.ConversionRate, 1e-9)

	assert.Equal(t, 2, m.ByTier[model.TierHot].Total)
	assert.InDelta(t, 0.5, m.ByTier[model.TierHot].ConversionRate, 1e-9)

	assert.InDelta(t, 150_000, m.Revenue.Total, 1e-9)
	assert.InDelta(t, 75_000, m.Revenue.AvgDealSize, 1e-9)
	assert.InDelta(t, 6.5, m.Revenue.ROI, 1e-9)

	assert.InDelta(t, 20, m.Timeline.AvgDaysToClose, 1e-9)
	assert.Equal(t, 10, m.Timeline.FastestDeal)
	assert.Equal(t, 30, m.Timeline.SlowestDeal)
}

func TestMetrics_Empty(t *testing.T) {
	m := New().Metrics("")
	assert.Zero(t, m.TotalOutcomes)
	assert.Zero(t, m.ConversionRate)
	assert.NotNil(t, m.ByTier)
}

func TestMetrics_BranchScope(t *testing.T) {
	l := New(
		model.Outcome{LeadID: "a", Type: model.OutcomeWon, TrialBranch: "classic"},
		model.Outcome{LeadID: "b", Type: model.OutcomeLostDark, TrialBranch: "classic"},
		model.Outcome{LeadID: "c", Type: model.OutcomeWon, TrialBranch: "experimental"},
	)

	assert.Len(t, l.Outcomes(""), 3)
	assert.Len(t, l.Outcomes("experimental"), 1)

	m := l.Metrics("experimental")
	assert.Equal(t, 1, m.TotalOutcomes)
	assert.InDelta(t, 1.0, m.ConversionRate, 1e-9)
	assert.Equal(t, "experimental", m.TrialBranch)
}

func TestFailureFeed(t *testing.T) {
	l := New(
		model.Outcome{LeadID: "won-1", Type: model.OutcomeWon},
		model.Outcome{LeadID: "lost-1", Type: model.OutcomeLostNoBudget},
		model.Outcome{LeadID: "disq-1", Type: model.OutcomeDisqualified},
		model.Outcome{LeadID: "nurture-1", Type: model.OutcomeNurtureOngoing},
	)

	feed := l.FailureFeed()
	require.Len(t, feed, 2)
	assert.Equal(t, "lost-1", feed[0].LeadID)
	assert.Equal(t, "disq-1", feed[1].LeadID)
}

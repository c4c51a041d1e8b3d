// Package ledger accumulates terminal lead outcomes and derives
// conversion metrics and graveyard feed records from them.
package ledger

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadglass/internal/model"
)

// TierMetrics summarizes outcomes within one qualification tier.
type TierMetrics struct {
	Total          int     `json:"total"`
	Won            int     `json:"won"`
	ConversionRate float64 `json:"conversion_rate"`
}

// RevenueMetrics summarizes financial results.
type RevenueMetrics struct {
	Total       float64 `json:"total"`
	AvgDealSize float64 `json:"avg_deal_size"`
	TotalCost   float64 `json:"total_cost"`
	ROI         float64 `json:"roi"`
}

// TimelineMetrics summarizes days-to-close over won deals that have a
// recorded first-contact timestamp.
type TimelineMetrics struct {
	AvgDaysToClose float64 `json:"avg_days_to_close"`
	FastestDeal    int     `json:"fastest_deal,omitempty"`
	SlowestDeal    int     `json:"slowest_deal,omitempty"`
}

// Metrics is the aggregate view over recorded outcomes.
type Metrics struct {
	TotalOutcomes  int                        `json:"total_outcomes"`
	Won            int                        `json:"won"`
	Lost           int                        `json:"lost"`
	Disqualified   int                        `json:"disqualified"`
	ConversionRate float64                    `json:"conversion_rate"`
	ByTier         map[model.Tier]TierMetrics `json:"by_tier"`
	Revenue        RevenueMetrics             `json:"revenue"`
	Timeline       TimelineMetrics            `json:"timeline"`
	TrialBranch    string                     `json:"trial_branch,omitempty"`
}

// Ledger holds recorded outcomes in memory. Persistence belongs to the
// store layer; the ledger tolerates being reloaded from persisted
// records via Record.
type Ledger struct {
	outcomes []model.Outcome
}

// New returns an empty Ledger, optionally seeded with previously
// persisted outcomes.
func New(seed ...model.Outcome) *Ledger {
	l := &Ledger{}
	l.outcomes = append(l.outcomes, seed...)
	return l
}

// Record appends an outcome. Zero timestamps are defaulted so records
// reconstructed from older persisted data stay usable.
func (l *Ledger) Record(o model.Outcome) (*model.Outcome, error) {
	if o.LeadID == "" {
		return nil, eris.New("ledger: outcome missing lead id")
	}
	if o.Type == "" {
		return nil, eris.New("ledger: outcome missing type")
	}

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.OutcomeAt.IsZero() {
		o.OutcomeAt = now
	}

	l.outcomes = append(l.outcomes, o)

	zap.L().Info("ledger: outcome recorded",
		zap.String("lead_id", o.LeadID),
		zap.String("company", o.CompanyName),
		zap.String("type", string(o.Type)),
		zap.String("tier", string(o.Tier)),
		zap.Float64("deal_value", o.DealValue),
		zap.String("branch", o.TrialBranch),
	)

	return &l.outcomes[len(l.outcomes)-1], nil
}

// RecordWon records a closed-won deal.
func (l *Ledger) RecordWon(o model.Outcome) (*model.Outcome, error) {
	o.Type = model.OutcomeWon
	return l.Record(o)
}

// RecordLost records a lost deal of the given loss type.
func (l *Ledger) RecordLost(lossType model.OutcomeType, o model.Outcome) (*model.Outcome, error) {
	if lossType == model.OutcomeWon || lossType == model.OutcomeDisqualified {
		return nil, eris.Errorf("ledger: %q is not a loss type", lossType)
	}
	o.Type = lossType
	return l.Record(o)
}

// RecordDisqualified records a lead that never qualified.
func (l *Ledger) RecordDisqualified(o model.Outcome) (*model.Outcome, error) {
	o.Type = model.OutcomeDisqualified
	o.Tier = model.TierDisqualified
	return l.Record(o)
}

// Outcomes returns all recorded outcomes, optionally filtered to one
// trial branch.
func (l *Ledger) Outcomes(branch string) []model.Outcome {
	if branch == "" {
		out := make([]model.Outcome, len(l.outcomes))
		copy(out, l.outcomes)
		return out
	}
	var out []model.Outcome
	for _, o := range l.outcomes {
		if o.TrialBranch == branch {
			out = append(out, o)
		}
	}
	return out
}

// Metrics computes conversion, revenue, and timeline aggregates over
// recorded outcomes, optionally scoped to one trial branch.
func (l *Ledger) Metrics(branch string) Metrics {
	outcomes := l.Outcomes(branch)

	m := Metrics{
		TotalOutcomes: len(outcomes),
		ByTier:        make(map[model.Tier]TierMetrics),
		TrialBranch:   branch,
	}
	if len(outcomes) == 0 {
		return m
	}

	var totalRevenue, totalCost float64
	var daysToClose []int

	for i := range outcomes {
		o := &outcomes[i]
		switch {
		case o.IsWon():
			m.Won++
			totalRevenue += o.DealValue
			if d, ok := o.DaysToClose(); ok {
				daysToClose = append(daysToClose, d)
			}
		case o.IsLost():
			m.Lost++
		case o.IsDisqualified():
			m.Disqualified++
		}
		if o.CostToAcquire > 0 {
			totalCost += o.CostToAcquire
		}
	}

	m.ConversionRate = float64(m.Won) / float64(m.TotalOutcomes)

	for _, tier := range []model.Tier{model.TierHot, model.TierWarm, model.TierCold, model.TierDisqualified} {
		var tm TierMetrics
		for i := range outcomes {
			if outcomes[i].Tier != tier {
				continue
			}
			tm.Total++
			if outcomes[i].IsWon() {
				tm.Won++
			}
		}
		if tm.Total > 0 {
			tm.ConversionRate = float64(tm.Won) / float64(tm.Total)
		}
		m.ByTier[tier] = tm
	}

	m.Revenue = RevenueMetrics{
		Total:     totalRevenue,
		TotalCost: totalCost,
	}
	if m.Won > 0 {
		m.Revenue.AvgDealSize = totalRevenue / float64(m.Won)
	}
	if totalCost > 0 {
		m.Revenue.ROI = (totalRevenue - totalCost) / totalCost
	}

	if len(daysToClose) > 0 {
		sum := 0
		fastest, slowest := daysToClose[0], daysToClose[0]
		for _, d := range daysToClose {
			sum += d
			if d < fastest {
				fastest = d
			}
			if d > slowest {
				slowest = d
			}
		}
		m.Timeline = TimelineMetrics{
			AvgDaysToClose: float64(sum) / float64(len(daysToClose)),
			FastestDeal:    fastest,
			SlowestDeal:    slowest,
		}
	}

	return m
}

// FailureFeed returns every lost or disqualified outcome, the input to
// graveyard mining.
func (l *Ledger) FailureFeed() []model.Outcome {
	var feed []model.Outcome
	for i := range l.outcomes {
		o := &l.outcomes[i]
		if o.IsLost() || o.IsDisqualified() {
			feed = append(feed, *o)
		}
	}
	return feed
}

package graveyard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadglass/internal/model"
)

// Analyze runs all pattern detectors over the full buried history and
// returns detected failure patterns. Every call recomputes from scratch;
// there is no incremental index, which caps throughput at graveyard
// sizes where a full scan per call is acceptable.
func (m *Miner) Analyze() []model.FailurePattern {
	now := time.Now().UTC()

	var patterns []model.FailurePattern
	patterns = append(patterns, m.competitorPatterns(now)...)
	patterns = append(patterns, m.goneDarkPatterns(now)...)
	patterns = append(patterns, m.weakQualificationPattern(now)...)
	patterns = append(patterns, m.categoryPatterns(now)...)

	zap.L().Info("graveyard: pattern analysis complete",
		zap.Int("buried", len(m.buried)),
		zap.Int("patterns", len(patterns)),
	)

	return patterns
}

// competitorPatterns flags any competitor named in at least two losses,
// reporting the top three by frequency.
func (m *Miner) competitorPatterns(now time.Time) []model.FailurePattern {
	counts := make(map[string]int)
	for i := range m.buried {
		if c := m.buried[i].CompetitorChosen; c != "" {
			counts[c]++
		}
	}

	var patterns []model.FailurePattern
	for _, competitor := range topKeys(counts, 3) {
		count := counts[competitor]
		if count < 2 {
			continue
		}
		var affected []string
		for i := range m.buried {
			if m.buried[i].CompetitorChosen == competitor {
				affected = append(affected, m.buried[i].LeadID)
			}
		}
		priority := model.PriorityMedium
		if count > 3 {
			priority = model.PriorityHigh
		}
		patterns = append(patterns, model.FailurePattern{
			Type:               fmt.Sprintf("frequent_loss_to_%s", strings.ReplaceAll(competitor, " ", "_")),
			Frequency:          count,
			Affected:           affected,
			AvgCoherenceAtFail: m.avgCoherence(affected),
			PrimaryTier:        m.primaryTier(affected),
			RecommendedAction:  fmt.Sprintf("Conduct competitive analysis vs %s. Create battle card.", competitor),
			Priority:           priority,
			DetectedAt:         now,
		})
	}
	return patterns
}

// goneDarkPatterns flags tiers with two or more went-dark outcomes,
// once at least three dark outcomes exist overall.
func (m *Miner) goneDarkPatterns(now time.Time) []model.FailurePattern {
	var dark []*model.Outcome
	for i := range m.buried {
		if m.buried[i].Type == model.OutcomeLostDark {
			dark = append(dark, &m.buried[i])
		}
	}
	if len(dark) < 3 {
		return nil
	}

	tierCounts := make(map[model.Tier]int)
	for _, o := range dark {
		tierCounts[o.Tier]++
	}

	var patterns []model.FailurePattern
	for _, tier := range []model.Tier{model.TierHot, model.TierWarm, model.TierCold, model.TierDisqualified, ""} {
		count := tierCounts[tier]
		if count < 2 {
			continue
		}
		var affected []string
		for _, o := range dark {
			if o.Tier == tier {
				affected = append(affected, o.LeadID)
			}
		}
		priority := model.PriorityMedium
		if tier == model.TierHot {
			priority = model.PriorityHigh
		}
		patterns = append(patterns, model.FailurePattern{
			Type:               fmt.Sprintf("%s_tier_going_dark", tier),
			Frequency:          count,
			Affected:           affected,
			AvgCoherenceAtFail: m.avgCoherence(affected),
			PrimaryTier:        tier,
			RecommendedAction:  fmt.Sprintf("Review engagement strategy for %s leads. May need different cadence/content.", tier),
			Priority:           priority,
			DetectedAt:         now,
		})
	}
	return patterns
}

// weakQualificationPattern fires when five or more disqualifications
// average below 0.8 coherence, pointing at an ICP/targeting problem.
func (m *Miner) weakQualificationPattern(now time.Time) []model.FailurePattern {
	var disqualified []*model.Outcome
	for i := range m.buried {
		if m.buried[i].Type == model.OutcomeDisqualified {
			disqualified = append(disqualified, &m.buried[i])
		}
	}
	if len(disqualified) < 5 {
		return nil
	}

	var sum float64
	affected := make([]string, 0, len(disqualified))
	for _, o := range disqualified {
		sum += o.CoherenceScore
		affected = append(affected, o.LeadID)
	}
	avg := sum / float64(len(disqualified))
	if avg >= 0.8 {
		return nil
	}

	return []model.FailurePattern{{
		Type:               "weak_qualification_criteria",
		Frequency:          len(disqualified),
		Affected:           affected,
		AvgCoherenceAtFail: avg,
		PrimaryTier:        model.TierDisqualified,
		RecommendedAction:  "Review hunting criteria. May be targeting wrong ICP.",
		Priority:           model.PriorityCritical,
		DetectedAt:         now,
	}}
}

// categoryPatterns flags nutrient categories occurring three or more
// times, reporting the top three by frequency.
func (m *Miner) categoryPatterns(now time.Time) []model.FailurePattern {
	counts := make(map[string]int)
	for _, n := range m.nutrients {
		counts[string(n.Category)]++
	}

	var patterns []model.FailurePattern
	for _, category := range topKeys(counts, 3) {
		count := counts[category]
		if count < 3 {
			continue
		}
		affectedSet := make(map[string]struct{})
		for _, n := range m.nutrients {
			if string(n.Category) == category {
				affectedSet[n.LeadID] = struct{}{}
			}
		}
		affected := make([]string, 0, len(affectedSet))
		for id := range affectedSet {
			affected = append(affected, id)
		}
		sort.Strings(affected)

		priority := model.PriorityMedium
		if count > 5 {
			priority = model.PriorityHigh
		}
		patterns = append(patterns, model.FailurePattern{
			Type:               fmt.Sprintf("recurring_%s_issues", category),
			Frequency:          count,
			Affected:           affected,
			AvgCoherenceAtFail: m.avgCoherenceForCategory(model.NutrientCategory(category)),
			PrimaryTier:        m.primaryTier(affected),
			RecommendedAction:  fmt.Sprintf("Systematic %s issues detected. Review %s processes.", category, category),
			Priority:           priority,
			DetectedAt:         now,
		})
	}
	return patterns
}

// topKeys returns up to n keys ordered by descending count, breaking
// ties lexically so output stays deterministic.
func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func (m *Miner) avgCoherence(leadIDs []string) float64 {
	ids := make(map[string]struct{}, len(leadIDs))
	for _, id := range leadIDs {
		ids[id] = struct{}{}
	}

	var sum float64
	var n int
	for i := range m.buried {
		o := &m.buried[i]
		if _, ok := ids[o.LeadID]; ok && o.CoherenceScore > 0 {
			sum += o.CoherenceScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (m *Miner) avgCoherenceForCategory(category model.NutrientCategory) float64 {
	var sum float64
	var n int
	for _, nut := range m.nutrients {
		if nut.Category == category && nut.CoherenceScore > 0 {
			sum += nut.CoherenceScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// primaryTier is the most common qualification tier among the given
// leads, or empty when none recorded one.
func (m *Miner) primaryTier(leadIDs []string) model.Tier {
	ids := make(map[string]struct{}, len(leadIDs))
	for _, id := range leadIDs {
		ids[id] = struct{}{}
	}

	counts := make(map[model.Tier]int)
	for i := range m.buried {
		o := &m.buried[i]
		if _, ok := ids[o.LeadID]; ok && o.Tier != "" {
			counts[o.Tier]++
		}
	}

	var best model.Tier
	var bestCount int
	for _, tier := range []model.Tier{model.TierHot, model.TierWarm, model.TierCold, model.TierDisqualified} {
		if counts[tier] > bestCount {
			best = tier
			bestCount = counts[tier]
		}
	}
	return best
}

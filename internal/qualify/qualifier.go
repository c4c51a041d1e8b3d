// Package qualify routes perceived leads into pipeline stages by tier
// and priority.
package qualify

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadglass/internal/lens"
	"github.com/sells-group/leadglass/internal/model"
)

// tierBasePriority is the starting priority per qualification tier.
var tierBasePriority = map[model.Tier]float64{
	model.TierHot:          1.0,
	model.TierWarm:         0.6,
	model.TierCold:         0.3,
	model.TierDisqualified: 0.0,
}

// Stats holds running qualification counters for one qualifier.
type Stats struct {
	Total        int    `json:"total_qualified"`
	Hot          int    `json:"hot"`
	Warm         int    `json:"warm"`
	Cold         int    `json:"cold"`
	Disqualified int    `json:"disqualified"`
	LensUsed     string `json:"lens_used"`
	TrialBranch  string `json:"trial_branch"`
}

// QualificationRate is the share of leads not disqualified.
func (s Stats) QualificationRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Total-s.Disqualified) / float64(s.Total)
}

// HotRate is the share of leads landing in the hot tier.
func (s Stats) HotRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Hot) / float64(s.Total)
}

// Qualifier perceives leads through one calibration and assigns routing.
// It assumes a single logical writer; counters are not safe for
// concurrent use across goroutines.
type Qualifier struct {
	cal    lens.Calibration
	branch string
	stats  Stats
}

// New creates a Qualifier for the given calibration and trial branch.
// An empty branch defaults to classic.
func New(cal lens.Calibration, branch string) *Qualifier {
	if branch == "" {
		branch = model.BranchClassic
	}
	return &Qualifier{
		cal:    cal,
		branch: branch,
		stats:  Stats{LensUsed: cal.Name, TrialBranch: branch},
	}
}

// Qualify perceives a single lead and returns its routing decision.
func (q *Qualifier) Qualify(lead *model.Lead) (*model.Qualification, error) {
	if lead == nil {
		return nil, eris.New("qualify: nil lead")
	}
	if lead.ID == "" {
		return nil, eris.Errorf("qualify: lead %q missing id", lead.CompanyName)
	}

	coherence := lens.Perceive(lead, q.cal)

	result := &model.Qualification{
		LeadID:      lead.ID,
		CompanyName: lead.CompanyName,
		Coherence:   coherence,
		Tier:        coherence.Tier,
		Qualified:   coherence.Tier != model.TierDisqualified,
		NextStage:   model.StageForTier(coherence.Tier),
		Priority:    priority(coherence),
		QualifiedAt: time.Now().UTC(),
		QualifiedBy: "lens_auto",
		LensUsed:    q.cal.Name,
		TrialBranch: q.branch,
	}

	q.record(result.Tier)

	zap.L().Info("qualify: lead scored",
		zap.String("lead_id", lead.ID),
		zap.String("company", lead.CompanyName),
		zap.String("tier", string(result.Tier)),
		zap.Float64("coherence", coherence.Score),
		zap.Float64("priority", result.Priority),
		zap.String("next_stage", string(result.NextStage)),
		zap.String("branch", q.branch),
	)

	return result, nil
}

// QualifyBatch qualifies multiple leads and returns the results sorted
// by non-increasing priority. Per-lead failures are logged and skipped;
// they never abort the batch.
func (q *Qualifier) QualifyBatch(leads []*model.Lead) []*model.Qualification {
	results := make([]*model.Qualification, 0, len(leads))
	for _, lead := range leads {
		result, err := q.Qualify(lead)
		if err != nil {
			name := ""
			if lead != nil {
				name = lead.CompanyName
			}
			zap.L().Error("qualify: batch record failed",
				zap.String("company", name),
				zap.Error(err),
			)
			continue
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Priority > results[j].Priority
	})

	s := q.stats
	zap.L().Info("qualify: batch complete",
		zap.Int("leads", len(leads)),
		zap.Int("hot", s.Hot),
		zap.Int("warm", s.Warm),
		zap.Int("cold", s.Cold),
		zap.Int("disqualified", s.Disqualified),
	)

	return results
}

// Stats returns a copy of the running counters.
func (q *Qualifier) Stats() Stats {
	return q.stats
}

// Branch returns the trial branch label this qualifier records under.
func (q *Qualifier) Branch() string {
	return q.branch
}

// priority is the tier base plus urgency and authority boosts, capped
// at 1.
func priority(c model.Coherence) float64 {
	base := tierBasePriority[c.Tier]
	return math.Min(1.0, base+c.QUrgency*0.2+c.RhoAuthority*0.15)
}

func (q *Qualifier) record(tier model.Tier) {
	q.stats.Total++
	switch tier {
	case model.TierHot:
		q.stats.Hot++
	case model.TierWarm:
		q.stats.Warm++
	case model.TierCold:
		q.stats.Cold++
	case model.TierDisqualified:
		q.stats.Disqualified++
	}
}

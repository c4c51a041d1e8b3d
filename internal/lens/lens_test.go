package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadglass/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func TestSaturate(t *testing.T) {
	assert.Zero(t, saturate(0))
	assert.Zero(t, saturate(-0.5))

	// Peak of the curve sits at raw = sqrt(km*ki) = 0.4.
	assert.InDelta(t, 0.5, saturate(0.4), 1e-9)

	// The tail decreases past the peak. That is intentional.
	assert.Greater(t, saturate(0.4), saturate(1.0))
	assert.InDelta(t, 0.40816, saturate(1.0), 1e-4)
}

func TestPerceive_DimensionsBounded(t *testing.T) {
	lead := &model.Lead{
		ID:               "lead-1",
		CompanyName:      "Acme Corp",
		Source:           "referral",
		ContactTitle:     "Chief Technology Officer",
		CompanySize:      "enterprise",
		Industry:         "saas",
		Timeline:         "immediate",
		IsDecisionMaker:  boolPtr(true),
		BudgetMentioned:  boolPtr(true),
		PainPoints:       []string{"scaling", "cost", "reliability", "security"},
		UseCase:          "replace legacy vendor",
		TechStack:        []string{"go", "postgres", "kubernetes", "redis", "kafka"},
		MeetingRequests:  3,
		WebsiteVisits:    20,
		ContentDownloads: []string{"whitepaper", "case-study", "pricing", "webinar"},
		Notes:            "urgent asap critical deadline struggling need now",
	}

	c := Perceive(lead, DefaultCalibration())

	for name, v := range map[string]float64{
		"psi": c.PsiIntent,
		"rho": c.RhoAuthority,
		"q":   c.QUrgency,
		"f":   c.FFit,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	assert.LessOrEqual(t, c.Score, 4.0)
	assert.GreaterOrEqual(t, c.Score, 0.0)
	assert.LessOrEqual(t, c.Confidence, 1.0)
}

func TestPerceive_Tiers(t *testing.T) {
	tests := []struct {
		name string
		lead *model.Lead
		want model.Tier
	}{
		{
			name: "hot: strong on every dimension",
			lead: &model.Lead{
				ID:              "hot-1",
				CompanyName:     "Initech",
				Source:          "referral",
				ContactTitle:    "VP of Engineering",
				CompanySize:     "enterprise",
				Industry:        "saas",
				Timeline:        "immediate",
				IsDecisionMaker: boolPtr(true),
				BudgetMentioned: boolPtr(true),
				PainPoints:      []string{"scaling", "costs"},
				UseCase:         "consolidate tooling",
				TechStack:       []string{"go", "postgres"},
				MeetingRequests: 2,
				WebsiteVisits:   6,
				Notes:           "urgent need, asap, critical renewal deadline",
			},
			want: model.TierHot,
		},
		{
			name: "warm: authority and fit without coherence to spare",
			lead: &model.Lead{
				ID:           "warm-1",
				CompanyName:  "Globex",
				Source:       "inbound",
				ContactTitle: "Director of Operations",
				CompanySize:  "mid-market",
				Industry:     "fintech",
				Timeline:     "this_quarter",
				UseCase:      "automate reporting",
			},
			want: model.TierWarm,
		},
		{
			name: "cold: barely any signal",
			lead: &model.Lead{
				ID:          "cold-1",
				CompanyName: "Umbrella",
				Source:      "unknown",
				Industry:    "software",
			},
			want: model.TierCold,
		},
		{
			name: "disqualified: fit below the floor",
			lead: &model.Lead{
				ID:                   "disq-fit",
				CompanyName:          "Farmhand LLC",
				Source:               "inbound",
				Industry:             "agriculture",
				ContactTitle:         "CEO",
				IsDecisionMaker:      boolPtr(true),
				BudgetMentioned:      boolPtr(true),
				Timeline:             "immediate",
				CompetitorsMentioned: []string{"BigAg Suite"},
			},
			want: model.TierDisqualified,
		},
		{
			name: "disqualified: no authority at all",
			lead: &model.Lead{
				ID:              "disq-rho",
				CompanyName:     "Hooli",
				Source:          "inbound",
				Industry:        "saas",
				CompanySize:     "startup",
				ContactTitle:    "Intern",
				IsDecisionMaker: boolPtr(false),
			},
			want: model.TierDisqualified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Perceive(tt.lead, DefaultCalibration())
			assert.Equal(t, tt.want, c.Tier, "score=%.3f psi=%.2f rho=%.2f q=%.2f f=%.2f",
				c.Score, c.PsiIntent, c.RhoAuthority, c.QUrgency, c.FFit)
		})
	}
}

func TestPerceive_Signals(t *testing.T) {
	hot := &model.Lead{
		ID:              "sig-1",
		CompanyName:     "Initech",
		Source:          "referral",
		ContactTitle:    "CTO",
		CompanySize:     "enterprise",
		Industry:        "saas",
		Timeline:        "immediate",
		IsDecisionMaker: boolPtr(true),
		BudgetMentioned: boolPtr(true),
		PainPoints:      []string{"scaling", "costs"},
		UseCase:         "consolidate tooling",
		TechStack:       []string{"go", "postgres"},
		MeetingRequests: 2,
		Notes:           "urgent asap critical",
	}

	c := Perceive(hot, DefaultCalibration())
	assert.Contains(t, c.PositiveSignals, "Decision-making authority")
	assert.Contains(t, c.PositiveSignals, "Strong intent signals")
	assert.Contains(t, c.PositiveSignals, "Referral lead (ecosystem validated)")
	assert.Contains(t, c.PositiveSignals, "Budget discussed")
	assert.Contains(t, c.NextActions, "Schedule demo/meeting ASAP")
	assert.Empty(t, c.Disqualifiers)

	poorFit := &model.Lead{
		ID:                   "sig-2",
		CompanyName:          "Farmhand LLC",
		Source:               "inbound",
		Industry:             "agriculture",
		CompetitorsMentioned: []string{"BigAg Suite"},
	}
	c = Perceive(poorFit, DefaultCalibration())
	assert.Contains(t, c.Disqualifiers, "Poor ICP fit")
	assert.Contains(t, c.WarningSignals, "Currently using: BigAg Suite")
	require.NotEmpty(t, c.NextActions)
	assert.Equal(t, "Archive - does not meet qualification criteria", c.NextActions[0])
}

func TestPerceive_EnterpriseSaasHotScenario(t *testing.T) {
	cal := NewRegistry().Resolve("enterprise_saas")

	lead := &model.Lead{
		ID:              "hot001",
		CompanyName:     "CloudScale Inc",
		Source:          "referral",
		ContactTitle:    "VP of Engineering",
		CompanySize:     "enterprise",
		Industry:        "saas",
		Timeline:        "this_quarter",
		IsDecisionMaker: boolPtr(true),
		BudgetMentioned: boolPtr(true),
		PainPoints:      []string{"manual processes", "scaling issues", "team burnout"},
		UseCase:         "automate deployment pipeline",
		MeetingRequests: 2,
	}

	c := Perceive(lead, cal)
	assert.Equal(t, model.TierHot, c.Tier,
		"score=%.4f rho=%.3f q=%.3f", c.Score, c.RhoAuthority, c.QUrgency)
	assert.Contains(t, c.PositiveSignals, "Decision-making authority")
	assert.Equal(t, "enterprise_saas", c.LensUsed)
	assert.GreaterOrEqual(t, c.RhoAuthority, cal.AuthorityThreshold)

	// Without the title/firmographic context the same buying signals
	// only clear the warm bar under this calibration.
	sparse := &model.Lead{
		ID:              "hot001-sparse",
		CompanyName:     "CloudScale Inc",
		Source:          "referral",
		Timeline:        "this_quarter",
		IsDecisionMaker: boolPtr(true),
		BudgetMentioned: boolPtr(true),
		PainPoints:      []string{"manual processes", "scaling issues", "team burnout"},
		MeetingRequests: 2,
	}
	assert.Equal(t, model.TierWarm, Perceive(sparse, cal).Tier)
}

func TestPerceive_WeightsShiftTheScore(t *testing.T) {
	// A lead heavy on authority and light on urgency should score higher
	// under an authority-weighted calibration.
	lead := &model.Lead{
		ID:              "shift-1",
		CompanyName:     "Globex",
		Source:          "outbound",
		ContactTitle:    "CFO",
		CompanySize:     "enterprise",
		Industry:        "fintech",
		IsDecisionMaker: boolPtr(true),
		BudgetMentioned: boolPtr(true),
	}

	authority := Calibration{
		Name:               "authority_heavy",
		Weights:            Weights{Intent: 0.1, Authority: 0.6, Urgency: 0.1, Fit: 0.2},
		AuthorityThreshold: 0.5,
	}
	urgency := Calibration{
		Name:               "urgency_heavy",
		Weights:            Weights{Intent: 0.1, Authority: 0.1, Urgency: 0.6, Fit: 0.2},
		AuthorityThreshold: 0.5,
	}

	a := Perceive(lead, authority)
	u := Perceive(lead, urgency)
	assert.Greater(t, a.Score, u.Score)
	assert.Equal(t, "authority_heavy", a.LensUsed)
}

func TestPerceive_Confidence(t *testing.T) {
	sparse := &model.Lead{ID: "conf-1", CompanyName: "Acme", Source: "unknown"}
	full := &model.Lead{
		ID:              "conf-2",
		CompanyName:     "Acme",
		Source:          "inbound",
		ContactName:     "Jordan Reyes",
		ContactTitle:    "CTO",
		Industry:        "saas",
		CompanySize:     "smb",
		PainPoints:      []string{"costs"},
		IsDecisionMaker: boolPtr(true),
		BudgetMentioned: boolPtr(false),
		Timeline:        "this_year",
		Notes:           "looking around",
	}

	assert.Zero(t, Perceive(sparse, DefaultCalibration()).Confidence)
	assert.InDelta(t, 1.0, Perceive(full, DefaultCalibration()).Confidence, 1e-9)
}

package lens

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/leadglass/internal/model"
)

// Saturation constants for the urgency transform.
const (
	km = 0.2
	ki = 0.8
)

// couplingStrength rewards leads that are strong in both authority and
// intent at the same time.
const couplingStrength = 0.15

var sourceWeights = map[string]float64{
	"inbound":  0.3,
	"referral": 0.25,
	"event":    0.2,
	"content":  0.15,
	"outbound": 0.1,
	"unknown":  0.05,
}

var authorityTitles = []string{
	"ceo", "cto", "cfo", "coo", "vp", "director", "head of", "chief",
}

var timelineWeights = map[string]float64{
	"immediate":    0.4,
	"this_quarter": 0.3,
	"next_quarter": 0.2,
	"this_year":    0.1,
}

var urgencyMarkers = []string{
	"urgent", "asap", "immediately", "critical", "deadline",
	"struggling", "failing", "breaking", "desperate", "need now",
}

var targetIndustries = []string{
	"technology", "saas", "software", "fintech", "healthcare tech",
}

// Perceive scores a lead through the given calibration. It is a pure
// function: no I/O, no mutation of the lead, total over any well-formed
// record (missing optional fields contribute zero).
func Perceive(lead *model.Lead, cal Calibration) model.Coherence {
	psi := scoreIntent(lead)
	rho := scoreAuthority(lead)
	qRaw := scoreUrgencyRaw(lead)
	f := scoreFit(lead)

	q := saturate(qRaw)
	coherence := combine(psi, rho, q, f, cal.Weights)
	tier := determineTier(coherence, rho, q, f, cal.AuthorityThreshold)
	positive, warning, disqualifiers := detectSignals(lead, psi, rho, q, f)

	return model.Coherence{
		PsiIntent:       psi,
		RhoAuthority:    rho,
		QUrgency:        q,
		FFit:            f,
		Score:           coherence,
		Tier:            tier,
		LensUsed:        cal.Name,
		Timestamp:       time.Now().UTC(),
		Confidence:      scoreConfidence(lead),
		PositiveSignals: positive,
		WarningSignals:  warning,
		Disqualifiers:   disqualifiers,
		NextActions:     recommendActions(tier, lead, psi, rho, q),
	}
}

// saturate applies substrate-inhibition kinetics to the raw urgency sum:
// q = raw / (Km + raw + raw^2/Ki). The curve rises from zero, peaks,
// then decreases again for very large inputs. The non-monotonic tail is
// part of the scoring model and must not be "fixed".
func saturate(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / (km + raw + raw*raw/ki)
}

// scoreIntent returns the Ψ dimension: need/solution match in [0,1].
func scoreIntent(lead *model.Lead) float64 {
	var score float64

	if w, ok := sourceWeights[lead.Source]; ok {
		score += w
	} else {
		score += 0.05
	}

	if len(lead.PainPoints) > 0 {
		score += math.Min(float64(len(lead.PainPoints))*0.1, 0.3)
	}
	if lead.UseCase != "" {
		score += 0.2
	}
	if lead.MeetingRequests > 0 {
		score += 0.15
	}
	if len(lead.ContentDownloads) > 0 {
		score += math.Min(float64(len(lead.ContentDownloads))*0.05, 0.15)
	}

	return math.Min(score, 1.0)
}

// scoreAuthority returns the ρ dimension: decision power and budget
// signals in [0,1]. An unknown decision-maker flag scores a neutral
// 0.15 rather than zero.
func scoreAuthority(lead *model.Lead) float64 {
	var score float64

	switch {
	case lead.IsDecisionMaker == nil:
		score += 0.15
	case *lead.IsDecisionMaker:
		score += 0.35
	}

	if lead.ContactTitle != "" {
		title := strings.ToLower(lead.ContactTitle)
		for _, t := range authorityTitles {
			if strings.Contains(title, t) {
				score += 0.25
				break
			}
		}
	}

	if lead.BudgetMentioned != nil && *lead.BudgetMentioned {
		score += 0.2
	}

	switch lead.CompanySize {
	case "enterprise":
		score += 0.15
	case "mid-market":
		score += 0.2
	case "smb":
		score += 0.15
	case "startup":
		score += 0.1
	default:
		score += 0.1
	}

	return math.Min(score, 1.0)
}

// scoreUrgencyRaw returns the pre-saturation urgency sum. The caller
// passes it through saturate before use.
func scoreUrgencyRaw(lead *model.Lead) float64 {
	var score float64

	if lead.Timeline != "" {
		if w, ok := timelineWeights[lead.Timeline]; ok {
			score += w
		} else {
			score += 0.1
		}
	}

	text := strings.ToLower(lead.AnalysisText())
	var markerHits int
	for _, m := range urgencyMarkers {
		if strings.Contains(text, m) {
			markerHits++
		}
	}
	score += math.Min(float64(markerHits)*0.1, 0.3)

	if lead.MeetingRequests > 1 {
		score += 0.15
	}
	if lead.WebsiteVisits > 5 {
		score += 0.1
	}

	return math.Min(score, 1.0)
}

// scoreFit returns the f dimension: ICP alignment in [0,1].
func scoreFit(lead *model.Lead) float64 {
	var score float64

	if lead.Industry != "" {
		industry := strings.ToLower(lead.Industry)
		for _, t := range targetIndustries {
			if strings.Contains(industry, t) {
				score += 0.25
				break
			}
		}
	}

	if len(lead.TechStack) > 0 {
		score += math.Min(float64(len(lead.TechStack))*0.05, 0.2)
	}

	switch lead.CompanySize {
	case "mid-market", "enterprise":
		score += 0.2
	case "smb":
		score += 0.15
	}

	if len(lead.CompetitorsMentioned) == 0 {
		score += 0.15
	} else {
		score += 0.1
	}

	if lead.Source == "referral" {
		score += 0.15
	}

	return math.Min(score, 1.0)
}

// combine folds the four dimensions into the 0-4 coherence score,
// including the authority-intent coupling cross-term.
func combine(psi, rho, q, f float64, w Weights) float64 {
	coupling := couplingStrength * rho * psi
	coherence := (w.Intent*psi + w.Authority*rho + w.Urgency*q + w.Fit*f + coupling) * 4
	return math.Min(coherence, 4.0)
}

// determineTier applies the tier policy in strict order: hard fit and
// authority floors first, then hot, warm, cold.
func determineTier(coherence, rho, q, f, authorityThreshold float64) model.Tier {
	if f < 0.2 {
		return model.TierDisqualified
	}
	if rho < 0.15 {
		return model.TierDisqualified
	}
	if coherence >= 2.5 && rho >= authorityThreshold && q >= 0.3 {
		return model.TierHot
	}
	if coherence >= 1.5 {
		return model.TierWarm
	}
	return model.TierCold
}

// detectSignals runs the fixed rule tables for positive, warning, and
// disqualifying signals.
func detectSignals(lead *model.Lead, psi, rho, q, f float64) (positive, warning, disqualifiers []string) {
	if psi >= 0.6 {
		positive = append(positive, "Strong intent signals")
	}
	if rho >= 0.6 {
		positive = append(positive, "Decision-making authority")
	}
	if q >= 0.5 {
		positive = append(positive, "Urgency expressed")
	}
	if f >= 0.6 {
		positive = append(positive, "Strong ICP fit")
	}
	if lead.Source == "referral" {
		positive = append(positive, "Referral lead (ecosystem validated)")
	}
	if lead.BudgetMentioned != nil && *lead.BudgetMentioned {
		positive = append(positive, "Budget discussed")
	}

	if rho < 0.4 && psi > 0.5 {
		warning = append(warning, "Intent without authority - may need champion")
	}
	if q > 0.7 && rho < 0.4 {
		warning = append(warning, "High urgency + low authority - may be researcher")
	}
	if len(lead.CompetitorsMentioned) > 0 {
		warning = append(warning, fmt.Sprintf("Currently using: %s", strings.Join(lead.CompetitorsMentioned, ", ")))
	}
	if psi < 0.3 {
		warning = append(warning, "Unclear intent - needs discovery")
	}

	if f < 0.2 {
		disqualifiers = append(disqualifiers, "Poor ICP fit")
	}
	if rho < 0.15 && lead.CompanySize == "enterprise" {
		disqualifiers = append(disqualifiers, "Too junior for enterprise deal")
	}

	return positive, warning, disqualifiers
}

// recommendActions returns the per-tier action template, extended by
// dimension-conditional items.
func recommendActions(tier model.Tier, lead *model.Lead, psi, rho, q float64) []string {
	var actions []string

	switch tier {
	case model.TierDisqualified:
		actions = append(actions, "Archive - does not meet qualification criteria")

	case model.TierHot:
		actions = append(actions, "Schedule demo/meeting ASAP")
		if lead.BudgetMentioned == nil || !*lead.BudgetMentioned {
			actions = append(actions, "Confirm budget in first call")
		}
		if q >= 0.6 {
			actions = append(actions, "Offer accelerated timeline")
		}

	case model.TierWarm:
		if psi < 0.5 {
			actions = append(actions, "Discovery call to understand needs")
		}
		if rho < 0.5 {
			actions = append(actions, "Identify decision-maker / champion")
		}
		if q < 0.3 {
			actions = append(actions, "Create urgency - share ROI data")
		}
		actions = append(actions, "Add to nurture sequence")

	case model.TierCold:
		actions = append(actions, "Add to long-term nurture")
		if psi < 0.3 {
			actions = append(actions, "Send educational content")
		}
		actions = append(actions, "Re-evaluate in 30 days")
	}

	return actions
}

// scoreConfidence estimates data completeness over a fixed 10-point
// denominator; any free text is worth two points.
func scoreConfidence(lead *model.Lead) float64 {
	var points int

	if lead.ContactName != "" {
		points++
	}
	if lead.ContactTitle != "" {
		points++
	}
	if lead.Industry != "" {
		points++
	}
	if lead.CompanySize != "" {
		points++
	}
	if len(lead.PainPoints) > 0 {
		points++
	}
	if lead.IsDecisionMaker != nil {
		points++
	}
	if lead.BudgetMentioned != nil {
		points++
	}
	if lead.Timeline != "" {
		points++
	}
	if strings.TrimSpace(lead.AnalysisText()) != "" {
		points += 2
	}

	return float64(points) / 10
}

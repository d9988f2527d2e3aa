package domain

import (
	"time"
)

// GateRequirements are the per-layer unlock thresholds over the prior
// layer's topics.
type GateRequirements struct {
	MinCoverage    float64 // fraction of prior-layer topics attempted
	MinAvgRating   float64 // confidence-weighted
	MaxAvgRD       float64 // confidence-weighted
	MinSubmissions int
	MaxReviewDays  float64 // recency: days since last review
}

// gateTable holds the unlock requirements for each gated layer.
// Fundamentals is never gated.
var gateTable = map[Layer]GateRequirements{
	LayerIntermediate: {
		MinCoverage:    0.9,
		MinAvgRating:   1650,
		MaxAvgRD:       100,
		MinSubmissions: 10,
		MaxReviewDays:  30,
	},
	LayerPatterns: {
		MinCoverage:    0.9,
		MinAvgRating:   1700,
		MaxAvgRD:       80,
		MinSubmissions: 20,
		MaxReviewDays:  30,
	},
}

// Informational weights for the overall-progress score. The weighted
// score is reported but never gates anything.
var progressWeights = struct {
	coverage    float64
	rating      float64
	rd          float64
	submissions float64
	recency     float64
}{
	coverage:    0.25,
	rating:      0.30,
	rd:          0.20,
	submissions: 0.15,
	recency:     0.10,
}

// Criterion reports one unlock criterion's current value against its
// requirement.
type Criterion struct {
	Current  float64
	Required float64
	Met      bool
}

// LayerProgress is the derived, recomputable unlock decision for one
// target layer. Only the unlock flag and timestamp are persisted state.
type LayerProgress struct {
	Layer           Layer
	Coverage        Criterion
	AvgRating       Criterion
	AvgRD           Criterion
	Submissions     Criterion
	Recency         Criterion
	OverallProgress float64
	AllCriteriaMet  bool
	Unlocked        bool
	UnlockedAt      *time.Time
}

// GateInput is the snapshot the gate aggregates: the prior layer's
// topics, the skills that exist for them, and whether the sequencing
// requirement (the prior gated layer being unlocked) already holds.
type GateInput struct {
	PriorTopics   []Topic
	Skills        map[string]*Skill // keyed by topic ID; missing = never attempted
	PriorUnlocked bool              // for PATTERNS: is INTERMEDIATE unlocked
	Now           time.Time
}

// ProgressionGate aggregates per-layer mastery into unlock decisions.
type ProgressionGate struct{}

// NewProgressionGate creates a progression gate.
func NewProgressionGate() *ProgressionGate {
	return &ProgressionGate{}
}

// Evaluate computes the five criteria for target and their AND.
// PATTERNS can never report AllCriteriaMet while INTERMEDIATE is still
// locked, regardless of its own numbers. Unlock monotonicity (never
// re-locking) is enforced by the caller against persisted state.
func (p *ProgressionGate) Evaluate(target Layer, in GateInput) (LayerProgress, error) {
	req, ok := gateTable[target]
	if !ok {
		return LayerProgress{}, ErrUnknownLayer
	}

	lp := LayerProgress{Layer: target}

	attempted := 0
	totalSubmissions := 0
	var lastReview *time.Time
	var weightSum, ratingSum, rdSum float64

	for _, topic := range in.PriorTopics {
		skill, ok := in.Skills[topic.ID]
		if !ok || skill.TimesEncountered == 0 {
			continue
		}
		attempted++
		totalSubmissions += skill.TimesEncountered

		// Confidence weighting: tighter uncertainty counts for more.
		weight := 1 / skill.RD
		weightSum += weight
		ratingSum += skill.Rating * weight
		rdSum += skill.RD * weight

		if skill.LastPracticedAt != nil && (lastReview == nil || skill.LastPracticedAt.After(*lastReview)) {
			lastReview = skill.LastPracticedAt
		}
	}

	coverage := 0.0
	if len(in.PriorTopics) > 0 {
		coverage = float64(attempted) / float64(len(in.PriorTopics))
	}
	avgRating := 0.0
	avgRD := RDMax
	if weightSum > 0 {
		avgRating = ratingSum / weightSum
		avgRD = rdSum / weightSum
	}
	reviewDays := req.MaxReviewDays + 1
	if lastReview != nil {
		reviewDays = in.Now.Sub(*lastReview).Hours() / 24
	}

	lp.Coverage = Criterion{Current: coverage, Required: req.MinCoverage, Met: coverage >= req.MinCoverage}
	lp.AvgRating = Criterion{Current: avgRating, Required: req.MinAvgRating, Met: avgRating >= req.MinAvgRating}
	lp.AvgRD = Criterion{Current: avgRD, Required: req.MaxAvgRD, Met: avgRD <= req.MaxAvgRD}
	lp.Submissions = Criterion{Current: float64(totalSubmissions), Required: float64(req.MinSubmissions), Met: totalSubmissions >= req.MinSubmissions}
	lp.Recency = Criterion{Current: reviewDays, Required: req.MaxReviewDays, Met: reviewDays <= req.MaxReviewDays}

	lp.OverallProgress = overallProgress(lp)

	lp.AllCriteriaMet = lp.Coverage.Met && lp.AvgRating.Met && lp.AvgRD.Met && lp.Submissions.Met && lp.Recency.Met

	// Sequential dependency: PATTERNS waits for INTERMEDIATE even when
	// its own five criteria pass.
	if target == LayerPatterns && !in.PriorUnlocked {
		lp.AllCriteriaMet = false
	}

	return lp, nil
}

// overallProgress folds the criteria into one informational score in
// [0,1]. Lower-is-better criteria contribute an inverted ratio.
func overallProgress(lp LayerProgress) float64 {
	w := progressWeights
	score := w.coverage*ratioToward(lp.Coverage.Current, lp.Coverage.Required) +
		w.rating*ratioToward(lp.AvgRating.Current, lp.AvgRating.Required) +
		w.rd*ratioAway(lp.AvgRD.Current, lp.AvgRD.Required) +
		w.submissions*ratioToward(lp.Submissions.Current, lp.Submissions.Required) +
		w.recency*ratioAway(lp.Recency.Current, lp.Recency.Required)
	return clamp(score, 0, 1)
}

// ratioToward measures progress toward a minimum requirement.
func ratioToward(current, required float64) float64 {
	if required <= 0 {
		return 1
	}
	return clamp(current/required, 0, 1)
}

// ratioAway measures progress toward staying under a maximum.
func ratioAway(current, required float64) float64 {
	if current <= 0 {
		return 1
	}
	return clamp(required/current, 0, 1)
}

// Requirements exposes the gate table for reporting surfaces.
func (p *ProgressionGate) Requirements(target Layer) (GateRequirements, bool) {
	req, ok := gateTable[target]
	return req, ok
}

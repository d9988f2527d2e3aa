package domain

import "time"

// Stuck criteria. A learner is stuck on a topic only when all four
// hold after a rating update; three of four flags the topic as at risk.
var stuckThresholds = struct {
	maxRating     float64
	minEncounters int
	minRD         float64
	minVolatility float64
}{
	maxRating:     1450,
	minEncounters: 4,
	minRD:         180,
	minVolatility: 0.12,
}

// stuckCriteria is how many criteria must hold.
const (
	stuckCriteria  = 4
	atRiskCriteria = 3
)

// StuckStatus reports the per-criterion breakdown of a stuck
// evaluation.
type StuckStatus struct {
	LowRating      bool
	ManyEncounters bool
	HighRD         bool
	HighVolatility bool
	CriteriaMet    int
	Stuck          bool
	AtRisk         bool
}

// StuckDetector is a pure predicate over skill records; it also owns
// the stuck-since transition rule.
type StuckDetector struct{}

// NewStuckDetector creates a stuck detector.
func NewStuckDetector() *StuckDetector {
	return &StuckDetector{}
}

// IsStuck reports whether all four criteria currently hold. It never
// mutates the record.
func (d *StuckDetector) IsStuck(s *Skill) bool {
	return d.Status(s).Stuck
}

// Status evaluates every criterion independently.
func (d *StuckDetector) Status(s *Skill) StuckStatus {
	t := stuckThresholds
	st := StuckStatus{
		LowRating:      s.Rating < t.maxRating,
		ManyEncounters: s.TimesEncountered >= t.minEncounters,
		HighRD:         s.RD > t.minRD,
		HighVolatility: s.Volatility > t.minVolatility,
	}
	for _, met := range []bool{st.LowRating, st.ManyEncounters, st.HighRD, st.HighVolatility} {
		if met {
			st.CriteriaMet++
		}
	}
	st.Stuck = st.CriteriaMet == stuckCriteria
	st.AtRisk = st.CriteriaMet == atRiskCriteria
	return st
}

// Apply re-evaluates the record and applies the transition rule:
// stuckSince is set only on a false-to-true transition, preserved
// across repeated true evaluations, and cleared on true-to-false.
// Returns the new stuck state.
func (d *StuckDetector) Apply(s *Skill, now time.Time) bool {
	stuck := d.IsStuck(s)
	switch {
	case stuck && !s.IsStuck:
		since := now
		s.StuckSince = &since
	case !stuck && s.IsStuck:
		s.StuckSince = nil
	}
	s.IsStuck = stuck
	return stuck
}

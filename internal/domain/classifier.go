package domain

import (
	"fmt"
	"time"
)

// Canonical performance scores. Failed encounters score by cause, not
// merely outcome; positive detections bypass the classifier entirely.
const (
	ScoreIdiomatic     = 1.0 // clean and idiomatic
	ScoreClean         = 0.8 // clean but not idiomatic
	ScoreSlip          = 0.6
	ScoreMistake       = 0.3
	ScoreMisconception = 0.0
)

// Classifier thresholds, kept in one table so each boundary is
// independently testable.
var classifierThresholds = struct {
	slipMinRating       float64
	slipWindow          int
	slipMinHistoryScore float64
	misconMaxRating     float64
	misconMinEncounters int
	misconMinVolatility float64
}{
	slipMinRating:       1650,
	slipWindow:          2,
	slipMinHistoryScore: 0.8,
	misconMaxRating:     1450,
	misconMinEncounters: 3,
	misconMinVolatility: 0.12,
}

// HistoryEntry is the slice of a performance record the classifier
// consults. Entries are ordered most recent first.
type HistoryEntry struct {
	Score     float64
	ErrorType *ErrorType
	CreatedAt time.Time
}

// Classification is the classifier verdict: a cause label plus the
// canonical performance score the rating engine should see.
type Classification struct {
	ErrorType ErrorType
	Score     float64
	Reasoning string
}

// Classifier assigns an error-cause label to a failed encounter.
// Rules are evaluated first-match-wins; MISTAKE is the default.
type Classifier struct{}

// NewClassifier creates an error classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify labels a failed encounter. recent is the most-recent-first
// performance window (at most HistoryWindow entries).
//
// SLIP requires a proficient rating, a trivial error, and two prior
// strong scores — fewer than two history entries disqualifies, so new
// learners cannot slip. MISCONCEPTION requires a low rating after
// repeated encounters with persistently high volatility.
func (c *Classifier) Classify(skill *Skill, isTrivialError bool, recent []HistoryEntry) Classification {
	t := classifierThresholds

	if skill.Rating >= t.slipMinRating && isTrivialError && hasStrongStreak(recent, t.slipWindow, t.slipMinHistoryScore) {
		return Classification{
			ErrorType: ErrorSlip,
			Score:     ScoreSlip,
			Reasoning: fmt.Sprintf("rating %.0f with %d recent scores >= %.1f and a trivial error: momentary lapse", skill.Rating, t.slipWindow, t.slipMinHistoryScore),
		}
	}

	if skill.Rating <= t.misconMaxRating && skill.TimesEncountered >= t.misconMinEncounters && skill.Volatility >= t.misconMinVolatility {
		return Classification{
			ErrorType: ErrorMisconception,
			Score:     ScoreMisconception,
			Reasoning: fmt.Sprintf("rating %.0f after %d encounters with volatility %.2f: systemic confusion", skill.Rating, skill.TimesEncountered, skill.Volatility),
		}
	}

	return Classification{
		ErrorType: ErrorMistake,
		Score:     ScoreMistake,
		Reasoning: "ordinary learning error",
	}
}

// PositiveScore is the canonical score for a passing detection,
// bypassing the classifier.
func PositiveScore(idiomatic bool) float64 {
	if idiomatic {
		return ScoreIdiomatic
	}
	return ScoreClean
}

// hasStrongStreak reports whether the n most recent entries all meet
// the minimum score. Insufficient history disqualifies.
func hasStrongStreak(recent []HistoryEntry, n int, minScore float64) bool {
	if len(recent) < n {
		return false
	}
	for _, entry := range recent[:n] {
		if entry.Score < minScore {
			return false
		}
	}
	return true
}

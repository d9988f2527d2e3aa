package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rating bounds on the Glicko-2-derived external scale.
const (
	RatingMin     = 1200.0
	RatingMax     = 1800.0
	RatingDefault = 1500.0

	RDMin     = 50.0
	RDMax     = 350.0
	RDDefault = 350.0

	VolatilityMin     = 0.01
	VolatilityMax     = 0.2
	VolatilityDefault = 0.06
)

// Skill is the per-(user, topic) mastery record. Bounded fields stay
// clamped after every write; only the rating engine and the stuck
// detector mutate it.
type Skill struct {
	UserID           uuid.UUID
	TopicID          string
	Rating           float64
	RD               float64
	Volatility       float64
	TimesEncountered int
	LastPracticedAt  *time.Time
	IsStuck          bool
	StuckSince       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSkill creates a skill record with default Glicko-2 state.
// Records are created lazily on first encounter and never deleted.
func NewSkill(userID uuid.UUID, topicID string) *Skill {
	now := time.Now()
	return &Skill{
		UserID:     userID,
		TopicID:    topicID,
		Rating:     RatingDefault,
		RD:         RDDefault,
		Volatility: VolatilityDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clamp forces all bounded fields back into their ranges.
func (s *Skill) Clamp() {
	s.Rating = clamp(s.Rating, RatingMin, RatingMax)
	s.RD = clamp(s.RD, RDMin, RDMax)
	s.Volatility = clamp(s.Volatility, VolatilityMin, VolatilityMax)
	if s.TimesEncountered < 0 {
		s.TimesEncountered = 0
	}
}

// Validate reports whether the snapshot is internally consistent.
// Stores call this before handing a snapshot to the engine; the engine
// never silently substitutes defaults for a malformed record.
func (s *Skill) Validate() error {
	if s.UserID == uuid.Nil || s.TopicID == "" {
		return ErrInvalidSnapshot
	}
	if s.Rating < RatingMin || s.Rating > RatingMax {
		return ErrInvalidSnapshot
	}
	if s.RD < RDMin || s.RD > RDMax {
		return ErrInvalidSnapshot
	}
	if s.Volatility < VolatilityMin || s.Volatility > VolatilityMax {
		return ErrInvalidSnapshot
	}
	if s.TimesEncountered < 0 {
		return ErrInvalidSnapshot
	}
	return nil
}

// ErrorType classifies the cause of a failed encounter.
type ErrorType string

const (
	// ErrorSlip is a transient lapse by a high-confidence learner.
	ErrorSlip ErrorType = "slip"
	// ErrorMistake is an ordinary learning error, the default cause.
	ErrorMistake ErrorType = "mistake"
	// ErrorMisconception is systemic, low-confidence, volatile confusion.
	ErrorMisconception ErrorType = "misconception"
)

// Performance is one immutable entry in the append-only history for a
// (user, topic) pair.
type Performance struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	TopicID      string
	SubmissionID uuid.UUID
	Score        float64
	ErrorType    *ErrorType
	RatingBefore float64
	RatingAfter  float64
	RDBefore     float64
	RDAfter      float64
	CreatedAt    time.Time
}

// HistoryWindow is how many recent performance entries the error
// classifier consults.
const HistoryWindow = 5

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

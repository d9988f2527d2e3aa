package domain

import (
	"math"
)

// Glicko-2 constants. The scale factor maps between the external
// 1500-centered scale and the internal mu/phi scale.
const (
	glickoScale = 173.7178
	systemTau   = 0.5
	solverTol   = 1e-6
	solverCap   = 100

	// DefaultOpponentRating is the reference "topic difficulty" each
	// encounter is scored against. Callers may override per topic.
	DefaultOpponentRating = 1500.0
	DefaultOpponentRD     = 350.0

	// rdDecayRate widens uncertainty by 0.5 rating points per idle day
	// (in quadrature), applied lazily at read/update time.
	rdDecayRate = 0.5
)

// RatingState is the numeric slice of a skill record the engine reads.
type RatingState struct {
	Rating     float64
	RD         float64
	Volatility float64
}

// Opponent is the reference difficulty a performance is scored against.
type Opponent struct {
	Rating float64
	RD     float64
}

// DefaultOpponent returns the fixed reference opponent.
func DefaultOpponent() Opponent {
	return Opponent{Rating: DefaultOpponentRating, RD: DefaultOpponentRD}
}

// RatingUpdate is the result of one rating engine update.
// Converged is false when the volatility solver hit its iteration cap;
// the returned values are still bounded and usable (soft failure).
type RatingUpdate struct {
	Rating       float64
	RD           float64
	Volatility   float64
	RatingChange float64
	RDChange     float64
	Converged    bool
}

// RatingEngine performs pure Glicko-2 updates, modeling each topic
// encounter as a single match against a reference opponent. It holds
// no state; the caller persists results.
type RatingEngine struct {
	tau     float64
	tol     float64
	maxIter int
}

// NewRatingEngine creates a rating engine with the standard system
// constant and solver bounds.
func NewRatingEngine() *RatingEngine {
	return &RatingEngine{
		tau:     systemTau,
		tol:     solverTol,
		maxIter: solverCap,
	}
}

// Update computes the post-encounter rating state for a single
// performance score in [0,1] against the given opponent.
func (e *RatingEngine) Update(current RatingState, score float64, opp Opponent) RatingUpdate {
	score = clamp(score, 0, 1)

	// Map onto the internal scale.
	mu := (current.Rating - DefaultOpponentRating) / glickoScale
	phi := current.RD / glickoScale
	muOpp := (opp.Rating - DefaultOpponentRating) / glickoScale
	phiOpp := opp.RD / glickoScale

	gOpp := g(phiOpp)
	expected := expectedScore(mu, muOpp, gOpp)

	// Single-opponent estimated variance and improvement delta.
	v := 1 / (gOpp * gOpp * expected * (1 - expected))
	delta := v * gOpp * (score - expected)

	newVol, converged := e.solveVolatility(phi, v, delta, current.Volatility)

	phiStar := math.Sqrt(phi*phi + newVol*newVol)
	newPhi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	newMu := mu + newPhi*newPhi*gOpp*(score-expected)

	// Map back to the external scale and clamp.
	rating := clamp(DefaultOpponentRating+glickoScale*newMu, RatingMin, RatingMax)
	rd := clamp(glickoScale*newPhi, RDMin, RDMax)
	vol := clamp(newVol, VolatilityMin, VolatilityMax)

	return RatingUpdate{
		Rating:       rating,
		RD:           rd,
		Volatility:   vol,
		RatingChange: rating - current.Rating,
		RDChange:     rd - current.RD,
		Converged:    converged,
	}
}

// ApplyDecay widens rating deviation for idle time, clamped to the
// maximum. Decay is lazy: it runs when a record is read or updated,
// never on a background schedule.
func ApplyDecay(rd float64, daysSinceLastPractice float64) float64 {
	if daysSinceLastPractice <= 0 {
		return clamp(rd, RDMin, RDMax)
	}
	widened := math.Sqrt(rd*rd + (rdDecayRate*daysSinceLastPractice)*(rdDecayRate*daysSinceLastPractice))
	return clamp(widened, RDMin, RDMax)
}

// g dampens the opponent's influence by their uncertainty.
func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// expectedScore is the logistic expectation, guarded away from 0 and 1
// so the variance term never evaluates to infinity.
func expectedScore(mu, muOpp, gOpp float64) float64 {
	e := 1 / (1 + math.Exp(-gOpp*(mu-muOpp)))
	const eps = 1e-9
	return clamp(e, eps, 1-eps)
}

// solveVolatility finds the new volatility via the Illinois variant of
// regula falsi on the Glicko-2 volatility function. The loop is bounded
// and iterative; recursion is avoided so stack depth stays fixed on
// pathological inputs.
func (e *RatingEngine) solveVolatility(phi, v, delta, volatility float64) (float64, bool) {
	a := math.Log(volatility * volatility)
	phi2 := phi * phi
	delta2 := delta * delta
	tau2 := e.tau * e.tau

	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta2 - phi2 - v - ex)
		den := 2 * (phi2 + v + ex) * (phi2 + v + ex)
		return num/den - (x-a)/tau2
	}

	lo := a
	var hi float64
	if delta2 > phi2+v {
		hi = math.Log(delta2 - phi2 - v)
	} else {
		k := 1.0
		for f(a-k*e.tau) < 0 {
			k++
			if k > float64(e.maxIter) {
				break
			}
		}
		hi = a - k*e.tau
	}

	fLo := f(lo)
	fHi := f(hi)
	converged := false
	for i := 0; i < e.maxIter; i++ {
		if math.Abs(hi-lo) <= e.tol {
			converged = true
			break
		}
		mid := lo + (lo-hi)*fLo/(fHi-fLo)
		fMid := f(mid)
		if fMid*fHi <= 0 {
			lo = hi
			fLo = fHi
		} else {
			fLo /= 2
		}
		hi = mid
		fHi = fMid
	}
	if !converged && math.Abs(hi-lo) <= e.tol {
		converged = true
	}

	return math.Exp(lo / 2), converged
}

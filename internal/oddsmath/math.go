// Package oddsmath is the pure, side-effect-free math kernel: American and
// decimal odds conversion, vig removal, weighted consensus, EV, fractional
// Kelly sizing, and CLV primitives. Every function that returns an error
// validates its own inputs and returns an *apperr.Error (kind
// invalid_argument) rather than NaN or a silent zero. The helpers
// Percentile and Clamp do no validation; Percentile returns 0 for an empty
// sample.
package oddsmath

import (
	"math"
	"sort"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
)

// EPS is the default numerical tolerance used throughout the kernel,
// matching the original implementation's CONSENSUS_EPS default.
const EPS = 1e-9

func invalid(msg string) error {
	return apperr.New(apperr.InvalidArgument, msg)
}

// AmericanToDecimal converts American odds to decimal odds.
func AmericanToDecimal(a int) (float64, error) {
	if a >= 0 && a < 100 {
		return 0, invalid("american odds must satisfy |a| >= 100")
	}
	if a < 0 && a > -100 {
		return 0, invalid("american odds must satisfy |a| >= 100")
	}
	if a > 0 {
		return 1 + float64(a)/100.0, nil
	}
	return 1 + 100.0/math.Abs(float64(a)), nil
}

// DecimalToAmerican converts decimal odds back to American odds, rounded to
// the nearest integer.
func DecimalToAmerican(d float64) (int, error) {
	if d <= 1 {
		return 0, invalid("decimal odds must be > 1")
	}
	if d >= 2 {
		return int(math.Round((d - 1) * 100)), nil
	}
	return int(math.Round(-100.0 / (d - 1))), nil
}

// AmericanToImpliedProb returns the bookmaker-implied probability (including
// vig) for a single American price.
func AmericanToImpliedProb(a int) (float64, error) {
	d, err := AmericanToDecimal(a)
	if err != nil {
		return 0, err
	}
	if a > 0 {
		return 100.0 / (float64(a) + 100.0), nil
	}
	_ = d
	absA := math.Abs(float64(a))
	return absA / (absA + 100.0), nil
}

func validateProbability(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return invalid("probability must be finite")
	}
	if p < 0 || p > 1 {
		return invalid("probability must be within [0,1]")
	}
	return nil
}

// RemoveVig normalizes a set of implied probabilities so they sum to 1.
func RemoveVig(ps []float64) ([]float64, error) {
	if len(ps) == 0 {
		return nil, invalid("probability set must be non-empty")
	}
	sum := 0.0
	for _, p := range ps {
		if err := validateProbability(p); err != nil {
			return nil, err
		}
		sum += p
	}
	if sum <= EPS {
		return nil, invalid("probability sum must exceed eps")
	}
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p / sum
	}
	return out, nil
}

// ConsensusFairProb computes the weighted average of per-book fair
// probabilities (one slice per book, aligned by side index) and removes any
// residual vig drift from the weighted average.
func ConsensusFairProb(books [][]float64, weights []float64) ([]float64, error) {
	if len(books) == 0 {
		return nil, invalid("book set must be non-empty")
	}
	if len(books) != len(weights) {
		return nil, invalid("weights must align with books")
	}
	nSides := len(books[0])
	if nSides == 0 {
		return nil, invalid("book fair-prob vector must be non-empty")
	}
	weightSum := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, invalid("weights must be non-negative")
		}
		weightSum += w
		if len(books[i]) != nSides {
			return nil, invalid("all books must share the same side set")
		}
	}
	if weightSum <= EPS {
		return nil, invalid("weight sum must exceed eps")
	}

	weighted := make([]float64, nSides)
	for i, book := range books {
		for s, p := range book {
			if err := validateProbability(p); err != nil {
				return nil, err
			}
			weighted[s] += p * weights[i]
		}
	}
	for s := range weighted {
		weighted[s] /= weightSum
	}

	sum := 0.0
	for _, p := range weighted {
		sum += p
	}
	if math.Abs(sum-1.0) > EPS {
		return RemoveVig(weighted)
	}
	return weighted, nil
}

// EV returns the expected value per unit staked: p*d - 1.
func EV(p, d float64) (float64, error) {
	if err := validateProbability(p); err != nil {
		return 0, err
	}
	if d <= 1 {
		return 0, invalid("decimal odds must be > 1")
	}
	return p*d - 1, nil
}

// KellyFraction returns the capped, multiplied Kelly stake fraction. It
// never returns a negative number: a non-positive full-Kelly fraction
// yields 0.
func KellyFraction(p, d, mult, cap float64) (float64, error) {
	if err := validateProbability(p); err != nil {
		return 0, err
	}
	if d <= 1 {
		return 0, invalid("decimal odds must be > 1")
	}
	b := d - 1
	q := 1 - p
	full := (b*p - q) / b
	if full <= 0 {
		return 0, nil
	}
	f := mult * full
	if f > cap {
		return cap, nil
	}
	return f, nil
}

// MarketCLV is the closing-vs-pick consensus-probability delta.
func MarketCLV(closeConsensus, pickConsensus float64) (float64, error) {
	if err := validateProbability(closeConsensus); err != nil {
		return 0, err
	}
	if err := validateProbability(pickConsensus); err != nil {
		return 0, err
	}
	return closeConsensus - pickConsensus, nil
}

// BookCLV is the same-bookmaker closing-vs-pick implied-probability delta.
func BookCLV(closeImplied, pickImplied float64) (float64, error) {
	if err := validateProbability(closeImplied); err != nil {
		return 0, err
	}
	if err := validateProbability(pickImplied); err != nil {
		return 0, err
	}
	return closeImplied - pickImplied, nil
}

// ParlayDecimalOdds multiplies independent legs' decimal odds.
func ParlayDecimalOdds(legs []float64) (float64, error) {
	if len(legs) == 0 {
		return 0, invalid("parlay must have at least one leg")
	}
	out := 1.0
	for _, d := range legs {
		if d <= 1 {
			return 0, invalid("decimal odds must be > 1")
		}
		out *= d
	}
	return out, nil
}

// ParlayProb multiplies independent legs' probabilities.
func ParlayProb(legs []float64) (float64, error) {
	if len(legs) == 0 {
		return 0, invalid("parlay must have at least one leg")
	}
	out := 1.0
	for _, p := range legs {
		if err := validateProbability(p); err != nil {
			return 0, err
		}
		out *= p
	}
	return out, nil
}

// ParlayEV combines ParlayProb and ParlayDecimalOdds into an expected value.
func ParlayEV(probs, decimals []float64) (float64, error) {
	if len(probs) != len(decimals) {
		return 0, invalid("probs and decimals must align")
	}
	p, err := ParlayProb(probs)
	if err != nil {
		return 0, err
	}
	d, err := ParlayDecimalOdds(decimals)
	if err != nil {
		return 0, err
	}
	return EV(p, d)
}

// Percentile returns the linear-interpolation percentile (0-100) of an
// unsorted sample, matching numpy's default "linear" method used by the
// dispersion feature.
func Percentile(samples []float64, pct float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (pct / 100.0) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package pqs computes the per-pick feature vector and the multi-factor
// Pick Quality Score, grounded on
// original_source/backend/app/intelligence/{features,pqs}.py.
package pqs

import (
	"sort"
	"time"

	"github.com/dEnchanter/OddsIQ/backend/internal/consensus"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsmath"
)

// Features is the feature vector computed for one candidate pick.
type Features struct {
	EV                   float64
	KellyFraction        float64
	BookCount            int
	SharpBookCount       int
	AgreementStrength    float64
	PriceDispersion      float64
	BestVsConsensusEdge  float64
	TimeToStartMinutes   float64
	MarketLiquidityProxy float64
}

func oppositeOrDefault(side domain.Side) domain.Side {
	if opp, ok := domain.OppositeSide(side); ok {
		return opp
	}
	// DRAW has no natural opposite two-way leg; mirror the original's
	// fallback of treating it like an OVER-style leg with no pairing.
	return domain.SideOver
}

// ComputePriceDispersion computes the 90th-minus-10th percentile spread of
// vig-free implied probability for side across every bookmaker quoting
// both it and its opposite, per features.py's compute_price_dispersion.
func ComputePriceDispersion(side domain.Side, bookOdds map[string]map[domain.Side]float64) float64 {
	var probs []float64
	books := make([]string, 0, len(bookOdds))
	for b := range bookOdds {
		books = append(books, b)
	}
	sort.Strings(books)

	opposite := oppositeOrDefault(side)
	for _, book := range books {
		perBook := bookOdds[book]
		sideDecimal, ok := perBook[side]
		if !ok || sideDecimal <= 1.0 {
			continue
		}
		sideImplied := 1.0 / sideDecimal
		if oppDecimal, ok := perBook[opposite]; ok && oppDecimal > 1.0 {
			oppImplied := 1.0 / oppDecimal
			if devigged, err := oddsmath.RemoveVig([]float64{sideImplied, oppImplied}); err == nil {
				sideImplied = devigged[0]
			}
		}
		probs = append(probs, oddsmath.Clamp(sideImplied, 0, 1))
	}

	if len(probs) < 3 {
		return 1.0
	}
	sort.Float64s(probs)
	dispersion := oddsmath.Percentile(probs, 90) - oddsmath.Percentile(probs, 10)
	return oddsmath.Clamp(dispersion, 0, 1)
}

// ComputeFeatures builds the feature vector for one (result, side)
// candidate, matching features.py's compute_features.
func ComputeFeatures(result consensus.Result, side domain.Side, bookOdds map[string]map[domain.Side]float64,
	ev, kelly, bestDecimal, sideConsensusProb float64, commenceTime, nowUTC time.Time) Features {
	dispersion := ComputePriceDispersion(side, bookOdds)
	agreement := oddsmath.Clamp(1.0-(dispersion/0.5), 0, 1)

	return Features{
		EV:                   ev,
		KellyFraction:        kelly,
		BookCount:            result.IncludedBooks,
		SharpBookCount:       result.SharpBooksIncluded,
		AgreementStrength:    agreement,
		PriceDispersion:      dispersion,
		BestVsConsensusEdge:  sideConsensusProb - (1.0 / bestDecimal),
		TimeToStartMinutes:   commenceTime.Sub(nowUTC).Seconds() / 60.0,
		MarketLiquidityProxy: float64(result.IncludedBooks) + 2.0*float64(result.SharpBooksIncluded),
	}
}

// FeaturesJSON returns the rounded map persisted as PickScore.Features.
func FeaturesJSON(f Features) map[string]float64 {
	return map[string]float64{
		"ev":                     round(f.EV, 8),
		"kelly_fraction":         round(f.KellyFraction, 8),
		"book_count":             float64(f.BookCount),
		"sharp_book_count":       float64(f.SharpBookCount),
		"agreement_strength":     round(f.AgreementStrength, 8),
		"price_dispersion":       round(f.PriceDispersion, 8),
		"best_vs_consensus_edge": round(f.BestVsConsensusEdge, 8),
		"time_to_start_minutes":  round(f.TimeToStartMinutes, 6),
		"market_liquidity_proxy": round(f.MarketLiquidityProxy, 6),
	}
}

func round(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+sign(v)*0.5)) / mult
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

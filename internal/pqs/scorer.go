package pqs

import (
	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// Result is the scorer's verdict for one candidate pick, mirroring
// pqs.py's PQSResult.
type Result struct {
	PQS        float64
	Decision   domain.Decision
	DropReason string
	Components map[string]float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AdaptiveThresholds computes the per-sport decision threshold and max-picks
// cap, relaxed/tightened by the CLV prior, per pqs.py's adaptive_thresholds.
func AdaptiveThresholds(cfg *appconfig.Config, prior *domain.ClvSportStat, sportKey string) (float64, int) {
	minPQS := cfg.MinPQSFor(sportKey)
	maxPicks := cfg.MaxPicksFor(sportKey)
	if prior == nil {
		return minPQS, maxPicks
	}

	pct := prior.PctPositiveMarketCLV
	if pct < 0.45 {
		minPQS = min(0.9, minPQS+0.05)
		if maxPicks-1 > 0 {
			maxPicks--
		} else {
			maxPicks = 1
		}
	} else if pct > 0.6 && !prior.IsWeak {
		minPQS = max(0.55, minPQS-0.02)
	}
	return round(minPQS, 6), maxPicks
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// adaptiveMaxPriceDispersion widens the dispersion ceiling when the pick has
// deep book coverage or a strong sharp-weighted edge.
func adaptiveMaxPriceDispersion(cfg *appconfig.Config, f Features) float64 {
	adaptiveMax := cfg.MaxPriceDispersion
	if f.BookCount >= 8 {
		adaptiveMax = max(adaptiveMax, cfg.MaxPriceDispersionBookCount8)
	}
	if f.SharpBookCount >= 2 && f.EV >= 0.05 {
		adaptiveMax = max(adaptiveMax, cfg.MaxPriceDispersionSharpEV)
	}
	return adaptiveMax
}

// adaptiveMinMinutesToStart relaxes the minutes-to-start gate for deep,
// tight markets.
func adaptiveMinMinutesToStart(cfg *appconfig.Config, f Features) float64 {
	if float64(f.BookCount) >= float64(cfg.MinMinutesToStartRelaxedMinBooks) && f.PriceDispersion <= cfg.MinMinutesToStartRelaxedMaxDispersion {
		return cfg.MinMinutesToStartRelaxed
	}
	return cfg.MinMinutesToStart
}

// Score runs the hard gates then the weighted component score, per
// pqs.py's score_pick.
func Score(cfg *appconfig.Config, f Features, prior *domain.ClvSportStat, sportKey string) Result {
	drop := func(reason string) Result {
		return Result{PQS: 0, Decision: domain.DecisionDrop, DropReason: reason, Components: map[string]float64{}}
	}

	if f.BookCount < cfg.MinBooks {
		return drop("min_books")
	}
	if f.SharpBookCount < cfg.SharpBookMin {
		return drop("sharp_book_min")
	}
	if f.TimeToStartMinutes < 0 {
		return drop("min_minutes_to_start")
	}
	effectiveMinMinutes := adaptiveMinMinutesToStart(cfg, f)
	if f.TimeToStartMinutes < effectiveMinMinutes {
		return drop("min_minutes_to_start")
	}

	if f.PriceDispersion > cfg.MaxPriceDispersionHardCeiling {
		return drop("max_price_dispersion")
	}
	adaptiveMaxPrice := adaptiveMaxPriceDispersion(cfg, f)
	if f.PriceDispersion > adaptiveMaxPrice {
		return drop("max_price_dispersion")
	}
	if f.AgreementStrength < cfg.MinAgreement {
		return drop("min_agreement")
	}
	if f.EV < cfg.EVFloor {
		return drop("ev_floor")
	}

	evScore := clamp01(f.EV / 0.05)
	agreementScore := clamp01(f.AgreementStrength)
	dispersionScore := clamp01(1.0 - f.PriceDispersion/max(adaptiveMaxPrice, 1e-9))
	coverageScore := clamp01(float64(f.BookCount) / max(float64(cfg.MinBooks), 10))
	sharpScore := 0.0
	if f.SharpBookCount >= cfg.SharpBookMin {
		sharpScore = 1.0
	}
	priorScore := 0.5
	if prior != nil {
		priorScore = clamp01((prior.PctPositiveMarketCLV-0.5)*2.0 + 0.5)
	}
	timeScore := clamp01(f.TimeToStartMinutes / max(cfg.TimeDecayHalfLifeMin, 1))

	components := map[string]float64{
		"ev_score":             round(evScore, 6),
		"agreement_score":      round(agreementScore, 6),
		"dispersion_score":     round(dispersionScore, 6),
		"coverage_score":       round(coverageScore, 6),
		"sharp_presence_score": round(sharpScore, 6),
		"clv_prior_score":      round(priorScore, 6),
		"time_score":           round(timeScore, 6),
	}

	rawPQS := cfg.PQSWeightEV*evScore +
		cfg.PQSWeightAgreement*agreementScore +
		cfg.PQSWeightDispersion*dispersionScore +
		cfg.PQSWeightCoverage*coverageScore +
		cfg.PQSWeightSharp*sharpScore +
		cfg.PQSWeightClvPrior*priorScore +
		cfg.PQSWeightTime*timeScore

	minPQS, maxPicks := AdaptiveThresholds(cfg, prior, sportKey)
	components["adaptive_min_pqs"] = minPQS
	components["adaptive_max_picks"] = float64(maxPicks)
	components["adaptive_max_price_dispersion"] = round(adaptiveMaxPrice, 6)
	components["adaptive_min_minutes_to_start"] = effectiveMinMinutes

	pqs := round(clamp01(rawPQS), 6)
	decision := domain.DecisionDrop
	dropReason := "below_min_pqs"
	if pqs >= minPQS {
		decision = domain.DecisionKeep
		dropReason = ""
	}
	return Result{PQS: pqs, Decision: decision, DropReason: dropReason, Components: components}
}

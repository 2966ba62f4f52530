package store

import "github.com/shopspring/decimal"

// Fixed-scale precision for persisted columns, per spec.md section 9:
// probabilities 1e-8, odds 1e-5, stakes 1e-4, bps 1e-4.
const (
	scaleProb  = 8
	scaleOdds  = 5
	scaleStake = 4
	scaleBps   = 4
)

func probDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(scaleProb)
}

func oddsDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(scaleOdds)
}

func stakeDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(scaleStake)
}

func bpsDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(scaleBps)
}

func pointDecimal(p *float64) *decimal.Decimal {
	if p == nil {
		return nil
	}
	d := decimal.NewFromFloat(*p).Round(3)
	return &d
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func nullableFloatDecimal(f *float64, round int32) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f).Round(round)
	return &d
}

package pqs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

func testCfg(t *testing.T) *appconfig.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://test/test")
	cfg, err := appconfig.Load()
	require.NoError(t, err)
	return cfg
}

func goodFeatures(cfg *appconfig.Config) Features {
	return Features{
		EV:                  0.06,
		BookCount:           cfg.MinBooks + 2,
		SharpBookCount:      cfg.SharpBookMin + 1,
		AgreementStrength:   0.9,
		PriceDispersion:     0.02,
		TimeToStartMinutes:  cfg.MinMinutesToStart + 30,
	}
}

func TestScoreDropsOnMinBooksGate(t *testing.T) {
	cfg := testCfg(t)
	f := goodFeatures(cfg)
	f.BookCount = cfg.MinBooks - 1
	res := Score(cfg, f, nil, "basketball_nba")
	require.Equal(t, domain.DecisionDrop, res.Decision)
	require.Equal(t, "min_books", res.DropReason)
}

func TestScoreDropsOnSharpBookMinGate(t *testing.T) {
	cfg := testCfg(t)
	f := goodFeatures(cfg)
	f.SharpBookCount = 0
	res := Score(cfg, f, nil, "basketball_nba")
	require.Equal(t, domain.DecisionDrop, res.Decision)
	require.Equal(t, "sharp_book_min", res.DropReason)
}

func TestScoreDropsOnNegativeTimeToStart(t *testing.T) {
	cfg := testCfg(t)
	f := goodFeatures(cfg)
	f.TimeToStartMinutes = -5
	res := Score(cfg, f, nil, "basketball_nba")
	require.Equal(t, domain.DecisionDrop, res.Decision)
	require.Equal(t, "min_minutes_to_start", res.DropReason)
}

func TestScoreDropsOnHardDispersionCeiling(t *testing.T) {
	cfg := testCfg(t)
	f := goodFeatures(cfg)
	f.PriceDispersion = cfg.MaxPriceDispersionHardCeiling + 0.01
	res := Score(cfg, f, nil, "basketball_nba")
	require.Equal(t, domain.DecisionDrop, res.Decision)
	require.Equal(t, "max_price_dispersion", res.DropReason)
}

func TestScoreDropsOnEVFloor(t *testing.T) {
	cfg := testCfg(t)
	f := goodFeatures(cfg)
	f.EV = cfg.EVFloor - 0.01
	res := Score(cfg, f, nil, "basketball_nba")
	require.Equal(t, domain.DecisionDrop, res.Decision)
	require.Equal(t, "ev_floor", res.DropReason)
}

func TestScoreKeepsWhenAboveMinPQS(t *testing.T) {
	cfg := testCfg(t)
	f := goodFeatures(cfg)
	f.EV = 0.08
	res := Score(cfg, f, nil, "basketball_nba")
	require.Equal(t, domain.DecisionKeep, res.Decision)
	require.Empty(t, res.DropReason)
	require.GreaterOrEqual(t, res.PQS, cfg.SportDefaultMinPQS)
}

func TestScoreNeverAssignsWarn(t *testing.T) {
	// The original scorer only ever emits KEEP/DROP; WARN is a reserved
	// enum value reachable only via the cap-throttle description, not the
	// scorer itself (see DESIGN.md).
	cfg := testCfg(t)
	for _, ev := range []float64{-0.1, 0.0, 0.02, 0.05, 0.1, 0.5} {
		f := goodFeatures(cfg)
		f.EV = ev
		res := Score(cfg, f, nil, "basketball_nba")
		require.NotEqual(t, domain.DecisionWarn, res.Decision)
	}
}

func TestAdaptiveThresholdsTightenOnWeakPrior(t *testing.T) {
	cfg := testCfg(t)
	base, baseMax := AdaptiveThresholds(cfg, nil, "basketball_nba")

	weak := &domain.ClvSportStat{PctPositiveMarketCLV: 0.3, IsWeak: true}
	tightened, tightenedMax := AdaptiveThresholds(cfg, weak, "basketball_nba")

	require.GreaterOrEqual(t, tightened, base)
	require.LessOrEqual(t, tightenedMax, baseMax)
}

func TestAdaptiveThresholdsRelaxOnStrongPrior(t *testing.T) {
	cfg := testCfg(t)
	base, _ := AdaptiveThresholds(cfg, nil, "basketball_nba")

	strong := &domain.ClvSportStat{PctPositiveMarketCLV: 0.7, IsWeak: false}
	relaxed, _ := AdaptiveThresholds(cfg, strong, "basketball_nba")

	require.LessOrEqual(t, relaxed, base)
}

func TestComputePriceDispersionNeedsAtLeastThreeBooks(t *testing.T) {
	bookOdds := map[string]map[domain.Side]float64{
		"a": {domain.SideHome: 1.9, domain.SideAway: 2.0},
		"b": {domain.SideHome: 1.95, domain.SideAway: 1.98},
	}
	d := ComputePriceDispersion(domain.SideHome, bookOdds)
	require.Equal(t, 1.0, d)
}

func TestComputePriceDispersionWithEnoughBooks(t *testing.T) {
	bookOdds := map[string]map[domain.Side]float64{
		"a": {domain.SideHome: 1.90, domain.SideAway: 2.00},
		"b": {domain.SideHome: 1.91, domain.SideAway: 1.99},
		"c": {domain.SideHome: 1.92, domain.SideAway: 1.98},
		"d": {domain.SideHome: 1.95, domain.SideAway: 1.96},
	}
	d := ComputePriceDispersion(domain.SideHome, bookOdds)
	require.GreaterOrEqual(t, d, 0.0)
	require.LessOrEqual(t, d, 1.0)
}

// TestComputePriceDispersionExactValue pins the 90th/10th-percentile spread
// to a hand-computed value, so a regression to a 0-1-scaled Percentile call
// (instead of the correct 0-100 scale) collapses this to ~0 and fails loudly.
func TestComputePriceDispersionExactValue(t *testing.T) {
	bookOdds := map[string]map[domain.Side]float64{
		"a": {domain.SideHome: 2.5, domain.SideAway: 1.0 / 0.6},
		"b": {domain.SideHome: 2.0, domain.SideAway: 2.0},
		"c": {domain.SideHome: 1.25, domain.SideAway: 5.0},
	}
	// devigged home-side implied probs sort to [0.4, 0.5, 0.8]; P90=0.74,
	// P10=0.42, dispersion=0.32.
	d := ComputePriceDispersion(domain.SideHome, bookOdds)
	require.InDelta(t, 0.32, d, 1e-6)
}

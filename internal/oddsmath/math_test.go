package oddsmath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmericanDecimalRoundTrip(t *testing.T) {
	cases := []int{-550, -200, -110, 100, 150, 320, 1000}
	for _, a := range cases {
		d, err := AmericanToDecimal(a)
		require.NoError(t, err)
		back, err := DecimalToAmerican(d)
		require.NoError(t, err)
		require.Equal(t, a, back)
	}
}

func TestAmericanToDecimalRejectsSubThreshold(t *testing.T) {
	_, err := AmericanToDecimal(50)
	require.Error(t, err)
	_, err = AmericanToDecimal(-50)
	require.Error(t, err)
}

func TestRemoveVigSumsToOne(t *testing.T) {
	out, err := RemoveVig([]float64{0.55, 0.55})
	require.NoError(t, err)
	sum := out[0] + out[1]
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestConsensusFairProbSharpWeighting(t *testing.T) {
	// pinnacle & circa are sharp (weight 2.0), fanduel/draftkings standard (1.0).
	pinnacle := []float64{0.62, 0.38}
	circa := []float64{0.50, 0.50}
	fanduel := []float64{0.50, 0.50}
	draftkings := []float64{0.50, 0.50}
	books := [][]float64{pinnacle, circa, fanduel, draftkings}
	weights := []float64{2.0, 2.0, 1.0, 1.0}

	out, err := ConsensusFairProb(books, weights)
	require.NoError(t, err)
	require.Greater(t, out[0], 0.53)
	require.InDelta(t, 1.0, out[0]+out[1], 1e-9)
}

func TestEV(t *testing.T) {
	ev, err := EV(0.53, 2.10)
	require.NoError(t, err)
	require.InDelta(t, 0.113, ev, 1e-9)
}

func TestKellyFraction(t *testing.T) {
	f, err := KellyFraction(0.53, 2.10, 0.25, 0.05)
	require.NoError(t, err)
	require.InDelta(t, 0.02568181818, f, 1e-6)
}

func TestKellyFractionNonPositiveClampsToZero(t *testing.T) {
	f, err := KellyFraction(0.2, 1.5, 0.25, 0.05)
	require.NoError(t, err)
	require.Equal(t, 0.0, f)
}

func TestKellyFractionCapped(t *testing.T) {
	f, err := KellyFraction(0.9, 5.0, 1.0, 0.05)
	require.NoError(t, err)
	require.Equal(t, 0.05, f)
}

func TestMarketAndBookCLV(t *testing.T) {
	mclv, err := MarketCLV(0.575, 0.55)
	require.NoError(t, err)
	require.InDelta(t, 0.025, mclv, 1e-9)

	bclv, err := BookCLV(1.0/1.95, 1.0/2.10)
	require.NoError(t, err)
	require.Greater(t, bclv, 0.0)
}

func TestPercentileInterpolation(t *testing.T) {
	samples := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	require.InDelta(t, 0.1, Percentile(samples, 0), 1e-9)
	require.InDelta(t, 0.5, Percentile(samples, 100), 1e-9)
	require.InDelta(t, 0.3, Percentile(samples, 50), 1e-9)
}

func TestParlayPrimitives(t *testing.T) {
	d, err := ParlayDecimalOdds([]float64{2.0, 1.5})
	require.NoError(t, err)
	require.InDelta(t, 3.0, d, 1e-9)

	p, err := ParlayProb([]float64{0.5, 0.5})
	require.NoError(t, err)
	require.InDelta(t, 0.25, p, 1e-9)

	ev, err := ParlayEV([]float64{0.5, 0.5}, []float64{2.0, 1.5})
	require.NoError(t, err)
	require.InDelta(t, 0.25*3.0-1, ev, 1e-9)
}

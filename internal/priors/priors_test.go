package priors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	require.Equal(t, 0.0, mean(nil))
	require.InDelta(t, 2.0, mean([]float64{1, 2, 3}), 1e-9)
}

func TestMedianOfOddAndEvenCounts(t *testing.T) {
	require.Equal(t, 0.0, medianOf(nil))
	require.InDelta(t, 2.0, medianOf([]float64{3, 1, 2}), 1e-9)
	require.InDelta(t, 2.5, medianOf([]float64{1, 2, 3, 4}), 1e-9)
}

func TestPstdevMatchesPopulationFormula(t *testing.T) {
	require.Equal(t, 0.0, pstdev(nil))
	// population stdev of [2,4,4,4,5,5,7,9] is 2.0.
	vs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	require.InDelta(t, 2.0, pstdev(vs), 1e-9)
}

func TestBpsScalesFractionToBasisPoints(t *testing.T) {
	require.InDelta(t, 150.0, bps(0.015), 1e-9)
	require.InDelta(t, -50.0, bps(-0.005), 1e-9)
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	require.InDelta(t, 1.2346, round(1.23456, 4), 1e-9)
	require.InDelta(t, -1.2346, round(-1.23456, 4), 1e-9)
}

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbDecimalRoundsToEightPlaces(t *testing.T) {
	d := probDecimal(0.123456789)
	require.Equal(t, "0.12345679", d.String())
}

func TestOddsDecimalRoundsToFivePlaces(t *testing.T) {
	d := oddsDecimal(1.9123456)
	require.Equal(t, "1.91235", d.String())
}

func TestStakeDecimalRoundsToFourPlaces(t *testing.T) {
	d := stakeDecimal(12.34567)
	require.Equal(t, "12.3457", d.String())
}

func TestBpsDecimalRoundsToFourPlaces(t *testing.T) {
	d := bpsDecimal(-10.000049)
	require.Equal(t, "-10", d.String())
}

func TestPointDecimalNilPassesThrough(t *testing.T) {
	require.Nil(t, pointDecimal(nil))
	p := 3.5
	d := pointDecimal(&p)
	require.NotNil(t, d)
	require.Equal(t, "3.5", d.String())
}

func TestFloatPtrRoundTripsThroughDecimal(t *testing.T) {
	require.Nil(t, floatPtr(nil))
	d := probDecimal(0.5)
	got := floatPtr(&d)
	require.NotNil(t, got)
	require.InDelta(t, 0.5, *got, 1e-9)
}

func TestNullableFloatDecimalNilAndValue(t *testing.T) {
	require.Nil(t, nullableFloatDecimal(nil, 4))
	v := 1.23456
	d := nullableFloatDecimal(&v, 4)
	require.NotNil(t, d)
	require.Equal(t, "1.2346", d.String())
}

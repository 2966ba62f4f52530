package eval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type bucketRow = struct {
	computed  bool
	marketCLV *float64
	bookCLV   *float64
}

func f64(v float64) *float64 { return &v }

func TestComputeBucketEmpty(t *testing.T) {
	b := computeBucket(nil)
	require.Equal(t, 0, b.TotalPicks)
	require.Equal(t, 0, b.ClvComputedCount)
	require.Equal(t, 0.0, b.ClvCoverageRate)
	require.Nil(t, b.MeanMarketCLV)
	require.Nil(t, b.MeanBookCLV)
}

func TestComputeBucketCoverageAndMeans(t *testing.T) {
	rows := []bucketRow{
		{computed: true, marketCLV: f64(120), bookCLV: f64(50)},
		{computed: true, marketCLV: f64(-40), bookCLV: nil},
		{computed: false, marketCLV: nil, bookCLV: nil},
	}
	b := computeBucket(rows)
	require.Equal(t, 3, b.TotalPicks)
	require.Equal(t, 2, b.ClvComputedCount)
	require.InDelta(t, 2.0/3.0, b.ClvCoverageRate, 1e-9)
	require.NotNil(t, b.MeanMarketCLV)
	require.InDelta(t, 40.0, *b.MeanMarketCLV, 1e-9)
	require.NotNil(t, b.MeanBookCLV)
	require.InDelta(t, 50.0, *b.MeanBookCLV, 1e-9)
	require.InDelta(t, 0.5, b.PctPositiveMarketCLV, 1e-9)
}

func TestComputeBucketAllNegativeMarketCLV(t *testing.T) {
	rows := []bucketRow{
		{computed: true, marketCLV: f64(-10)},
		{computed: true, marketCLV: f64(-20)},
	}
	b := computeBucket(rows)
	require.Equal(t, 0.0, b.PctPositiveMarketCLV)
}

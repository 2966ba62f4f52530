package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

func TestNormalizeSideH2HMapsHomeAndAway(t *testing.T) {
	side, err := normalizeSide("Lakers", "Celtics", "h2h", "Lakers", "basketball_nba")
	require.NoError(t, err)
	require.Equal(t, domain.SideHome, side)

	side, err = normalizeSide("Lakers", "Celtics", "h2h", "celtics", "basketball_nba")
	require.NoError(t, err)
	require.Equal(t, domain.SideAway, side)
}

func TestNormalizeSideSoccerH2HAllowsDraw(t *testing.T) {
	side, err := normalizeSide("Arsenal", "Chelsea", "h2h", "Draw", "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, domain.SideDraw, side)
}

func TestNormalizeSideRejectsDrawOutsideSoccer(t *testing.T) {
	_, err := normalizeSide("Lakers", "Celtics", "h2h", "Draw", "basketball_nba")
	require.Error(t, err)
}

func TestNormalizeSideTotals(t *testing.T) {
	side, err := normalizeSide("", "", "totals", "Over", "basketball_nba")
	require.NoError(t, err)
	require.Equal(t, domain.SideOver, side)

	side, err = normalizeSide("", "", "totals", "under", "basketball_nba")
	require.NoError(t, err)
	require.Equal(t, domain.SideUnder, side)
}

func TestNormalizeSideRejectsUnknownOutcome(t *testing.T) {
	_, err := normalizeSide("Lakers", "Celtics", "h2h", "Warriors", "basketball_nba")
	require.Error(t, err)
}

func TestNormalizeSideRejectsUnsupportedMarket(t *testing.T) {
	_, err := normalizeSide("Lakers", "Celtics", "player_props", "Lakers", "basketball_nba")
	require.Error(t, err)
}

func TestPointSortValueNilSortsFirst(t *testing.T) {
	require.Less(t, pointSortValue(nil), pointSortValue(floatPtr(-1e17)))
}

func floatPtr(v float64) *float64 { return &v }

func TestCanonicalGroupHashStableUnderSideReordering(t *testing.T) {
	american1, american2 := 150, -170
	d1, d2 := 2.5, 1.59
	sidesA := []sidePrice{
		{side: domain.SideHome, american: &american1, decimal: &d1},
		{side: domain.SideAway, american: &american2, decimal: &d2},
	}
	sidesB := []sidePrice{
		{side: domain.SideAway, american: &american2, decimal: &d2},
		{side: domain.SideHome, american: &american1, decimal: &d1},
	}
	h1 := canonicalGroupHash("evt1", "h2h", "draftkings", nil, sidesA)
	h2 := canonicalGroupHash("evt1", "h2h", "draftkings", nil, sidesB)
	require.Equal(t, h1, h2)
}

func TestCanonicalGroupHashChangesWithPrice(t *testing.T) {
	american1 := 150
	d1, d2 := 2.5, 2.6
	sidesA := []sidePrice{{side: domain.SideHome, american: &american1, decimal: &d1}}
	sidesB := []sidePrice{{side: domain.SideHome, american: &american1, decimal: &d2}}
	h1 := canonicalGroupHash("evt1", "h2h", "draftkings", nil, sidesA)
	h2 := canonicalGroupHash("evt1", "h2h", "draftkings", nil, sidesB)
	require.NotEqual(t, h1, h2)
}

func TestParseCommenceTimeRFC3339(t *testing.T) {
	ts, err := parseCommenceTime("2026-08-01T18:00:00Z")
	require.NoError(t, err)
	require.Equal(t, 2026, ts.Year())

	_, err = parseCommenceTime("not-a-time")
	require.Error(t, err)
}

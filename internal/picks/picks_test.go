package picks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSortKeptCandidatesOrdersByPQSDescThenTiebreaks(t *testing.T) {
	now := time.Now().UTC()
	items := []keptCandidate{
		{pqs: 0.7, sportKey: "b", marketKey: "h2h", gameID: 2, createdAt: now, pickID: 2},
		{pqs: 0.9, sportKey: "a", marketKey: "h2h", gameID: 1, createdAt: now, pickID: 1},
		{pqs: 0.9, sportKey: "a", marketKey: "h2h", gameID: 1, createdAt: now, pickID: 0},
	}
	sortKeptCandidates(items)
	require.Equal(t, 0.9, items[0].pqs)
	require.Equal(t, 0.9, items[1].pqs)
	require.Equal(t, int64(0), items[0].pickID) // tie on everything but pickID, lower pickID wins
	require.Equal(t, int64(1), items[1].pickID)
	require.Equal(t, 0.7, items[2].pqs)
}

func TestSelectFinalKeepIDsEnforcesPerSportCap(t *testing.T) {
	now := time.Now().UTC()
	kept := []keptCandidate{
		{pqs: 0.95, sportKey: "nba", gameID: 1, createdAt: now, pickID: 1, adaptiveMaxPicks: 1},
		{pqs: 0.90, sportKey: "nba", gameID: 2, createdAt: now, pickID: 2, adaptiveMaxPicks: 1},
		{pqs: 0.85, sportKey: "nfl", gameID: 3, createdAt: now, pickID: 3, adaptiveMaxPicks: 2},
	}
	final := selectFinalKeepIDs(kept, 10)
	require.True(t, final[1])
	require.False(t, final[2]) // nba cap of 1 already hit by pick 1
	require.True(t, final[3])
}

func TestSelectFinalKeepIDsEnforcesRunWideCap(t *testing.T) {
	now := time.Now().UTC()
	kept := []keptCandidate{
		{pqs: 0.99, sportKey: "nba", gameID: 1, createdAt: now, pickID: 1, adaptiveMaxPicks: 5},
		{pqs: 0.95, sportKey: "nfl", gameID: 2, createdAt: now, pickID: 2, adaptiveMaxPicks: 5},
		{pqs: 0.90, sportKey: "nhl", gameID: 3, createdAt: now, pickID: 3, adaptiveMaxPicks: 5},
	}
	final := selectFinalKeepIDs(kept, 2)
	require.Len(t, final, 2)
	require.True(t, final[1])
	require.True(t, final[2])
	require.False(t, final[3])
}

func TestSelectFinalKeepIDsClampsZeroOrNegativeAdaptiveCapToOne(t *testing.T) {
	now := time.Now().UTC()
	kept := []keptCandidate{
		{pqs: 0.9, sportKey: "nba", gameID: 1, createdAt: now, pickID: 1, adaptiveMaxPicks: 0},
		{pqs: 0.8, sportKey: "nba", gameID: 2, createdAt: now, pickID: 2, adaptiveMaxPicks: 0},
	}
	final := selectFinalKeepIDs(kept, 10)
	require.Len(t, final, 1)
	require.True(t, final[1])
}

func TestNilIfEmpty(t *testing.T) {
	require.Nil(t, nilIfEmpty(""))
	got := nilIfEmpty("cap_throttle")
	require.NotNil(t, got)
	require.Equal(t, "cap_throttle", *got)
}

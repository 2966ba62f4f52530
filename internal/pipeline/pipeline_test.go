package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
)

func TestSortedUniqueDedupesAndTrimsAndSorts(t *testing.T) {
	out := sortedUnique([]string{" b ", "a", "b", "", "a", "c"})
	require.Equal(t, []string{"a", "b", "c"}, out)
}

func TestResolveSportsPrefersAutorunOverWhitelist(t *testing.T) {
	cfg := &appconfig.Config{
		SportsAutorun:       []string{"basketball_nba"},
		OddsSportsWhitelist: []string{"americanfootball_nfl"},
	}
	require.Equal(t, []string{"basketball_nba"}, resolveSports(cfg))
}

func TestResolveSportsFallsBackToWhitelist(t *testing.T) {
	cfg := &appconfig.Config{
		OddsSportsWhitelist: []string{"americanfootball_nfl", "basketball_nba"},
	}
	require.Equal(t, []string{"americanfootball_nfl", "basketball_nba"}, resolveSports(cfg))
}

func TestResolveMarketsDefaultsToH2H(t *testing.T) {
	cfg := &appconfig.Config{}
	require.Equal(t, []string{"h2h"}, resolveMarkets(cfg))
}

func TestResolveMarketsUsesAutorunWhenSet(t *testing.T) {
	cfg := &appconfig.Config{MarketsAutorun: []string{"totals", "h2h"}}
	require.Equal(t, []string{"h2h", "totals"}, resolveMarkets(cfg))
}

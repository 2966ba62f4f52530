package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

func testCfg() *appconfig.Config {
	return &appconfig.Config{
		SharpBooks:        []string{"pinnacle", "circa"},
		SharpWeight:       2.0,
		StandardWeight:    1.0,
		ConsensusMinBooks: 2,
	}
}

func snap(gameID int64, book string, side domain.Side, capturedAt time.Time, dec float64, fair float64) domain.OddsSnapshot {
	return domain.OddsSnapshot{
		GameID:      gameID,
		MarketKey:   domain.MarketH2H,
		Bookmaker:   book,
		Side:        side,
		CapturedAt:  capturedAt,
		Decimal:     &dec,
		ImpliedProb: 1 / dec,
		FairProb:    fair,
	}
}

func TestBuildViewsGroupsByGameAndPoint(t *testing.T) {
	now := time.Now().UTC()
	rows := []domain.OddsSnapshot{
		snap(1, "draftkings", domain.SideHome, now, 1.91, 0.55),
		snap(1, "draftkings", domain.SideAway, now, 2.05, 0.45),
		snap(1, "pinnacle", domain.SideHome, now, 1.87, 0.56),
		snap(1, "pinnacle", domain.SideAway, now, 2.10, 0.44),
	}
	views := BuildViews("basketball_nba", domain.MarketH2H, rows, map[string]bool{"pinnacle": true})
	require.Len(t, views, 1)
	v := views[0]
	require.Equal(t, int64(1), v.GameID)
	require.ElementsMatch(t, []string{"draftkings", "pinnacle"}, v.BookList)
	require.Equal(t, 1, v.SharpBooks)
}

func TestBuildViewsDropsIncompleteBookmakerRows(t *testing.T) {
	now := time.Now().UTC()
	rows := []domain.OddsSnapshot{
		// draftkings never quotes AWAY — should be excluded entirely.
		snap(1, "draftkings", domain.SideHome, now, 1.91, 0.55),
		snap(1, "pinnacle", domain.SideHome, now, 1.87, 0.56),
		snap(1, "pinnacle", domain.SideAway, now, 2.10, 0.44),
	}
	views := BuildViews("basketball_nba", domain.MarketH2H, rows, nil)
	require.Len(t, views, 1)
	require.Equal(t, []string{"pinnacle"}, views[0].BookList)
}

func TestComputeInsufficientBooks(t *testing.T) {
	cfg := testCfg()
	now := time.Now().UTC()
	rows := []domain.OddsSnapshot{
		snap(1, "draftkings", domain.SideHome, now, 1.91, 0.55),
		snap(1, "draftkings", domain.SideAway, now, 2.05, 0.45),
	}
	views := BuildViews("basketball_nba", domain.MarketH2H, rows, nil)
	require.Len(t, views, 1)
	res := Compute(cfg, views[0])
	require.Equal(t, "insufficient_books", res.ConsensusReason)
	require.Nil(t, res.ConsensusProbs)
}

func TestComputeWeightsSharpBooksHigher(t *testing.T) {
	cfg := testCfg()
	now := time.Now().UTC()
	rows := []domain.OddsSnapshot{
		snap(1, "draftkings", domain.SideHome, now, 1.91, 0.50),
		snap(1, "draftkings", domain.SideAway, now, 2.05, 0.50),
		snap(1, "pinnacle", domain.SideHome, now, 1.87, 0.60),
		snap(1, "pinnacle", domain.SideAway, now, 2.10, 0.40),
	}
	views := BuildViews("basketball_nba", domain.MarketH2H, rows, map[string]bool{"pinnacle": true})
	require.Len(t, views, 1)
	res := Compute(cfg, views[0])
	require.Empty(t, res.ConsensusReason)
	require.NotNil(t, res.ConsensusProbs)
	// pinnacle (sharp, weight 2) should pull the consensus above the
	// unweighted midpoint of 0.55 toward its own 0.60 quote.
	require.Greater(t, res.ConsensusProbs[domain.SideHome], 0.55)
}

func TestComputeBestPricePrefersHigherDecimalThenLowerBookName(t *testing.T) {
	cfg := testCfg()
	now := time.Now().UTC()
	rows := []domain.OddsSnapshot{
		snap(1, "draftkings", domain.SideHome, now, 1.95, 0.52),
		snap(1, "draftkings", domain.SideAway, now, 2.05, 0.48),
		snap(1, "pinnacle", domain.SideHome, now, 1.91, 0.54),
		snap(1, "pinnacle", domain.SideAway, now, 2.05, 0.46),
	}
	views := BuildViews("basketball_nba", domain.MarketH2H, rows, nil)
	res := Compute(cfg, views[0])
	require.Equal(t, "draftkings", res.BestBook[domain.SideHome])
	require.Equal(t, 1.95, res.BestDecimal[domain.SideHome])
	// AWAY is a 2.05 tie, so the lexicographically lower book wins.
	require.Equal(t, "draftkings", res.BestBook[domain.SideAway])
	require.Equal(t, 2.05, res.BestDecimal[domain.SideAway])
}

func TestForSportChainsBuildAndCompute(t *testing.T) {
	cfg := testCfg()
	now := time.Now().UTC()
	rows := []domain.OddsSnapshot{
		snap(1, "draftkings", domain.SideHome, now, 1.91, 0.55),
		snap(1, "draftkings", domain.SideAway, now, 2.05, 0.45),
		snap(1, "pinnacle", domain.SideHome, now, 1.87, 0.56),
		snap(1, "pinnacle", domain.SideAway, now, 2.10, 0.44),
	}
	results := ForSport(cfg, "basketball_nba", domain.MarketH2H, rows)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].GameID)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/consensus"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// latestConsensus is GET /consensus/latest?sport_key=…&market_key=…,
// matching consensus.py's latest_consensus.
func (api *API) latestConsensus() gin.HandlerFunc {
	return func(c *gin.Context) {
		sportKey := c.Query("sport_key")
		marketKey := c.Query("market_key")
		if sportKey == "" || marketKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sport_key and market_key are required"})
			return
		}

		snaps, err := api.snaps.BySportAndMarket(c.Request.Context(), sportKey, domain.MarketKey(marketKey))
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}

		results := consensus.ForSport(api.cfg, sportKey, domain.MarketKey(marketKey), snaps)
		c.JSON(http.StatusOK, results)
	}
}

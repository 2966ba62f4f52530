package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// ingestOdds is POST /odds/ingest?sport_key=…, matching odds.py's
// ingest_once.
func (api *API) ingestOdds() gin.HandlerFunc {
	return func(c *gin.Context) {
		sportKey := c.Query("sport_key")
		if sportKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sport_key is required"})
			return
		}
		if api.cfg.OddsAPIKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ODDS_API_KEY is required for ingestion endpoints"})
			return
		}

		summary, err := api.ingest.IngestSport(c.Request.Context(), sportKey)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type oddsSideView struct {
	Side        domain.Side `json:"side"`
	American    *int        `json:"american"`
	Decimal     *float64    `json:"decimal"`
	ImpliedProb float64     `json:"implied_prob"`
	FairProb    float64     `json:"fair_prob"`
}

type oddsGroupView struct {
	Bookmaker  string         `json:"bookmaker"`
	Point      *float64       `json:"point"`
	CapturedAt string         `json:"captured_at"`
	Sides      []oddsSideView `json:"sides"`
}

type oddsEventView struct {
	EventID      string          `json:"event_id"`
	HomeTeam     string          `json:"home_team"`
	AwayTeam     string          `json:"away_team"`
	CommenceTime string          `json:"commence_time"`
	Groups       []oddsGroupView `json:"groups"`
}

// latestOdds is GET /odds/latest?sport_key=…&market_key=…, reducing raw
// snapshot history into the latest-per-(game,bookmaker,point) nested
// events/groups/sides shape, matching odds.py's latest_odds.
func (api *API) latestOdds() gin.HandlerFunc {
	return func(c *gin.Context) {
		sportKey := c.Query("sport_key")
		marketKey := c.Query("market_key")
		if sportKey == "" || marketKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sport_key and market_key are required"})
			return
		}

		rows, err := api.snaps.BySportAndMarket(c.Request.Context(), sportKey, domain.MarketKey(marketKey))
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}

		type groupKey struct {
			gameID    int64
			bookmaker string
			point     float64
		}
		latestPerGroup := map[groupKey]domain.OddsSnapshot{}
		for _, row := range rows {
			pv := -999999.0
			if row.Point != nil {
				pv = *row.Point
			}
			key := groupKey{row.GameID, row.Bookmaker, pv}
			if existing, ok := latestPerGroup[key]; !ok || row.CapturedAt.After(existing.CapturedAt) {
				latestPerGroup[key] = row
			}
		}

		games := map[int64]*domain.Game{}
		for _, row := range rows {
			if _, ok := games[row.GameID]; !ok {
				g, err := api.games.GetByID(c.Request.Context(), row.GameID)
				if err == nil {
					games[row.GameID] = g
				}
			}
		}

		eventsByID := map[string]*oddsEventView{}
		groupsByEventBook := map[string]map[string]*oddsGroupView{}
		for _, row := range latestPerGroup {
			game, ok := games[row.GameID]
			if !ok {
				continue
			}
			ev, ok := eventsByID[game.EventID]
			if !ok {
				ev = &oddsEventView{
					EventID:      game.EventID,
					HomeTeam:     game.HomeTeam,
					AwayTeam:     game.AwayTeam,
					CommenceTime: game.CommenceTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
				}
				eventsByID[game.EventID] = ev
				groupsByEventBook[game.EventID] = map[string]*oddsGroupView{}
			}
			pointStr := "nil"
			if row.Point != nil {
				pointStr = strconv.FormatFloat(*row.Point, 'f', -1, 64)
			}
			groupKeyStr := row.Bookmaker + ":" + pointStr
			group, ok := groupsByEventBook[game.EventID][groupKeyStr]
			if !ok {
				group = &oddsGroupView{
					Bookmaker:  row.Bookmaker,
					Point:      row.Point,
					CapturedAt: row.CapturedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				}
				groupsByEventBook[game.EventID][groupKeyStr] = group
			}
			group.Sides = append(group.Sides, oddsSideView{
				Side:        row.Side,
				American:    row.American,
				Decimal:     row.Decimal,
				ImpliedProb: row.ImpliedProb,
				FairProb:    row.FairProb,
			})
		}

		var eventIDs []string
		for id := range eventsByID {
			eventIDs = append(eventIDs, id)
		}
		sort.Strings(eventIDs)

		events := make([]oddsEventView, 0, len(eventIDs))
		for _, id := range eventIDs {
			ev := eventsByID[id]
			var groupKeys []string
			for k := range groupsByEventBook[id] {
				groupKeys = append(groupKeys, k)
			}
			sort.Strings(groupKeys)
			for _, k := range groupKeys {
				ev.Groups = append(ev.Groups, *groupsByEventBook[id][k])
			}
			events = append(events, *ev)
		}

		c.JSON(http.StatusOK, gin.H{
			"sport_key":  sportKey,
			"market_key": marketKey,
			"events":     events,
		})
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
)

type pqsScoreView struct {
	PickID     int64              `json:"pick_id"`
	EventID    string             `json:"event_id"`
	SportKey   string             `json:"sport_key"`
	MarketKey  string             `json:"market_key"`
	Side       string             `json:"side"`
	PQS        float64            `json:"pqs"`
	Version    string             `json:"version"`
	Decision   string             `json:"decision"`
	DropReason *string            `json:"drop_reason"`
	Components map[string]float64 `json:"components"`
	Features   map[string]float64 `json:"features"`
	ScoredAt   string             `json:"scored_at"`
}

// latestPQS is GET /pqs/latest?sport_key=&decision=&min_pqs=&version=&limit=,
// matching picks.py's list_pick_scores.
func (api *API) latestPQS() gin.HandlerFunc {
	return func(c *gin.Context) {
		sportKey := c.Query("sport_key")
		decision := c.Query("decision")
		minPQS := queryFloatPtr(c, "min_pqs")
		version := c.Query("version")
		if version == "" {
			version = api.cfg.PQSVersion
		}
		limit := queryInt(c, "limit", 100)

		scores, err := api.scores.Latest(c.Request.Context(), sportKey, decision, minPQS, version, limit)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}

		views := make([]pqsScoreView, 0, len(scores))
		for _, score := range scores {
			v := pqsScoreView{
				PickID:     score.PickID,
				MarketKey:  "",
				PQS:        score.PQS,
				Version:    score.Version,
				Decision:   string(score.Decision),
				DropReason: score.DropReason,
				Components: score.Components,
				Features:   score.Features,
				ScoredAt:   score.ScoredAt.UTC().Format(rfc3339),
			}
			if pick, err := api.pk.FindByID(c.Request.Context(), score.PickID); err == nil && pick != nil {
				v.MarketKey = string(pick.MarketKey)
				v.Side = string(pick.Side)
				if game, err := api.games.GetByID(c.Request.Context(), pick.GameID); err == nil {
					v.EventID = game.EventID
					v.SportKey = game.SportKey
				}
			}
			views = append(views, v)
		}
		c.JSON(http.StatusOK, gin.H{"scores": views})
	}
}

// scorePQS is POST /pqs/score, recomputing every sport/market's windowed
// CLV-prior stats, matching api/pqs.py's pqs_score calling
// recompute_clv_sport_stats.
func (api *API) scorePQS() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := api.priors.Recompute(c.Request.Context())
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

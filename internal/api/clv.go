package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
)

// computeCLV is POST /clv/compute?date_utc=&force=, matching clv.py's
// compute_clv. With no date_utc it falls back to every already-commenced
// pick (ComputeForCommenced); with date_utc it scopes to that UTC day
// (ComputeForDate), matching the original's two entry points.
func (api *API) computeCLV() gin.HandlerFunc {
	return func(c *gin.Context) {
		force := queryBool(c, "force", false)
		ctx := c.Request.Context()

		dateUTC := c.Query("date_utc")
		if dateUTC == "" {
			summary, err := api.clv.ComputeForCommenced(ctx, force)
			if err != nil {
				c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, summary)
			return
		}

		day, err := time.Parse("2006-01-02", dateUTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_utc must be YYYY-MM-DD"})
			return
		}
		summary, err := api.clv.ComputeForDate(ctx, day, force)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type clvPickView struct {
	ID                     int64    `json:"id"`
	EventID                string   `json:"event_id"`
	SportKey               string   `json:"sport_key"`
	MarketKey              string   `json:"market_key"`
	Side                   string   `json:"side"`
	BestBook               string   `json:"best_book"`
	ConsensusProb          float64  `json:"consensus_prob"`
	ClosingConsensusProb   *float64 `json:"closing_consensus_prob"`
	MarketCLV              *float64 `json:"market_clv"`
	ClosingBookDecimal     *float64 `json:"closing_book_decimal"`
	ClosingBookImpliedProb *float64 `json:"closing_book_implied_prob"`
	BookCLV                *float64 `json:"book_clv"`
	ClvComputedAt          *string  `json:"clv_computed_at"`
}

// latestCLV is GET /clv/latest?limit=, matching clv.py's list_latest_clv.
func (api *API) latestCLV() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 100)
		rows, err := api.pk.ComputedCLV(c.Request.Context())
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}

		views := make([]clvPickView, 0, len(rows))
		for _, r := range rows {
			p := r.Pick
			var computedAt *string
			if p.ClvComputedAt != nil {
				s := p.ClvComputedAt.UTC().Format(rfc3339)
				computedAt = &s
			}
			eventID := ""
			if game, err := api.games.GetByID(c.Request.Context(), p.GameID); err == nil {
				eventID = game.EventID
			}
			views = append(views, clvPickView{
				ID:                     p.ID,
				EventID:                eventID,
				SportKey:               r.SportKey,
				MarketKey:              string(p.MarketKey),
				Side:                   string(p.Side),
				BestBook:               p.BestBook,
				ConsensusProb:          p.ConsensusProb,
				ClosingConsensusProb:   p.ClosingConsensusProb,
				MarketCLV:              p.MarketCLV,
				ClosingBookDecimal:     p.ClosingBookDecimal,
				ClosingBookImpliedProb: p.ClosingBookImpliedProb,
				BookCLV:                p.BookCLV,
				ClvComputedAt:          computedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"picks": views})
	}
}

// clvSportStats is GET /stats/clv/sport?limit=, matching clv.py's
// list_clv_sport_stats.
func (api *API) clvSportStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 100)
		stats, err := api.stats.ListAll(c.Request.Context(), limit)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

// clvMetrics is GET /metrics/clv?days=, matching metrics.py's clv_metrics.
func (api *API) clvMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := queryInt(c, "days", 7)
		if days < 1 {
			days = 1
		}
		if days > 90 {
			days = 90
		}
		report, err := api.eval.ClvHealth(c.Request.Context(), days, time.Now().UTC())
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// generatePicks is POST /picks/generate?sport_key=…&market_key=…,
// matching picks.py's generate_picks, gated by the market-unlock state
// machine before any generation runs.
func (api *API) generatePicks() gin.HandlerFunc {
	return func(c *gin.Context) {
		sportKey := c.Query("sport_key")
		marketKey := c.Query("market_key")
		if sportKey == "" || marketKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sport_key and market_key are required"})
			return
		}

		ctx := c.Request.Context()
		ok, warning, err := api.gate.EnforceMarketAllowed(ctx, marketKey)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": warning})
			return
		}

		summary, err := api.picks.GenerateForSportMarket(ctx, sportKey, domain.MarketKey(marketKey))
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{"summary": summary}
		if warning != nil {
			resp["warning"] = warning
		}
		c.JSON(http.StatusOK, resp)
	}
}

type pickView struct {
	ID             int64    `json:"id"`
	CreatedAt      string   `json:"created_at"`
	SportKey       string   `json:"sport_key"`
	EventID        string   `json:"event_id"`
	CommenceTime   string   `json:"commence_time"`
	HomeTeam       string   `json:"home_team"`
	AwayTeam       string   `json:"away_team"`
	MarketKey      string   `json:"market_key"`
	Side           string   `json:"side"`
	Point          *float64 `json:"point"`
	Source         string   `json:"source"`
	ConsensusProb  float64  `json:"consensus_prob"`
	BestDecimal    float64  `json:"best_decimal"`
	BestBook       string   `json:"best_book"`
	EV             float64  `json:"ev"`
	KellyFraction  float64  `json:"kelly_fraction"`
	Stake          float64  `json:"stake"`
	ConsensusBooks int      `json:"consensus_books"`
	SharpBooks     int      `json:"sharp_books"`
	CapturedAtMin  string   `json:"captured_at_min"`
	CapturedAtMax  string   `json:"captured_at_max"`
	PQS            *float64 `json:"pqs"`
	PQSDecision    *string  `json:"pqs_decision"`
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"

func (api *API) buildPickView(ctx *gin.Context, p domain.Pick) pickView {
	v := pickView{
		ID:             p.ID,
		CreatedAt:      p.CreatedAt.UTC().Format(rfc3339),
		MarketKey:      string(p.MarketKey),
		Side:           string(p.Side),
		Point:          p.Point,
		Source:         p.Source,
		ConsensusProb:  p.ConsensusProb,
		BestDecimal:    p.BestDecimal,
		BestBook:       p.BestBook,
		EV:             p.EV,
		KellyFraction:  p.KellyFraction,
		Stake:          p.Stake,
		ConsensusBooks: p.ConsensusBooks,
		SharpBooks:     p.SharpBooks,
		CapturedAtMin:  p.CapturedAtMin.UTC().Format(rfc3339),
		CapturedAtMax:  p.CapturedAtMax.UTC().Format(rfc3339),
	}
	if game, err := api.games.GetByID(ctx.Request.Context(), p.GameID); err == nil {
		v.SportKey = game.SportKey
		v.EventID = game.EventID
		v.CommenceTime = game.CommenceTime.UTC().Format(rfc3339)
		v.HomeTeam = game.HomeTeam
		v.AwayTeam = game.AwayTeam
	}
	if score, err := api.scores.ByPickAndVersion(ctx.Request.Context(), p.ID, api.cfg.PQSVersion); err == nil && score != nil {
		pqs := score.PQS
		decision := string(score.Decision)
		v.PQS = &pqs
		v.PQSDecision = &decision
	}
	return v
}

// latestPicks is GET /picks/latest?sport_key=&market_key=&date=&limit=,
// matching picks.py's list_picks.
func (api *API) latestPicks() gin.HandlerFunc {
	return func(c *gin.Context) {
		sportKey := c.Query("sport_key")
		marketKey := c.Query("market_key")
		limit := queryInt(c, "limit", 100)

		picks, err := api.pk.Latest(c.Request.Context(), sportKey, marketKey, queryTimePtr(c, "date"), limit)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}

		views := make([]pickView, 0, len(picks))
		for _, p := range picks {
			views = append(views, api.buildPickView(c, p))
		}
		c.JSON(http.StatusOK, gin.H{"picks": views})
	}
}

type recommendedPickView struct {
	PickID                 int64    `json:"pick_id"`
	SportKey               string   `json:"sport_key"`
	MarketKey              string   `json:"market_key"`
	Side                   string   `json:"side"`
	Point                  *float64 `json:"point"`
	PQS                    float64  `json:"pqs"`
	EV                     float64  `json:"ev"`
	BookCount              int      `json:"book_count"`
	SharpBookCount         int      `json:"sharp_book_count"`
	PriceDispersion        float64  `json:"price_dispersion"`
	TimeToStartMinutes     float64  `json:"time_to_start_minutes"`
	BestVsConsensusEdge    float64  `json:"best_vs_consensus_edge"`
	Why                    string   `json:"why"`
}

// explainPick builds a short human-readable rationale string from a
// pick's scored features. There is no equivalent in the original
// service layer (picks.recommended was never wired in
// original_source/backend/app/api/picks.py); this generator is a
// gap-fill grounded on the feature set dashboard.py already expects
// for that endpoint's row shape.
func explainPick(features map[string]float64, decision string) string {
	ev := features["ev"]
	books := int(features["book_count"])
	sharp := int(features["sharp_book_count"])
	edge := features["best_vs_consensus_edge"]
	return fmt.Sprintf(
		"%s: %.1f%% EV across %d books (%d sharp), %.2f%% price edge over consensus",
		decision, ev*100, books, sharp, edge*100,
	)
}

// recommendedPicks is GET /picks/recommended?sport_key=&market_key=&limit=,
// the dashboard-facing KEEP-only feed. original_source never actually
// routes this path (see explainPick's comment); built fresh from
// dashboard.py's expected row shape plus PickScore.Features.
func (api *API) recommendedPicks() gin.HandlerFunc {
	return func(c *gin.Context) {
		sportKey := c.Query("sport_key")
		marketKey := c.Query("market_key")
		limit := queryInt(c, "limit", 50)

		scores, err := api.scores.Latest(c.Request.Context(), sportKey, string(domain.DecisionKeep), nil, api.cfg.PQSVersion, limit)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}

		views := make([]recommendedPickView, 0, len(scores))
		for _, score := range scores {
			pick, err := api.pk.FindByID(c.Request.Context(), score.PickID)
			if err != nil || pick == nil {
				continue
			}
			if marketKey != "" && string(pick.MarketKey) != marketKey {
				continue
			}
			game, err := api.games.GetByID(c.Request.Context(), pick.GameID)
			if err != nil {
				continue
			}
			views = append(views, recommendedPickView{
				PickID:              pick.ID,
				SportKey:            game.SportKey,
				MarketKey:           string(pick.MarketKey),
				Side:                string(pick.Side),
				Point:               pick.Point,
				PQS:                 score.PQS,
				EV:                  pick.EV,
				BookCount:           int(score.Features["book_count"]),
				SharpBookCount:      int(score.Features["sharp_book_count"]),
				PriceDispersion:     score.Features["price_dispersion"],
				TimeToStartMinutes:  score.Features["time_to_start_minutes"],
				BestVsConsensusEdge: score.Features["best_vs_consensus_edge"],
				Why:                 explainPick(score.Features, string(score.Decision)),
			})
		}
		c.JSON(http.StatusOK, gin.H{"picks": views})
	}
}

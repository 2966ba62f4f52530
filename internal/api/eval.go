package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/eval"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsmath"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

func queryTimePtr(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func datasetFilterFromQuery(c *gin.Context, defaultVersion string) store.DatasetFilter {
	var decisions []string
	if raw := c.Query("decision"); raw != "" {
		decisions = strings.Split(raw, ",")
	}
	version := c.Query("version")
	if version == "" {
		version = defaultVersion
	}
	return store.DatasetFilter{
		Start:     queryTimePtr(c, "start"),
		End:       queryTimePtr(c, "end"),
		SportKey:  c.Query("sport_key"),
		MarketKey: c.Query("market_key"),
		Decisions: decisions,
		Version:   version,
		Limit:     queryInt(c, "limit", 500),
		Offset:    queryInt(c, "offset", 0),
	}
}

// evalDataset is GET /eval/dataset?start=&end=&sport_key=&market_key=&
// decision=&min_n=&limit=&offset=, matching eval/service.py's
// query_eval_dataset.
func (api *API) evalDataset() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := datasetFilterFromQuery(c, api.cfg.PQSVersion)
		minN := queryInt(c, "min_n", 20)

		result, err := api.eval.Dataset(c.Request.Context(), filter, minN)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// evalDatasetCSV is GET /eval/dataset.csv, same filters as evalDataset but
// rendered as text/csv, matching the original's CSV export route.
func (api *API) evalDatasetCSV() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := datasetFilterFromQuery(c, api.cfg.PQSVersion)
		minN := queryInt(c, "min_n", 20)

		result, err := api.eval.Dataset(c.Request.Context(), filter, minN)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		if result.InsufficientN {
			c.JSON(http.StatusOK, result)
			return
		}
		csv, err := eval.DatasetCSV(result)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/csv", []byte(csv))
	}
}

// evalPQSClv is GET /eval/pqs_clv?min_n=, matching eval/service.py's
// pqs_clv_report.
func (api *API) evalPQSClv() gin.HandlerFunc {
	return func(c *gin.Context) {
		minN := queryInt(c, "min_n", 20)
		report, err := api.eval.PQSClv(c.Request.Context(), minN)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// evalGates is GET /eval/gates?min_n=, matching eval/service.py's
// gates_report.
func (api *API) evalGates() gin.HandlerFunc {
	return func(c *gin.Context) {
		minN := queryInt(c, "min_n", 20)
		report, err := api.eval.Gates(c.Request.Context(), minN)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// evalSports is GET /eval/sports?min_n=, matching eval/service.py's
// sports_report.
func (api *API) evalSports() gin.HandlerFunc {
	return func(c *gin.Context) {
		minN := queryInt(c, "min_n", 20)
		report, err := api.eval.Sports(c.Request.Context(), minN)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// evalVolume is GET /eval/volume?min_n=, matching eval/service.py's
// volume_report.
func (api *API) evalVolume() gin.HandlerFunc {
	return func(c *gin.Context) {
		minN := queryInt(c, "min_n", 20)
		report, err := api.eval.Volume(c.Request.Context(), minN)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// evalParlayNote is GET /eval/parlay_note?decimal=1.9,2.1,1.8&prob=0.55,0.5,0.6,
// a read-only, purely-derived math note over the kept parlay primitives
// (oddsmath.Parlay{DecimalOdds,Prob,EV}). It stakes nothing and creates no
// Pick rows — informational only, per spec.md's bet-placement Non-goal.
func (api *API) evalParlayNote() gin.HandlerFunc {
	return func(c *gin.Context) {
		decimals := parseFloatList(c.Query("decimal"))
		probs := parseFloatList(c.Query("prob"))
		if len(decimals) < 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "decimal must list at least 2 comma-separated leg prices"})
			return
		}

		parlayDecimal, err := oddsmath.ParlayDecimalOdds(decimals)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp := gin.H{"legs": len(decimals), "parlay_decimal_odds": parlayDecimal}

		if len(probs) == len(decimals) {
			parlayProb, err := oddsmath.ParlayProb(probs)
			if err == nil {
				resp["parlay_prob"] = parlayProb
			}
			parlayEV, err := oddsmath.ParlayEV(probs, decimals)
			if err == nil {
				resp["parlay_ev"] = parlayEV
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func parseFloatList(raw string) []float64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

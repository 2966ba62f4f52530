package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
)

// healthCheck is GET /health.
func (api *API) healthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"environment": api.cfg.AppEnv,
		})
	}
}

// marketStatus is GET /system/market_status, matching system.py's
// market_status.
func (api *API) marketStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		allowed, clvCount, err := api.gate.AllowedMarkets(ctx)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		allowedSet := map[string]bool{}
		for _, m := range allowed {
			allowedSet[m] = true
		}
		c.JSON(http.StatusOK, gin.H{
			"clv_computed_count": clvCount,
			"threshold":          api.cfg.MarketsUnlockCLVMin,
			"h2h_enabled":        allowedSet["h2h"],
			"spreads_enabled":    allowedSet["spreads"],
			"totals_enabled":     allowedSet["totals"],
			"allowed_markets":    allowed,
			"mode":               api.cfg.MarketsUnlockMode,
		})
	}
}

// systemQuota is GET /system/quota, matching quota.py's get_quota_state.
func (api *API) systemQuota() gin.HandlerFunc {
	return func(c *gin.Context) {
		headers, fetchedAt := api.quota.State()
		c.JSON(http.StatusOK, gin.H{
			"headers":    headers,
			"fetched_at": fetchedAt,
		})
	}
}

// queryInt parses an int query parameter, falling back to def on absence
// or parse failure.
func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// queryFloatPtr parses an optional float query parameter.
func queryFloatPtr(c *gin.Context, name string) *float64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// queryBool parses a bool query parameter, falling back to def.
func queryBool(c *gin.Context, name string, def bool) bool {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

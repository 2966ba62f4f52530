// Package marketgate implements the CLV-sample-size market-unlock gate:
// spreads/totals stay locked to h2h-only until enough picks have a
// computed CLV. Grounded on
// original_source/backend/app/services/market_unlock.py.
package marketgate

import (
	"context"
	"fmt"
	"strings"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

// LockReason is the structured payload returned when a market is refused
// under "gate" mode, matching enforce_market_allowed's reason dict.
type LockReason struct {
	Code              string   `json:"code"`
	RequestedMarket   string   `json:"requested_market"`
	CLVComputedCount  int64    `json:"clv_computed_count"`
	Threshold         int      `json:"threshold"`
	AllowedMarkets    []string `json:"allowed_markets"`
}

// Gate wires config and the picks repository together for market-unlock
// decisions.
type Gate struct {
	cfg   *appconfig.Config
	picks *store.PicksRepository
}

func NewGate(cfg *appconfig.Config, picks *store.PicksRepository) *Gate {
	return &Gate{cfg: cfg, picks: picks}
}

// AllowedMarkets returns ["h2h"] until clv_count crosses
// MarketsUnlockCLVMin, then the full market set, matching allowed_markets.
func (g *Gate) AllowedMarkets(ctx context.Context) ([]string, int64, error) {
	clvCount, err := g.picks.CLVComputedCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count clv computed picks: %w", err)
	}
	if clvCount < int64(g.cfg.MarketsUnlockCLVMin) {
		return []string{"h2h"}, clvCount, nil
	}
	return []string{"h2h", "spreads", "totals"}, clvCount, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// EnforceMarketAllowed checks requestedMarket against AllowedMarkets. In
// "gate" mode a locked market returns the structured LockReason together
// with an apperr.MarketLocked error. In "warn" mode it never errors; callers should
// check the returned warning and attach it to their response.
func (g *Gate) EnforceMarketAllowed(ctx context.Context, requestedMarket string) (ok bool, warning *LockReason, err error) {
	requested := strings.ToLower(strings.TrimSpace(requestedMarket))
	allowed, clvCount, err := g.AllowedMarkets(ctx)
	if err != nil {
		return false, nil, err
	}
	if contains(allowed, requested) {
		return true, nil, nil
	}

	reason := &LockReason{
		Code:             "market_locked_until_clv_100",
		RequestedMarket:  requested,
		CLVComputedCount: clvCount,
		Threshold:        g.cfg.MarketsUnlockCLVMin,
		AllowedMarkets:   allowed,
	}

	if g.cfg.MarketsUnlockMode == "warn" {
		return true, reason, nil
	}
	return false, reason, apperr.New(apperr.MarketLocked, fmt.Sprintf("market %q is locked until %d picks have computed CLV", requested, g.cfg.MarketsUnlockCLVMin))
}

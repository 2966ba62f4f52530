// Package priors recomputes the windowed CLV-sport-stat rows that feed
// the PQS scorer's adaptive thresholds. It is the Go counterpart of
// original_source/backend/app/intelligence/priors.py.
package priors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

// Summary mirrors recompute_clv_sport_stats's returned dict.
type Summary struct {
	Inserted int       `json:"inserted"`
	AsOf     time.Time `json:"as_of"`
}

// Service wires config and repositories together for prior recomputation.
type Service struct {
	cfg   *appconfig.Config
	pool  *pgxpool.Pool
	picks *store.PicksRepository
	stats *store.ClvSportStatsRepository
}

func NewService(cfg *appconfig.Config, pool *pgxpool.Pool, picks *store.PicksRepository, stats *store.ClvSportStatsRepository) *Service {
	return &Service{cfg: cfg, pool: pool, picks: picks, stats: stats}
}

func bps(v float64) float64 { return v * 10000.0 }

type sportMarketKey struct {
	sportKey  string
	marketKey domain.MarketKey
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func medianOf(vs []float64) float64 {
	n := len(vs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// pstdev is the population standard deviation, matching statistics.pstdev.
func pstdev(vs []float64) float64 {
	n := len(vs)
	if n == 0 {
		return 0
	}
	m := mean(vs)
	var sumSq float64
	for _, v := range vs {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

func round(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}

// Recompute rebuilds every (sport_key, market_key) windowed CLV stat row
// from the CLV_PRIOR_WINDOW most-recent CLV-computed picks per group,
// matching recompute_clv_sport_stats.
func (s *Service) Recompute(ctx context.Context) (Summary, error) {
	asOf := time.Now().UTC().Truncate(time.Second)
	summary := Summary{AsOf: asOf}

	rows, err := s.picks.ComputedCLV(ctx)
	if err != nil {
		return summary, fmt.Errorf("load computed clv picks: %w", err)
	}

	grouped := map[sportMarketKey][]store.PickWithSport{}
	for _, row := range rows {
		key := sportMarketKey{sportKey: row.SportKey, marketKey: row.Pick.MarketKey}
		if len(grouped[key]) < s.cfg.CLVPriorWindow {
			grouped[key] = append(grouped[key], row)
		}
	}

	keys := make([]sportMarketKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sportKey != keys[j].sportKey {
			return keys[i].sportKey < keys[j].sportKey
		}
		return keys[i].marketKey < keys[j].marketKey
	})

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("begin priors transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.stats.DeleteWindowSize(ctx, tx, s.cfg.CLVPriorWindow); err != nil {
		return summary, err
	}

	for _, key := range keys {
		group := grouped[key]

		var marketVals, bookVals []float64
		for _, row := range group {
			if row.Pick.MarketCLV != nil {
				marketVals = append(marketVals, bps(*row.Pick.MarketCLV))
			}
			if row.Pick.BookCLV != nil {
				bookVals = append(bookVals, bps(*row.Pick.BookCLV))
			}
		}

		n := len(marketVals)
		weak := n < s.cfg.CLVMinNForPrior

		var meanMarket, medianMarket, sharpe float64
		pctPositive := 0.5
		if n > 0 && !weak {
			meanMarket = mean(marketVals)
			medianMarket = medianOf(marketVals)
			positive := 0
			for _, v := range marketVals {
				if v > 0 {
					positive++
				}
			}
			pctPositive = float64(positive) / float64(n)

			vol := 0.0
			if n > 1 {
				vol = pstdev(marketVals)
			}
			if vol > 0 {
				sharpe = meanMarket / vol
			}
		}

		var meanSameBook *float64
		if len(bookVals) > 0 {
			v := round(mean(bookVals), 4)
			meanSameBook = &v
		}

		stat := domain.ClvSportStat{
			SportKey:             key.sportKey,
			MarketKey:            key.marketKey,
			SideType:             nil,
			WindowSize:           s.cfg.CLVPriorWindow,
			AsOf:                 asOf,
			N:                    n,
			MeanMarketCLVBps:     round(meanMarket, 4),
			MedianMarketCLVBps:   round(medianMarket, 4),
			PctPositiveMarketCLV: round(pctPositive, 6),
			MeanSameBookCLVBps:   meanSameBook,
			SharpeLike:           floatPtr(round(sharpe, 6)),
			IsWeak:               weak,
			LastUpdatedAt:        asOf,
		}
		if err := s.stats.Insert(ctx, tx, stat); err != nil {
			return summary, err
		}
		summary.Inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit priors transaction: %w", err)
	}
	return summary, nil
}

func floatPtr(v float64) *float64 { return &v }

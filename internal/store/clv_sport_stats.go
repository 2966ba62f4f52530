package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// ClvSportStatsRepository handles the windowed CLV-prior rows.
type ClvSportStatsRepository struct {
	db *pgxpool.Pool
}

func NewClvSportStatsRepository(db *pgxpool.Pool) *ClvSportStatsRepository {
	return &ClvSportStatsRepository{db: db}
}

// DeleteWindowSize removes every row for windowSize regardless of sport or
// market, matching priors.py's bulk delete before a full recompute.
func (r *ClvSportStatsRepository) DeleteWindowSize(ctx context.Context, tx pgx.Tx, windowSize int) error {
	if _, err := tx.Exec(ctx, `DELETE FROM clv_sport_stats WHERE window_size = $1`, windowSize); err != nil {
		return fmt.Errorf("delete clv sport stats by window size: %w", err)
	}
	return nil
}

// Insert adds one freshly computed row, used after DeleteWindowSize during
// a bulk recompute so unrelated (sport, market) combos are not resurrected.
func (r *ClvSportStatsRepository) Insert(ctx context.Context, tx pgx.Tx, stat domain.ClvSportStat) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO clv_sport_stats (
			sport_key, market_key, side_type, window_size, as_of, n,
			mean_market_clv_bps, median_market_clv_bps, pct_positive_market_clv,
			mean_same_book_clv_bps, sharpe_like, is_weak, last_updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, stat.SportKey, string(stat.MarketKey), stat.SideType, stat.WindowSize, stat.AsOf, stat.N,
		bpsDecimal(stat.MeanMarketCLVBps), bpsDecimal(stat.MedianMarketCLVBps), decimal.NewFromFloat(stat.PctPositiveMarketCLV).Round(6),
		nullableFloatDecimal(stat.MeanSameBookCLVBps, scaleBps), nullableFloatDecimal(stat.SharpeLike, 6), boolToInt(stat.IsWeak), stat.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("insert clv sport stats: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LatestPrior returns the most recent row for (sportKey, marketKey,
// sideType=null, windowSize).
func (r *ClvSportStatsRepository) LatestPrior(ctx context.Context, sportKey string, marketKey domain.MarketKey, windowSize int) (*domain.ClvSportStat, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, sport_key, market_key, side_type, window_size, as_of, n,
		       mean_market_clv_bps, median_market_clv_bps, pct_positive_market_clv,
		       mean_same_book_clv_bps, sharpe_like, is_weak, last_updated_at
		FROM clv_sport_stats
		WHERE sport_key = $1 AND market_key = $2 AND side_type IS NULL AND window_size = $3
		ORDER BY as_of DESC LIMIT 1
	`, sportKey, string(marketKey), windowSize)

	var s domain.ClvSportStat
	var mk string
	var mean, median, pct decimal.Decimal
	var meanBook, sharpe *decimal.Decimal
	var isWeak int
	if err := row.Scan(&s.ID, &s.SportKey, &mk, &s.SideType, &s.WindowSize, &s.AsOf, &s.N,
		&mean, &median, &pct, &meanBook, &sharpe, &isWeak, &s.LastUpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest clv prior: %w", err)
	}
	s.MarketKey = domain.MarketKey(mk)
	s.MeanMarketCLVBps = mustFloat(mean)
	s.MedianMarketCLVBps = mustFloat(median)
	s.PctPositiveMarketCLV = mustFloat(pct)
	s.MeanSameBookCLVBps = floatPtr(meanBook)
	s.SharpeLike = floatPtr(sharpe)
	s.IsWeak = isWeak != 0
	return &s, nil
}

// ListAll returns every row (for GET /stats/clv/sport), newest first.
func (r *ClvSportStatsRepository) ListAll(ctx context.Context, limit int) ([]domain.ClvSportStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sport_key, market_key, side_type, window_size, as_of, n,
		       mean_market_clv_bps, median_market_clv_bps, pct_positive_market_clv,
		       mean_same_book_clv_bps, sharpe_like, is_weak, last_updated_at
		FROM clv_sport_stats
		ORDER BY as_of DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list clv sport stats: %w", err)
	}
	defer rows.Close()

	var out []domain.ClvSportStat
	for rows.Next() {
		var s domain.ClvSportStat
		var mk string
		var mean, median, pct decimal.Decimal
		var meanBook, sharpe *decimal.Decimal
		var isWeak int
		if err := rows.Scan(&s.ID, &s.SportKey, &mk, &s.SideType, &s.WindowSize, &s.AsOf, &s.N,
			&mean, &median, &pct, &meanBook, &sharpe, &isWeak, &s.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan clv sport stat: %w", err)
		}
		s.MarketKey = domain.MarketKey(mk)
		s.MeanMarketCLVBps = mustFloat(mean)
		s.MedianMarketCLVBps = mustFloat(median)
		s.PctPositiveMarketCLV = mustFloat(pct)
		s.MeanSameBookCLVBps = floatPtr(meanBook)
		s.SharpeLike = floatPtr(sharpe)
		s.IsWeak = isWeak != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

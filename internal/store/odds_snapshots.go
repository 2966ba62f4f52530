package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// OddsSnapshotsRepository handles the immutable per-quote rows.
type OddsSnapshotsRepository struct {
	db *pgxpool.Pool
}

func NewOddsSnapshotsRepository(db *pgxpool.Pool) *OddsSnapshotsRepository {
	return &OddsSnapshotsRepository{db: db}
}

// InsertBatch writes every snapshot for one changed group in a single
// round trip, matching the batch-insert idiom of the teacher's
// OddsRepository.CreateBatch.
func (r *OddsSnapshotsRepository) InsertBatch(ctx context.Context, tx pgx.Tx, snaps []domain.OddsSnapshot) error {
	batch := &pgx.Batch{}
	for _, s := range snaps {
		batch.Queue(`
			INSERT INTO odds_snapshots (
				game_id, captured_at, market_key, bookmaker, side, point,
				american, decimal_odds, implied_prob, fair_prob, group_hash
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, s.GameID, s.CapturedAt, string(s.MarketKey), s.Bookmaker, string(s.Side), pointDecimal(s.Point),
			s.American, nullableFloatDecimal(s.Decimal, scaleOdds), probDecimal(s.ImpliedProb), probDecimal(s.FairProb), s.GroupHash)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert odds snapshot: %w", err)
		}
	}
	return nil
}

func scanSnapshot(rows pgx.Rows) (domain.OddsSnapshot, error) {
	var s domain.OddsSnapshot
	var marketKey, side string
	var point, dec *decimal.Decimal
	var implied, fair decimal.Decimal
	err := rows.Scan(&s.ID, &s.GameID, &s.CapturedAt, &marketKey, &s.Bookmaker, &side, &point,
		&s.American, &dec, &implied, &fair, &s.GroupHash)
	if err != nil {
		return s, err
	}
	s.MarketKey = domain.MarketKey(marketKey)
	s.Side = domain.Side(side)
	s.Point = floatPtr(point)
	s.Decimal = floatPtr(dec)
	s.ImpliedProb = mustFloat(implied)
	s.FairProb = mustFloat(fair)
	return s, nil
}

const snapshotColumns = `id, game_id, captured_at, market_key, bookmaker, side, point, american, decimal_odds, implied_prob, fair_prob, group_hash`

// ByGameAndMarket returns every snapshot ever captured for (gameID, market),
// ordered oldest-first, the raw material the consensus builder partitions
// by bookmaker and point.
func (r *OddsSnapshotsRepository) ByGameAndMarket(ctx context.Context, gameID int64, market domain.MarketKey) ([]domain.OddsSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM odds_snapshots
		WHERE game_id = $1 AND market_key = $2
		ORDER BY captured_at ASC, bookmaker ASC, side ASC
	`, gameID, string(market))
	if err != nil {
		return nil, fmt.Errorf("query odds snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.OddsSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan odds snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// BySportAndMarket returns every snapshot for every game of sportKey in
// market, used to build consensus views across the whole sport in one
// query.
func (r *OddsSnapshotsRepository) BySportAndMarket(ctx context.Context, sportKey string, market domain.MarketKey) ([]domain.OddsSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT os.id, os.game_id, os.captured_at, os.market_key, os.bookmaker, os.side, os.point,
		       os.american, os.decimal_odds, os.implied_prob, os.fair_prob, os.group_hash
		FROM odds_snapshots os
		JOIN games g ON g.id = os.game_id
		WHERE g.sport_key = $1 AND os.market_key = $2
		ORDER BY os.game_id ASC, os.captured_at ASC, os.bookmaker ASC, os.side ASC
	`, sportKey, string(market))
	if err != nil {
		return nil, fmt.Errorf("query odds snapshots by sport: %w", err)
	}
	defer rows.Close()

	var out []domain.OddsSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan odds snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// BeforeCommence returns every pre-commence snapshot for (gameID, market,
// point) with captured_at before cutoff, the CLV engine's closing-window
// search space.
func (r *OddsSnapshotsRepository) BeforeCommence(ctx context.Context, gameID int64, market domain.MarketKey, point *float64, cutoff time.Time) ([]domain.OddsSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM odds_snapshots
		WHERE game_id = $1 AND market_key = $2 AND point IS NOT DISTINCT FROM $3 AND captured_at < $4
		ORDER BY captured_at ASC, bookmaker ASC, side ASC
	`, gameID, string(market), pointDecimal(point), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query closing-window snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.OddsSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan odds snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

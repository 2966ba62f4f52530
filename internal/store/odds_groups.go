package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// OddsGroupsRepository handles OddsGroup persistence — the content-hash
// ledger ingest uses to skip no-op writes.
type OddsGroupsRepository struct {
	db *pgxpool.Pool
}

func NewOddsGroupsRepository(db *pgxpool.Pool) *OddsGroupsRepository {
	return &OddsGroupsRepository{db: db}
}

func scanOddsGroup(row pgx.Row) (*domain.OddsGroup, error) {
	var g domain.OddsGroup
	var marketKey string
	var point *decimal.Decimal
	if err := row.Scan(&g.ID, &g.GameID, &marketKey, &g.Bookmaker, &point, &g.LastHash, &g.LastCapturedAt); err != nil {
		return nil, err
	}
	g.MarketKey = domain.MarketKey(marketKey)
	g.Point = floatPtr(point)
	return &g, nil
}

// Get looks up the existing group by its unique quadruple, returning
// (nil, nil) when no group has ever been written for it.
func (r *OddsGroupsRepository) Get(ctx context.Context, tx pgx.Tx, gameID int64, market domain.MarketKey, bookmaker string, point *float64) (*domain.OddsGroup, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, game_id, market_key, bookmaker, point, last_hash, last_captured_at
		FROM odds_groups
		WHERE game_id = $1 AND market_key = $2 AND bookmaker = $3 AND point IS NOT DISTINCT FROM $4
	`, gameID, string(market), bookmaker, pointDecimal(point))
	g, err := scanOddsGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get odds group: %w", err)
	}
	return g, nil
}

// Upsert writes the new hash/captured_at for a group, inserting the row on
// first sight.
func (r *OddsGroupsRepository) Upsert(ctx context.Context, tx pgx.Tx, gameID int64, market domain.MarketKey, bookmaker string, point *float64, hash string, capturedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO odds_groups (game_id, market_key, bookmaker, point, last_hash, last_captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, market_key, bookmaker, point) DO UPDATE SET
			last_hash = EXCLUDED.last_hash,
			last_captured_at = EXCLUDED.last_captured_at
	`, gameID, string(market), bookmaker, pointDecimal(point), hash, capturedAt)
	if err != nil {
		return fmt.Errorf("upsert odds group: %w", err)
	}
	return nil
}

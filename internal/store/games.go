package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// GamesRepository handles Game persistence.
type GamesRepository struct {
	db *pgxpool.Pool
}

func NewGamesRepository(db *pgxpool.Pool) *GamesRepository {
	return &GamesRepository{db: db}
}

// UpsertGame creates the Game row on first sight of event_id, or updates the
// mutable team-name/commence-time fields on every later ingest, matching
// ingest.py's "create-or-update-unconditionally" behaviour.
func (r *GamesRepository) UpsertGame(ctx context.Context, tx pgx.Tx, sportKey, eventID string, commenceTime time.Time, homeTeam, awayTeam string) (*domain.Game, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO games (sport_key, event_id, commence_time, home_team, away_team)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO UPDATE SET
			commence_time = EXCLUDED.commence_time,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			updated_at = now()
		RETURNING id, sport_key, event_id, commence_time, home_team, away_team, created_at, updated_at
	`, sportKey, eventID, commenceTime, homeTeam, awayTeam)

	return scanGame(row)
}

func scanGame(row pgx.Row) (*domain.Game, error) {
	var g domain.Game
	if err := row.Scan(&g.ID, &g.SportKey, &g.EventID, &g.CommenceTime, &g.HomeTeam, &g.AwayTeam, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan game: %w", err)
	}
	return &g, nil
}

func (r *GamesRepository) GetByID(ctx context.Context, id int64) (*domain.Game, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, sport_key, event_id, commence_time, home_team, away_team, created_at, updated_at
		FROM games WHERE id = $1
	`, id)
	return scanGame(row)
}

func (r *GamesRepository) GetByEventID(ctx context.Context, eventID string) (*domain.Game, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, sport_key, event_id, commence_time, home_team, away_team, created_at, updated_at
		FROM games WHERE event_id = $1
	`, eventID)
	return scanGame(row)
}

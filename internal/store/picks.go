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

// PicksRepository handles Pick persistence.
type PicksRepository struct {
	db *pgxpool.Pool
}

func NewPicksRepository(db *pgxpool.Pool) *PicksRepository {
	return &PicksRepository{db: db}
}

const pickColumns = `id, game_id, created_at, market_key, side, point, source, consensus_prob,
	best_decimal, best_book, ev, kelly_fraction, stake, consensus_books, sharp_books,
	captured_at_min, captured_at_max, closing_consensus_prob, closing_book_decimal,
	closing_book_implied_prob, market_clv, book_clv, clv_computed_at`

func scanPick(row interface {
	Scan(dest ...any) error
}) (*domain.Pick, error) {
	var p domain.Pick
	var marketKey, side string
	var point, closingConsensus, closingBookDec, closingBookImplied, marketCLV, bookCLV *decimal.Decimal
	var consensusProb, bestDecimal, ev, kelly, stake decimal.Decimal
	err := row.Scan(&p.ID, &p.GameID, &p.CreatedAt, &marketKey, &side, &point, &p.Source, &consensusProb,
		&bestDecimal, &p.BestBook, &ev, &kelly, &stake, &p.ConsensusBooks, &p.SharpBooks,
		&p.CapturedAtMin, &p.CapturedAtMax, &closingConsensus, &closingBookDec,
		&closingBookImplied, &marketCLV, &bookCLV, &p.ClvComputedAt)
	if err != nil {
		return nil, err
	}
	p.MarketKey = domain.MarketKey(marketKey)
	p.Side = domain.Side(side)
	p.Point = floatPtr(point)
	p.ConsensusProb = mustFloat(consensusProb)
	p.BestDecimal = mustFloat(bestDecimal)
	p.EV = mustFloat(ev)
	p.KellyFraction = mustFloat(kelly)
	p.Stake = mustFloat(stake)
	p.ClosingConsensusProb = floatPtr(closingConsensus)
	p.ClosingBookDecimal = floatPtr(closingBookDec)
	p.ClosingBookImpliedProb = floatPtr(closingBookImplied)
	p.MarketCLV = floatPtr(marketCLV)
	p.BookCLV = floatPtr(bookCLV)
	return &p, nil
}

// FindExisting looks up a Pick by its uniqueness quintuple
// (game, market, point, side, best_book, captured_at_max), used by the
// pick generator's idempotency pre-check.
func (r *PicksRepository) FindExisting(ctx context.Context, tx pgx.Tx, gameID int64, market domain.MarketKey, point *float64, side domain.Side, bestBook string, capturedAtMax time.Time) (*domain.Pick, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+pickColumns+`
		FROM picks
		WHERE game_id = $1 AND market_key = $2 AND point IS NOT DISTINCT FROM $3
		  AND side = $4 AND best_book = $5 AND captured_at_max = $6
	`, gameID, string(market), pointDecimal(point), string(side), bestBook, capturedAtMax)
	p, err := scanPick(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find existing pick: %w", err)
	}
	return p, nil
}

// Insert creates a new Pick row and returns it with its assigned ID.
func (r *PicksRepository) Insert(ctx context.Context, tx pgx.Tx, p domain.Pick) (*domain.Pick, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO picks (
			game_id, market_key, side, point, source, consensus_prob, best_decimal, best_book,
			ev, kelly_fraction, stake, consensus_books, sharp_books, captured_at_min, captured_at_max
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING `+pickColumns, p.GameID, string(p.MarketKey), string(p.Side), pointDecimal(p.Point), p.Source,
		probDecimal(p.ConsensusProb), oddsDecimal(p.BestDecimal), p.BestBook,
		probDecimal(p.EV), probDecimal(p.KellyFraction), stakeDecimal(p.Stake),
		p.ConsensusBooks, p.SharpBooks, p.CapturedAtMin, p.CapturedAtMax)
	out, err := scanPick(row)
	if err != nil {
		return nil, fmt.Errorf("insert pick: %w", err)
	}
	return out, nil
}

// FindByID loads a single Pick by its primary key, used by the
// recommended-picks feed to hydrate a PickScore row back into its Pick.
func (r *PicksRepository) FindByID(ctx context.Context, id int64) (*domain.Pick, error) {
	row := r.db.QueryRow(ctx, `SELECT `+pickColumns+` FROM picks WHERE id = $1`, id)
	p, err := scanPick(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pick by id: %w", err)
	}
	return p, nil
}

// SetCLV writes the CLV engine's fields onto an existing Pick.
func (r *PicksRepository) SetCLV(ctx context.Context, tx pgx.Tx, pickID int64, closingConsensus *float64, closingBookDecimal, closingBookImplied *float64, marketCLV, bookCLV *float64, computedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE picks SET
			closing_consensus_prob = $2,
			closing_book_decimal = $3,
			closing_book_implied_prob = $4,
			market_clv = $5,
			book_clv = $6,
			clv_computed_at = $7
		WHERE id = $1
	`, pickID, nullableFloatDecimal(closingConsensus, scaleProb), nullableFloatDecimal(closingBookDecimal, scaleOdds),
		nullableFloatDecimal(closingBookImplied, scaleProb), nullableFloatDecimal(marketCLV, scaleProb),
		nullableFloatDecimal(bookCLV, scaleProb), computedAt)
	if err != nil {
		return fmt.Errorf("set pick clv: %w", err)
	}
	return nil
}

// PendingCLV returns the picks whose game's commence_time falls on UTC day
// day: only those still lacking clv_computed_at, or all of them when force
// is true. The int64 result is always 0.
func (r *PicksRepository) PendingCLV(ctx context.Context, day time.Time, force bool) ([]domain.Pick, int64, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	clvFilter := "p.clv_computed_at IS NULL"
	if force {
		clvFilter = "TRUE"
	}

	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.game_id, p.created_at, p.market_key, p.side, p.point, p.source, p.consensus_prob,
		       p.best_decimal, p.best_book, p.ev, p.kelly_fraction, p.stake, p.consensus_books, p.sharp_books,
		       p.captured_at_min, p.captured_at_max, p.closing_consensus_prob, p.closing_book_decimal,
		       p.closing_book_implied_prob, p.market_clv, p.book_clv, p.clv_computed_at
		FROM picks p
		JOIN games g ON g.id = p.game_id
		WHERE g.commence_time >= $1 AND g.commence_time < $2 AND `+clvFilter+`
		ORDER BY p.id ASC
	`, dayStart, dayEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("query pending clv: %w", err)
	}
	defer rows.Close()

	var out []domain.Pick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan pending clv pick: %w", err)
		}
		out = append(out, *p)
	}
	return out, 0, rows.Err()
}

// PendingCLVCommenced returns every pick whose game has already commenced
// (commence_time <= asOfUTC), optionally restricted to clv_computed_at IS
// NULL, ordered by commence_time then id, matching run_clv's source query
// (no UTC-day boundary, unlike PendingCLV).
func (r *PicksRepository) PendingCLVCommenced(ctx context.Context, asOfUTC time.Time, force bool) ([]domain.Pick, error) {
	clvFilter := "p.clv_computed_at IS NULL"
	if force {
		clvFilter = "TRUE"
	}

	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.game_id, p.created_at, p.market_key, p.side, p.point, p.source, p.consensus_prob,
		       p.best_decimal, p.best_book, p.ev, p.kelly_fraction, p.stake, p.consensus_books, p.sharp_books,
		       p.captured_at_min, p.captured_at_max, p.closing_consensus_prob, p.closing_book_decimal,
		       p.closing_book_implied_prob, p.market_clv, p.book_clv, p.clv_computed_at
		FROM picks p
		JOIN games g ON g.id = p.game_id
		WHERE g.commence_time <= $1 AND `+clvFilter+`
		ORDER BY g.commence_time ASC, p.id ASC
	`, asOfUTC)
	if err != nil {
		return nil, fmt.Errorf("query pending clv commenced: %w", err)
	}
	defer rows.Close()

	var out []domain.Pick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending clv commenced pick: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// PickWithSport pairs a Pick with its game's sport_key, the shape the
// priors recompute groups by.
type PickWithSport struct {
	Pick     domain.Pick
	SportKey string
}

// ComputedCLV returns every pick with a non-null market_clv, newest first,
// joined to its game's sport_key, matching recompute_clv_sport_stats's
// source query.
func (r *PicksRepository) ComputedCLV(ctx context.Context) ([]PickWithSport, error) {
	rows, err := r.db.Query(ctx, `
		SELECT g.sport_key, p.id, p.game_id, p.created_at, p.market_key, p.side, p.point, p.source, p.consensus_prob,
		       p.best_decimal, p.best_book, p.ev, p.kelly_fraction, p.stake, p.consensus_books, p.sharp_books,
		       p.captured_at_min, p.captured_at_max, p.closing_consensus_prob, p.closing_book_decimal,
		       p.closing_book_implied_prob, p.market_clv, p.book_clv, p.clv_computed_at
		FROM picks p
		JOIN games g ON g.id = p.game_id
		WHERE p.clv_computed_at IS NOT NULL AND p.market_clv IS NOT NULL
		ORDER BY p.clv_computed_at DESC, p.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query computed clv picks: %w", err)
	}
	defer rows.Close()

	var out []PickWithSport
	for rows.Next() {
		var sportKey string
		var marketKey, side string
		var point, closingConsensus, closingBookDec, closingBookImplied, marketCLV, bookCLV *decimal.Decimal
		var consensusProb, bestDecimal, ev, kelly, stake decimal.Decimal
		var p domain.Pick
		if err := rows.Scan(&sportKey, &p.ID, &p.GameID, &p.CreatedAt, &marketKey, &side, &point, &p.Source, &consensusProb,
			&bestDecimal, &p.BestBook, &ev, &kelly, &stake, &p.ConsensusBooks, &p.SharpBooks,
			&p.CapturedAtMin, &p.CapturedAtMax, &closingConsensus, &closingBookDec,
			&closingBookImplied, &marketCLV, &bookCLV, &p.ClvComputedAt); err != nil {
			return nil, fmt.Errorf("scan computed clv pick: %w", err)
		}
		p.MarketKey = domain.MarketKey(marketKey)
		p.Side = domain.Side(side)
		p.Point = floatPtr(point)
		p.ConsensusProb = mustFloat(consensusProb)
		p.BestDecimal = mustFloat(bestDecimal)
		p.EV = mustFloat(ev)
		p.KellyFraction = mustFloat(kelly)
		p.Stake = mustFloat(stake)
		p.ClosingConsensusProb = floatPtr(closingConsensus)
		p.ClosingBookDecimal = floatPtr(closingBookDec)
		p.ClosingBookImpliedProb = floatPtr(closingBookImplied)
		p.MarketCLV = floatPtr(marketCLV)
		p.BookCLV = floatPtr(bookCLV)
		out = append(out, PickWithSport{Pick: p, SportKey: sportKey})
	}
	return out, rows.Err()
}

// CLVComputedCount is the market-unlock gate's denominator.
func (r *PicksRepository) CLVComputedCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM picks WHERE clv_computed_at IS NOT NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clv computed picks: %w", err)
	}
	return n, nil
}

// Latest returns the most recent KEEP/WARN picks, optionally filtered by
// sport/market/date, for GET /picks/latest.
func (r *PicksRepository) Latest(ctx context.Context, sportKey, market string, date *time.Time, limit int) ([]domain.Pick, error) {
	query := `
		SELECT p.id, p.game_id, p.created_at, p.market_key, p.side, p.point, p.source, p.consensus_prob,
		       p.best_decimal, p.best_book, p.ev, p.kelly_fraction, p.stake, p.consensus_books, p.sharp_books,
		       p.captured_at_min, p.captured_at_max, p.closing_consensus_prob, p.closing_book_decimal,
		       p.closing_book_implied_prob, p.market_clv, p.book_clv, p.clv_computed_at
		FROM picks p
		JOIN games g ON g.id = p.game_id
		JOIN LATERAL (
			SELECT decision FROM pick_scores ps WHERE ps.pick_id = p.id ORDER BY ps.scored_at DESC LIMIT 1
		) latest_score ON TRUE
		WHERE latest_score.decision IN ('KEEP','WARN')
	`
	args := []any{}
	argN := 1
	if sportKey != "" {
		query += fmt.Sprintf(" AND g.sport_key = $%d", argN)
		args = append(args, sportKey)
		argN++
	}
	if market != "" {
		query += fmt.Sprintf(" AND p.market_key = $%d", argN)
		args = append(args, market)
		argN++
	}
	if date != nil {
		start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		end := start.Add(24 * time.Hour)
		query += fmt.Sprintf(" AND p.created_at >= $%d AND p.created_at < $%d", argN, argN+1)
		args = append(args, start, end)
		argN += 2
	}
	query += fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest picks: %w", err)
	}
	defer rows.Close()

	var out []domain.Pick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, fmt.Errorf("scan latest pick: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

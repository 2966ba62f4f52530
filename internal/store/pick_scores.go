package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// PickScoresRepository handles the versioned PQS verdict per Pick.
type PickScoresRepository struct {
	db *pgxpool.Pool
}

func NewPickScoresRepository(db *pgxpool.Pool) *PickScoresRepository {
	return &PickScoresRepository{db: db}
}

func scanPickScore(row interface {
	Scan(dest ...any) error
}) (*domain.PickScore, error) {
	var ps domain.PickScore
	var version, decision string
	var pqs decimal.Decimal
	var componentsRaw, featuresRaw []byte
	var dropReason *string
	if err := row.Scan(&ps.ID, &ps.PickID, &ps.ScoredAt, &version, &pqs, &componentsRaw, &featuresRaw, &decision, &dropReason); err != nil {
		return nil, err
	}
	ps.Version = version
	ps.PQS = mustFloat(pqs)
	ps.Decision = domain.Decision(decision)
	ps.DropReason = dropReason
	_ = json.Unmarshal(componentsRaw, &ps.Components)
	_ = json.Unmarshal(featuresRaw, &ps.Features)
	return &ps, nil
}

const pickScoreColumns = `id, pick_id, scored_at, version, pqs, components_json, features_json, decision, drop_reason`

// Upsert inserts or replaces the (pick_id, version) row, matching the
// original's "upsert one PickScore per (pick, version)" behaviour.
func (r *PickScoresRepository) Upsert(ctx context.Context, tx pgx.Tx, ps domain.PickScore) (*domain.PickScore, error) {
	components, err := json.Marshal(ps.Components)
	if err != nil {
		return nil, fmt.Errorf("marshal pick score components: %w", err)
	}
	features, err := json.Marshal(ps.Features)
	if err != nil {
		return nil, fmt.Errorf("marshal pick score features: %w", err)
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO pick_scores (pick_id, scored_at, version, pqs, components_json, features_json, decision, drop_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (pick_id, version) DO UPDATE SET
			scored_at = EXCLUDED.scored_at,
			pqs = EXCLUDED.pqs,
			components_json = EXCLUDED.components_json,
			features_json = EXCLUDED.features_json,
			decision = EXCLUDED.decision,
			drop_reason = EXCLUDED.drop_reason
		RETURNING `+pickScoreColumns,
		ps.PickID, ps.ScoredAt, ps.Version, probDecimal(ps.PQS).Round(6), components, features, string(ps.Decision), ps.DropReason)
	out, err := scanPickScore(row)
	if err != nil {
		return nil, fmt.Errorf("upsert pick score: %w", err)
	}
	return out, nil
}

// SetDecision mutates an existing PickScore's decision/drop_reason in
// place, used by cap-throttle.
func (r *PickScoresRepository) SetDecision(ctx context.Context, tx pgx.Tx, pickID int64, version string, decision domain.Decision, dropReason *string) error {
	_, err := tx.Exec(ctx, `
		UPDATE pick_scores SET decision = $3, drop_reason = $4
		WHERE pick_id = $1 AND version = $2
	`, pickID, version, string(decision), dropReason)
	if err != nil {
		return fmt.Errorf("set pick score decision: %w", err)
	}
	return nil
}

func (r *PickScoresRepository) ByPickAndVersion(ctx context.Context, pickID int64, version string) (*domain.PickScore, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+pickScoreColumns+` FROM pick_scores WHERE pick_id = $1 AND version = $2
	`, pickID, version)
	ps, err := scanPickScore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pick score: %w", err)
	}
	return ps, nil
}

// Latest filters PickScore rows by sport/decision/min_pqs/version for
// GET /pqs/latest.
func (r *PickScoresRepository) Latest(ctx context.Context, sportKey string, decision string, minPQS *float64, version string, limit int) ([]domain.PickScore, error) {
	query := `
		SELECT ps.id, ps.pick_id, ps.scored_at, ps.version, ps.pqs, ps.components_json, ps.features_json, ps.decision, ps.drop_reason
		FROM pick_scores ps
		JOIN picks p ON p.id = ps.pick_id
		JOIN games g ON g.id = p.game_id
		WHERE ps.version = $1
	`
	args := []any{version}
	argN := 2
	if sportKey != "" {
		query += fmt.Sprintf(" AND g.sport_key = $%d", argN)
		args = append(args, sportKey)
		argN++
	}
	if decision != "" {
		query += fmt.Sprintf(" AND ps.decision = $%d", argN)
		args = append(args, decision)
		argN++
	}
	if minPQS != nil {
		query += fmt.Sprintf(" AND ps.pqs >= $%d", argN)
		args = append(args, probDecimal(*minPQS).Round(6))
		argN++
	}
	query += fmt.Sprintf(" ORDER BY ps.scored_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pick scores: %w", err)
	}
	defer rows.Close()

	var out []domain.PickScore
	for rows.Next() {
		ps, err := scanPickScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pick score: %w", err)
		}
		out = append(out, *ps)
	}
	return out, rows.Err()
}

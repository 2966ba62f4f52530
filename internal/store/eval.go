package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// toBps converts a nullable probability-scale decimal into a bps float,
// rounded to 4 places, matching _to_bps.
func toBps(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	v, _ := d.Mul(decimal.NewFromInt(10000)).Round(4).Float64()
	return &v
}

// EvalRepository serves the eval/calibration dataset: one row per
// (pick, pick_score, game) joined on version.
type EvalRepository struct {
	db *pgxpool.Pool
}

func NewEvalRepository(db *pgxpool.Pool) *EvalRepository {
	return &EvalRepository{db: db}
}

// EvalRow is one scored pick joined to its game, matching query_eval_dataset's
// row shape.
type EvalRow struct {
	PickID            int64      `json:"pick_id"`
	CreatedAt         time.Time  `json:"created_at"`
	ClvComputedAt     *time.Time `json:"clv_computed_at"`
	SportKey          string     `json:"sport_key"`
	MarketKey         string     `json:"market_key"`
	EventID           string     `json:"event_id"`
	CommenceTimeUTC   time.Time  `json:"commence_time_utc"`
	Side              string     `json:"side"`
	Point             *float64   `json:"point"`
	PQS               float64    `json:"pqs"`
	Decision          string     `json:"decision"`
	DropReason        *string    `json:"drop_reason"`
	MarketCLVBps      *float64   `json:"market_clv_bps"`
	SameBookCLVBps    *float64   `json:"same_book_clv_bps"`
	ClosingSnapshotAt *time.Time `json:"closing_snapshot_at"`
}

// DatasetFilter mirrors query_eval_dataset's keyword arguments.
type DatasetFilter struct {
	Start     *time.Time
	End       *time.Time
	SportKey  string
	MarketKey string
	Decisions []string
	Version   string
	Limit     int
	Offset    int
}

// Dataset returns the full matching row set (pre-pagination count) and the
// page requested by Limit/Offset, ordered by created_at, id ascending,
// matching query_eval_dataset.
func (r *EvalRepository) Dataset(ctx context.Context, f DatasetFilter) ([]EvalRow, int, error) {
	query := `
		SELECT p.id, p.created_at, p.clv_computed_at, g.sport_key, p.market_key, g.event_id,
		       g.commence_time, p.side, p.point, ps.pqs, ps.decision, ps.drop_reason,
		       p.market_clv, p.book_clv, p.captured_at_max
		FROM picks p
		JOIN pick_scores ps ON ps.pick_id = p.id AND ps.version = $1
		JOIN games g ON g.id = p.game_id
		WHERE 1=1`
	args := []any{f.Version}

	if f.Start != nil {
		args = append(args, *f.Start)
		query += fmt.Sprintf(" AND p.created_at >= $%d", len(args))
	}
	if f.End != nil {
		args = append(args, *f.End)
		query += fmt.Sprintf(" AND p.created_at <= $%d", len(args))
	}
	if f.SportKey != "" {
		args = append(args, f.SportKey)
		query += fmt.Sprintf(" AND g.sport_key = $%d", len(args))
	}
	if f.MarketKey != "" {
		args = append(args, f.MarketKey)
		query += fmt.Sprintf(" AND p.market_key = $%d", len(args))
	}
	if len(f.Decisions) > 0 {
		args = append(args, f.Decisions)
		query += fmt.Sprintf(" AND ps.decision = ANY($%d)", len(args))
	}
	query += " ORDER BY p.created_at ASC, p.id ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query eval dataset: %w", err)
	}
	defer rows.Close()

	var out []EvalRow
	for rows.Next() {
		var e EvalRow
		var point *decimal.Decimal
		var pqs decimal.Decimal
		var marketCLV, bookCLV *decimal.Decimal
		if err := rows.Scan(&e.PickID, &e.CreatedAt, &e.ClvComputedAt, &e.SportKey, &e.MarketKey, &e.EventID,
			&e.CommenceTimeUTC, &e.Side, &point, &pqs, &e.Decision, &e.DropReason,
			&marketCLV, &bookCLV, &e.ClosingSnapshotAt); err != nil {
			return nil, 0, fmt.Errorf("scan eval row: %w", err)
		}
		e.Point = floatPtr(point)
		e.PQS = mustFloat(pqs)
		e.MarketCLVBps = toBps(marketCLV)
		e.SameBookCLVBps = toBps(bookCLV)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	total := len(out)
	start := f.Offset
	if start > total {
		start = total
	}
	end := start + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return out[start:end], total, nil
}

// PQSClvPairs returns (pqs, market_clv) pairs for every pick with computed
// CLV at the given version, ordered by pqs then id, matching pqs_clv_report's
// source query.
func (r *EvalRepository) PQSClvPairs(ctx context.Context, version string) ([]int64, []float64, []float64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, ps.pqs, p.market_clv
		FROM picks p
		JOIN pick_scores ps ON ps.pick_id = p.id AND ps.version = $1
		WHERE p.clv_computed_at IS NOT NULL AND p.market_clv IS NOT NULL
		ORDER BY ps.pqs ASC, p.id ASC
	`, version)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query pqs clv pairs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	var pqs []float64
	var clv []float64
	for rows.Next() {
		var id int64
		var pqsVal, clvVal decimal.Decimal
		if err := rows.Scan(&id, &pqsVal, &clvVal); err != nil {
			return nil, nil, nil, fmt.Errorf("scan pqs clv pair: %w", err)
		}
		ids = append(ids, id)
		pqs = append(pqs, mustFloat(pqsVal))
		clv = append(clv, *toBps(&clvVal))
	}
	return ids, pqs, clv, rows.Err()
}

// GateRow is one (decision, drop_reason, market_clv) triple, matching
// gates_report's source query.
type GateRow struct {
	Decision   string
	DropReason *string
	MarketCLV  *float64
}

func (r *EvalRepository) GateRows(ctx context.Context, version string) ([]GateRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ps.decision, ps.drop_reason, p.market_clv
		FROM pick_scores ps
		JOIN picks p ON p.id = ps.pick_id
		WHERE ps.version = $1
		ORDER BY ps.id ASC
	`, version)
	if err != nil {
		return nil, fmt.Errorf("query gate rows: %w", err)
	}
	defer rows.Close()

	var out []GateRow
	for rows.Next() {
		var g GateRow
		var clv *decimal.Decimal
		if err := rows.Scan(&g.Decision, &g.DropReason, &clv); err != nil {
			return nil, fmt.Errorf("scan gate row: %w", err)
		}
		g.MarketCLV = toBps(clv)
		out = append(out, g)
	}
	return out, rows.Err()
}

// SportRow is one (sport_key, market_key, pqs, decision, market_clv)
// quintuple, matching sports_report's source query.
type SportRow struct {
	SportKey  string
	MarketKey string
	PQS       float64
	Decision  string
	MarketCLV *float64
}

func (r *EvalRepository) SportRows(ctx context.Context, version string) ([]SportRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT g.sport_key, p.market_key, ps.pqs, ps.decision, p.market_clv
		FROM picks p
		JOIN games g ON g.id = p.game_id
		JOIN pick_scores ps ON ps.pick_id = p.id AND ps.version = $1
		ORDER BY g.sport_key ASC, p.market_key ASC, p.id ASC
	`, version)
	if err != nil {
		return nil, fmt.Errorf("query sport rows: %w", err)
	}
	defer rows.Close()

	var out []SportRow
	for rows.Next() {
		var s SportRow
		var pqs decimal.Decimal
		var clv *decimal.Decimal
		if err := rows.Scan(&s.SportKey, &s.MarketKey, &pqs, &s.Decision, &clv); err != nil {
			return nil, fmt.Errorf("scan sport row: %w", err)
		}
		s.PQS = mustFloat(pqs)
		s.MarketCLV = toBps(clv)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllRuns returns every pipeline run, oldest first, for volume_report.
func (r *EvalRepository) AllRuns(ctx context.Context) ([]domain.PipelineRun, error) {
	rows, err := r.db.Query(ctx, `SELECT `+pipelineRunColumns+` FROM pipeline_runs ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query all pipeline runs: %w", err)
	}
	defer rows.Close()

	var out []domain.PipelineRun
	for rows.Next() {
		pr, err := scanPipelineRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

// CLVForCalibration returns (created_at, clv_computed_at) pairs for the
// most recent target_n CLV-scored picks, matching propose_calibration's
// source query.
func (r *EvalRepository) CLVForCalibration(ctx context.Context, version string, targetN int) ([]time.Time, []time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.created_at, p.clv_computed_at
		FROM picks p
		JOIN pick_scores ps ON ps.pick_id = p.id AND ps.version = $1
		WHERE p.clv_computed_at IS NOT NULL
		ORDER BY p.clv_computed_at DESC, p.id DESC
		LIMIT $2
	`, version, targetN)
	if err != nil {
		return nil, nil, fmt.Errorf("query clv for calibration: %w", err)
	}
	defer rows.Close()

	var created, closed []time.Time
	for rows.Next() {
		var c, cl time.Time
		if err := rows.Scan(&c, &cl); err != nil {
			return nil, nil, fmt.Errorf("scan clv for calibration: %w", err)
		}
		created = append(created, c)
		closed = append(closed, cl)
	}
	return created, closed, rows.Err()
}

// MetricsWindowRow is one (sport, clv-computed?, market_clv, book_clv)
// tuple for a pick created within the health window, matching
// compute_clv_health's source query.
type MetricsWindowRow struct {
	SportKey      string
	ClvComputed   bool
	MarketCLVBps  *float64
	BookCLVBps    *float64
}

// MetricsWindowRows returns every pick created in [start, end], joined to
// its game's sport_key, ordered by sport then created_at then id.
func (r *EvalRepository) MetricsWindowRows(ctx context.Context, start, end time.Time) ([]MetricsWindowRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT g.sport_key, p.clv_computed_at IS NOT NULL, p.market_clv, p.book_clv
		FROM picks p
		JOIN games g ON g.id = p.game_id
		WHERE p.created_at >= $1 AND p.created_at <= $2
		ORDER BY g.sport_key ASC, p.created_at ASC, p.id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query metrics window rows: %w", err)
	}
	defer rows.Close()

	var out []MetricsWindowRow
	for rows.Next() {
		var m MetricsWindowRow
		var marketCLV, bookCLV *decimal.Decimal
		if err := rows.Scan(&m.SportKey, &m.ClvComputed, &marketCLV, &bookCLV); err != nil {
			return nil, fmt.Errorf("scan metrics window row: %w", err)
		}
		m.MarketCLVBps = toBps(marketCLV)
		m.BookCLVBps = toBps(bookCLV)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AllScoresForVersion returns every PickScore's (pqs, decision) pair at
// the given version, for compute_clv_health's keep_rate/avg_pqs.
func (r *EvalRepository) AllScoresForVersion(ctx context.Context, version string) ([]float64, []string, error) {
	rows, err := r.db.Query(ctx, `SELECT pqs, decision FROM pick_scores WHERE version = $1`, version)
	if err != nil {
		return nil, nil, fmt.Errorf("query all scores for version: %w", err)
	}
	defer rows.Close()

	var pqsVals []float64
	var decisions []string
	for rows.Next() {
		var pqs decimal.Decimal
		var decision string
		if err := rows.Scan(&pqs, &decision); err != nil {
			return nil, nil, fmt.Errorf("scan score row: %w", err)
		}
		pqsVals = append(pqsVals, mustFloat(pqs))
		decisions = append(decisions, decision)
	}
	return pqsVals, decisions, rows.Err()
}

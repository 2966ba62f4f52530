package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// CalibrationRunsRepository handles the bounded-patch proposal lifecycle:
// insert PROPOSED, later transition to APPLIED.
type CalibrationRunsRepository struct {
	db *pgxpool.Pool
}

func NewCalibrationRunsRepository(db *pgxpool.Pool) *CalibrationRunsRepository {
	return &CalibrationRunsRepository{db: db}
}

const calibrationRunColumns = `id, created_at, eval_window_start, eval_window_end, pqs_version,
	current_config_snapshot, proposed_config_patch, rationale, status, applied_at`

func scanCalibrationRun(row interface {
	Scan(dest ...any) error
}) (*domain.CalibrationRun, error) {
	var cr domain.CalibrationRun
	var status string
	if err := row.Scan(&cr.ID, &cr.CreatedAt, &cr.EvalWindowStart, &cr.EvalWindowEnd, &cr.PQSVersion,
		&cr.CurrentConfigSnapshot, &cr.ProposedConfigPatch, &cr.Rationale, &status, &cr.AppliedAt); err != nil {
		return nil, err
	}
	cr.Status = domain.CalibrationStatus(status)
	return &cr, nil
}

// Propose inserts a new PROPOSED calibration run.
func (r *CalibrationRunsRepository) Propose(ctx context.Context, cr domain.CalibrationRun) (*domain.CalibrationRun, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO calibration_runs (
			eval_window_start, eval_window_end, pqs_version,
			current_config_snapshot, proposed_config_patch, rationale, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+calibrationRunColumns,
		cr.EvalWindowStart, cr.EvalWindowEnd, cr.PQSVersion,
		cr.CurrentConfigSnapshot, cr.ProposedConfigPatch, cr.Rationale, string(domain.CalibrationProposed))
	out, err := scanCalibrationRun(row)
	if err != nil {
		return nil, fmt.Errorf("propose calibration run: %w", err)
	}
	return out, nil
}

// ByID looks up a single calibration run, used by the apply endpoint to
// check its current status before transitioning it.
func (r *CalibrationRunsRepository) ByID(ctx context.Context, id int64) (*domain.CalibrationRun, error) {
	row := r.db.QueryRow(ctx, `SELECT `+calibrationRunColumns+` FROM calibration_runs WHERE id = $1`, id)
	cr, err := scanCalibrationRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get calibration run: %w", err)
	}
	return cr, nil
}

// Apply transitions a PROPOSED run to APPLIED, stamping applied_at.
func (r *CalibrationRunsRepository) Apply(ctx context.Context, id int64, appliedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE calibration_runs SET status = $2, applied_at = $3
		WHERE id = $1 AND status = $4
	`, id, string(domain.CalibrationApplied), appliedAt, string(domain.CalibrationProposed))
	if err != nil {
		return fmt.Errorf("apply calibration run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.Conflict, fmt.Sprintf("calibration run %d is not in PROPOSED status", id))
	}
	return nil
}

// Latest returns the most recent calibration runs, newest first.
func (r *CalibrationRunsRepository) Latest(ctx context.Context, status string, limit int) ([]domain.CalibrationRun, error) {
	query := `SELECT ` + calibrationRunColumns + ` FROM calibration_runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calibration runs: %w", err)
	}
	defer rows.Close()

	var out []domain.CalibrationRun
	for rows.Next() {
		cr, err := scanCalibrationRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calibration run: %w", err)
		}
		out = append(out, *cr)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// PipelineRunsRepository handles the append-only run-log rows the
// orchestrator writes after every ingest/picks/clv/cycle attempt.
type PipelineRunsRepository struct {
	db *pgxpool.Pool
}

func NewPipelineRunsRepository(db *pgxpool.Pool) *PipelineRunsRepository {
	return &PipelineRunsRepository{db: db}
}

const pipelineRunColumns = `id, created_at, run_type, status, sports, markets, stats_json, error`

func scanPipelineRun(row interface {
	Scan(dest ...any) error
}) (*domain.PipelineRun, error) {
	var pr domain.PipelineRun
	var runType, status string
	if err := row.Scan(&pr.ID, &pr.CreatedAt, &runType, &status, &pr.Sports, &pr.Markets, &pr.StatsJSON, &pr.Error); err != nil {
		return nil, err
	}
	pr.RunType = domain.RunType(runType)
	pr.Status = domain.RunStatus(status)
	return &pr, nil
}

// Insert writes one run-log row. The orchestrator calls this exactly once
// per attempt, win or lose.
func (r *PipelineRunsRepository) Insert(ctx context.Context, run domain.PipelineRun) (*domain.PipelineRun, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO pipeline_runs (run_type, status, sports, markets, stats_json, error)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING `+pipelineRunColumns,
		string(run.RunType), string(run.Status), run.Sports, run.Markets, run.StatsJSON, run.Error)
	out, err := scanPipelineRun(row)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline run: %w", err)
	}
	return out, nil
}

// Latest returns the most recent run-log rows, optionally filtered by
// run_type, for GET /pipeline/runs.
func (r *PipelineRunsRepository) Latest(ctx context.Context, runType string, limit int) ([]domain.PipelineRun, error) {
	query := `SELECT ` + pipelineRunColumns + ` FROM pipeline_runs`
	args := []any{}
	if runType != "" {
		query += ` WHERE run_type = $1`
		args = append(args, runType)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pipeline runs: %w", err)
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

// LastOK returns the most recent successful run of runType, used by
// pipeline.LatestRunStatuses for the per-run-type health report.
func (r *PipelineRunsRepository) LastOK(ctx context.Context, runType string) (*domain.PipelineRun, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+pipelineRunColumns+`
		FROM pipeline_runs
		WHERE run_type = $1 AND status = 'ok'
		ORDER BY created_at DESC LIMIT 1
	`, runType)
	pr, err := scanPipelineRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last ok pipeline run: %w", err)
	}
	return pr, nil
}

// Package store is the persistence layer: a pgxpool connection pool plus one
// repository type per entity in the data model, following the same
// raw-SQL-over-pgxpool style as the teacher's internal/repository package
// (constructor takes *pgxpool.Pool, methods take context.Context, batch
// writes use an explicit Begin/Commit/defer-Rollback transaction).
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx connection pool against databaseURL and verifies
// connectivity with a ping, mirroring the teacher's database.Connect entry
// point.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Probe runs a SELECT 1 liveness check against pool. The scheduler's
// sched_require_db startup check issues the same query through its own
// helper rather than through Probe.
func Probe(ctx context.Context, pool *pgxpool.Pool) error {
	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("db probe: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS games (
	id BIGSERIAL PRIMARY KEY,
	sport_key TEXT NOT NULL,
	event_id TEXT NOT NULL UNIQUE,
	commence_time TIMESTAMPTZ NOT NULL,
	home_team TEXT NOT NULL,
	away_team TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_games_sport_key ON games(sport_key);

CREATE TABLE IF NOT EXISTS odds_groups (
	id BIGSERIAL PRIMARY KEY,
	game_id BIGINT NOT NULL REFERENCES games(id),
	market_key VARCHAR(32) NOT NULL,
	bookmaker TEXT NOT NULL,
	point NUMERIC(10,3),
	last_hash VARCHAR(64) NOT NULL,
	last_captured_at TIMESTAMPTZ NOT NULL,
	UNIQUE (game_id, market_key, bookmaker, point)
);
CREATE INDEX IF NOT EXISTS ix_odds_groups_game_id ON odds_groups(game_id);

CREATE TABLE IF NOT EXISTS odds_snapshots (
	id BIGSERIAL PRIMARY KEY,
	game_id BIGINT NOT NULL REFERENCES games(id),
	captured_at TIMESTAMPTZ NOT NULL,
	market_key VARCHAR(32) NOT NULL,
	bookmaker TEXT NOT NULL,
	side VARCHAR(16) NOT NULL,
	point NUMERIC(10,3),
	american INTEGER,
	decimal_odds NUMERIC(10,5),
	implied_prob NUMERIC(12,8) NOT NULL,
	fair_prob NUMERIC(12,8) NOT NULL,
	group_hash VARCHAR(64) NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_odds_snapshots_game_id ON odds_snapshots(game_id);
CREATE INDEX IF NOT EXISTS ix_odds_snapshots_captured_at ON odds_snapshots(captured_at);
CREATE INDEX IF NOT EXISTS ix_odds_snapshots_group_hash ON odds_snapshots(group_hash);

CREATE TABLE IF NOT EXISTS picks (
	id BIGSERIAL PRIMARY KEY,
	game_id BIGINT NOT NULL REFERENCES games(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	market_key TEXT NOT NULL,
	side TEXT NOT NULL,
	point NUMERIC(10,3),
	source TEXT NOT NULL,
	consensus_prob NUMERIC(12,8) NOT NULL,
	best_decimal NUMERIC(12,5) NOT NULL,
	best_book TEXT NOT NULL,
	ev NUMERIC(12,8) NOT NULL,
	kelly_fraction NUMERIC(12,8) NOT NULL,
	stake NUMERIC(12,4) NOT NULL,
	consensus_books INTEGER NOT NULL,
	sharp_books INTEGER NOT NULL,
	captured_at_min TIMESTAMPTZ NOT NULL,
	captured_at_max TIMESTAMPTZ NOT NULL,
	closing_consensus_prob NUMERIC(12,8),
	closing_book_decimal NUMERIC(12,5),
	closing_book_implied_prob NUMERIC(12,8),
	market_clv NUMERIC(12,8),
	book_clv NUMERIC(12,8),
	clv_computed_at TIMESTAMPTZ,
	UNIQUE (game_id, market_key, point, side, best_book, captured_at_max)
);
CREATE INDEX IF NOT EXISTS ix_picks_game_id ON picks(game_id);
CREATE INDEX IF NOT EXISTS ix_picks_clv_computed_at ON picks(clv_computed_at);

CREATE TABLE IF NOT EXISTS pick_scores (
	id BIGSERIAL PRIMARY KEY,
	pick_id BIGINT NOT NULL REFERENCES picks(id),
	scored_at TIMESTAMPTZ NOT NULL,
	version VARCHAR(32) NOT NULL,
	pqs NUMERIC(12,6) NOT NULL,
	components_json JSONB NOT NULL,
	features_json JSONB NOT NULL,
	decision VARCHAR(16) NOT NULL,
	drop_reason VARCHAR(128),
	UNIQUE (pick_id, version)
);
CREATE INDEX IF NOT EXISTS ix_pick_scores_version_scored_at ON pick_scores(version, scored_at);
CREATE INDEX IF NOT EXISTS ix_pick_scores_decision ON pick_scores(decision);
CREATE INDEX IF NOT EXISTS ix_pick_scores_pqs ON pick_scores(pqs);

CREATE TABLE IF NOT EXISTS clv_sport_stats (
	id BIGSERIAL PRIMARY KEY,
	sport_key VARCHAR(64) NOT NULL,
	market_key VARCHAR(32) NOT NULL,
	side_type VARCHAR(16),
	window_size INTEGER NOT NULL,
	as_of TIMESTAMPTZ NOT NULL,
	n INTEGER NOT NULL,
	mean_market_clv_bps NUMERIC(12,4) NOT NULL,
	median_market_clv_bps NUMERIC(12,4) NOT NULL,
	pct_positive_market_clv NUMERIC(8,6) NOT NULL,
	mean_same_book_clv_bps NUMERIC(12,4),
	sharpe_like NUMERIC(12,6),
	is_weak INTEGER NOT NULL DEFAULT 0,
	last_updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (sport_key, market_key, side_type, window_size, as_of)
);
CREATE INDEX IF NOT EXISTS ix_clv_sport_stats_lookup ON clv_sport_stats(sport_key, market_key, side_type, as_of);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	run_type VARCHAR(16) NOT NULL,
	status VARCHAR(16) NOT NULL,
	sports TEXT NOT NULL DEFAULT '',
	markets TEXT NOT NULL DEFAULT '',
	stats_json TEXT NOT NULL DEFAULT '{}',
	error TEXT
);

CREATE TABLE IF NOT EXISTS calibration_runs (
	id BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	eval_window_start TIMESTAMPTZ NOT NULL,
	eval_window_end TIMESTAMPTZ NOT NULL,
	pqs_version VARCHAR(32) NOT NULL,
	current_config_snapshot JSONB NOT NULL,
	proposed_config_patch JSONB NOT NULL,
	rationale JSONB NOT NULL,
	status VARCHAR(16) NOT NULL,
	applied_at TIMESTAMPTZ
);
`

// EnsureSchema creates every table the pipeline needs if it does not exist
// yet. There is no ORM in this codebase, so schema bootstrap is a single
// idempotent statement batch, the same CREATE TABLE IF NOT EXISTS approach
// used elsewhere in the retrieval pack's hand-rolled storage layers.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Package api exposes every pipeline component over HTTP with gin,
// grouped by resource family (odds, consensus, picks, clv, pipeline,
// pqs, eval, calibration, system). It is the Go counterpart of
// original_source/backend/app/api/*.py, generalized from the teacher's
// internal/api/handlers.go (API struct + gin.HandlerFunc factories).
package api

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/clv"
	"github.com/dEnchanter/OddsIQ/backend/internal/eval"
	"github.com/dEnchanter/OddsIQ/backend/internal/ingest"
	"github.com/dEnchanter/OddsIQ/backend/internal/marketgate"
	"github.com/dEnchanter/OddsIQ/backend/internal/picks"
	"github.com/dEnchanter/OddsIQ/backend/internal/pipeline"
	"github.com/dEnchanter/OddsIQ/backend/internal/priors"
	"github.com/dEnchanter/OddsIQ/backend/internal/quota"
	"github.com/dEnchanter/OddsIQ/backend/internal/scheduler"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

// API holds every dependency a handler needs. Handlers are grouped into
// family-specific files (odds.go, picks.go, ...) as methods on this type.
type API struct {
	cfg   *appconfig.Config
	db    *pgxpool.Pool
	quota *quota.Snapshot

	games  *store.GamesRepository
	snaps  *store.OddsSnapshotsRepository
	pk     *store.PicksRepository
	scores *store.PickScoresRepository
	stats  *store.ClvSportStatsRepository
	runs   *store.PipelineRunsRepository
	calibs *store.CalibrationRunsRepository

	ingest   *ingest.Service
	picks    *picks.Service
	clv      *clv.Service
	priors   *priors.Service
	gate     *marketgate.Gate
	pipeline *pipeline.Service
	eval     *eval.Service
	sched    *scheduler.Scheduler
}

// Deps bundles every constructor argument NewAPI needs, avoiding an
// unwieldy positional parameter list now that the handler surface spans
// nine sub-services.
type Deps struct {
	Cfg      *appconfig.Config
	DB       *pgxpool.Pool
	Quota    *quota.Snapshot
	Games    *store.GamesRepository
	Snaps    *store.OddsSnapshotsRepository
	Picks    *store.PicksRepository
	Scores   *store.PickScoresRepository
	Stats    *store.ClvSportStatsRepository
	Runs     *store.PipelineRunsRepository
	Calibs   *store.CalibrationRunsRepository
	Ingest   *ingest.Service
	PicksSvc *picks.Service
	CLV      *clv.Service
	Priors   *priors.Service
	Gate     *marketgate.Gate
	Pipeline *pipeline.Service
	Eval     *eval.Service
	Sched    *scheduler.Scheduler
}

// NewAPI builds an API instance from an explicit dependency bundle,
// matching the teacher's NewAPI-holds-everything shape.
func NewAPI(d Deps) *API {
	return &API{
		cfg:      d.Cfg,
		db:       d.DB,
		quota:    d.Quota,
		games:    d.Games,
		snaps:    d.Snaps,
		pk:       d.Picks,
		scores:   d.Scores,
		stats:    d.Stats,
		runs:     d.Runs,
		calibs:   d.Calibs,
		ingest:   d.Ingest,
		picks:    d.PicksSvc,
		clv:      d.CLV,
		priors:   d.Priors,
		gate:     d.Gate,
		pipeline: d.Pipeline,
		eval:     d.Eval,
		sched:    d.Sched,
	}
}

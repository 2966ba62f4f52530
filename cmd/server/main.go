package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/api"
	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/clv"
	"github.com/dEnchanter/OddsIQ/backend/internal/eval"
	"github.com/dEnchanter/OddsIQ/backend/internal/ingest"
	"github.com/dEnchanter/OddsIQ/backend/internal/marketgate"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsfeed"
	"github.com/dEnchanter/OddsIQ/backend/internal/picks"
	"github.com/dEnchanter/OddsIQ/backend/internal/pipeline"
	"github.com/dEnchanter/OddsIQ/backend/internal/priors"
	"github.com/dEnchanter/OddsIQ/backend/internal/quota"
	"github.com/dEnchanter/OddsIQ/backend/internal/scheduler"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	games := store.NewGamesRepository(pool)
	groups := store.NewOddsGroupsRepository(pool)
	snaps := store.NewOddsSnapshotsRepository(pool)
	picksRepo := store.NewPicksRepository(pool)
	scores := store.NewPickScoresRepository(pool)
	stats := store.NewClvSportStatsRepository(pool)
	runs := store.NewPipelineRunsRepository(pool)
	calibs := store.NewCalibrationRunsRepository(pool)
	evalRows := store.NewEvalRepository(pool)

	quotaSnap := quota.NewSnapshot()
	feed := oddsfeed.NewClient(cfg.OddsAPIKey, cfg.OddsAPIBaseURL)

	ingestSvc := ingest.NewService(cfg, feed, quotaSnap, pool, games, groups, snaps)
	picksSvc := picks.NewService(cfg, pool, games, snaps, picksRepo, scores, stats)
	clvSvc := clv.NewService(cfg, pool, games, snaps, picksRepo)
	priorsSvc := priors.NewService(cfg, pool, picksRepo, stats)
	gate := marketgate.NewGate(cfg, picksRepo)
	pipelineSvc := pipeline.NewService(cfg, runs, gate, ingestSvc, picksSvc, clvSvc)
	evalSvc := eval.NewService(cfg, evalRows, calibs)

	sched := scheduler.New(cfg, pool, pipelineSvc)
	sched.Start(ctx)
	defer sched.Stop()

	apiInstance := api.NewAPI(api.Deps{
		Cfg:      cfg,
		DB:       pool,
		Quota:    quotaSnap,
		Games:    games,
		Snaps:    snaps,
		Picks:    picksRepo,
		Scores:   scores,
		Stats:    stats,
		Runs:     runs,
		Calibs:   calibs,
		Ingest:   ingestSvc,
		PicksSvc: picksSvc,
		CLV:      clvSvc,
		Priors:   priorsSvc,
		Gate:     gate,
		Pipeline: pipelineSvc,
		Eval:     evalSvc,
		Sched:    sched,
	})

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, apiInstance)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

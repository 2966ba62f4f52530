// Package scheduler runs the periodic ingest/picks/clv jobs behind a
// single-holder semaphore so at most one pipeline action executes at any
// instant, matching original_source/backend/app/core/scheduler.go's
// counterpart, app/core/scheduler.py, generalized from the teacher's
// internal/services/scheduler.go (robfig/cron usage, stdlib log style).
package scheduler

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/pipeline"
)

// offsetSchedule fires once after offset, then every interval plus a
// uniform random jitter in [0, jitter), matching APScheduler's
// next_run_time + interval/jitter semantics.
type offsetSchedule struct {
	offset   time.Duration
	interval time.Duration
	jitter   time.Duration
	started  bool
}

func (o *offsetSchedule) Next(t time.Time) time.Time {
	if !o.started {
		o.started = true
		return t.Add(o.offset)
	}
	jitter := time.Duration(0)
	if o.jitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(o.jitter)))
	}
	return t.Add(o.interval + jitter)
}

// Scheduler owns the three periodic jobs and the run-lock they share with
// any HTTP-triggered /pipeline/run call.
type Scheduler struct {
	cfg  *appconfig.Config
	pool *pgxpool.Pool
	pl   *pipeline.Service
	cron *cron.Cron
	lock chan struct{}
}

// New builds a Scheduler. The run-lock is shared by reference with callers
// that also want to guard manual pipeline triggers with TryAcquire/Release.
func New(cfg *appconfig.Config, pool *pgxpool.Pool, pl *pipeline.Service) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		pool: pool,
		pl:   pl,
		cron: cron.New(),
		lock: make(chan struct{}, 1),
	}
}

// TryAcquire attempts to take the single-holder run-lock without blocking.
// It is exported so an HTTP-triggered /pipeline/run can serialize against
// the scheduler's own jobs.
func (s *Scheduler) TryAcquire() bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the run-lock. Callers must only call this after a
// successful TryAcquire.
func (s *Scheduler) Release() {
	<-s.lock
}

func canReachDB(ctx context.Context, pool *pgxpool.Pool) bool {
	if pool == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return true
}

// Start wires up the three periodic jobs and starts the cron loop. It
// refuses to start when the scheduler is disabled, or when sched_require_db
// is set and a SELECT 1 probe fails, matching start_scheduler.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.cfg.EnableScheduler {
		log.Println("scheduler disabled by ENABLE_SCHEDULER=false")
		return false
	}
	if s.cfg.SchedRequireDB && (s.cfg.DatabaseURL == "" || !canReachDB(ctx, s.pool)) {
		log.Println("scheduler not started: DB unavailable and SCHED_REQUIRE_DB=true")
		return false
	}

	jitter := time.Duration(s.cfg.SchedJitterSec) * time.Second

	s.cron.Schedule(&offsetSchedule{
		offset:   0,
		interval: time.Duration(s.cfg.SchedIngestIntervalSec) * time.Second,
		jitter:   jitter,
	}, cron.FuncJob(func() { s.runJob(domain.RunIngest) }))

	s.cron.Schedule(&offsetSchedule{
		offset:   60 * time.Second,
		interval: time.Duration(s.cfg.SchedPicksIntervalSec) * time.Second,
		jitter:   jitter,
	}, cron.FuncJob(func() { s.runJob(domain.RunPicks) }))

	s.cron.Schedule(&offsetSchedule{
		offset:   120 * time.Second,
		interval: time.Duration(s.cfg.SchedCLVIntervalSec) * time.Second,
		jitter:   jitter,
	}, cron.FuncJob(func() { s.runJob(domain.RunCLV) }))

	s.cron.Start()
	log.Println("scheduler started: ingest/picks/clv jobs armed")
	return true
}

// Stop shuts the cron loop down without waiting for an in-flight job.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// runJob is the body every scheduled tick invokes. It skips the tick
// entirely (logged, not erroring) if another run already holds the lock,
// matching _run_job's non-blocking semaphore acquire.
func (s *Scheduler) runJob(runType domain.RunType) {
	if !s.TryAcquire() {
		log.Printf("scheduler: skipping %s job, another run is in progress", runType)
		return
	}
	defer s.Release()

	ctx := context.Background()
	if _, err := s.pl.RunAndLog(ctx, runType, false); err != nil {
		log.Printf("scheduler: %s job failed: %v", runType, err)
	}
}

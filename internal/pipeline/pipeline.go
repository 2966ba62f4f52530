// Package pipeline orchestrates the ingest/picks/clv runs and the single
// "cycle" that chains them, logging an append-only PipelineRun row after
// every attempt. It is the Go counterpart of
// original_source/backend/app/services/pipeline.py.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/clv"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/ingest"
	"github.com/dEnchanter/OddsIQ/backend/internal/marketgate"
	"github.com/dEnchanter/OddsIQ/backend/internal/picks"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

// IngestSummary is run_ingest's returned dict shape.
type IngestSummary struct {
	Sports      []string                  `json:"sports"`
	PerSport    map[string]ingest.Summary `json:"per_sport"`
	Errors      map[string]string         `json:"errors"`
	ErrorsCount int                       `json:"errors_count"`
}

// PicksSummary is run_picks's returned dict shape, keyed "sport/market".
type PicksSummary struct {
	SportsMarkets   []string                 `json:"sports_markets"`
	PerSportMarket  map[string]picks.Summary `json:"per_sport_market"`
	Errors          map[string]string        `json:"errors"`
	ErrorsCount     int                      `json:"errors_count"`
	MarketLock      *marketLockInfo          `json:"market_lock,omitempty"`
}

type marketLockInfo struct {
	AllowedMarkets  []string `json:"allowed_markets"`
	RequestedMarkets []string `json:"requested_markets"`
	LockedMarkets   []string `json:"locked_markets"`
	CLVComputedCount int64   `json:"clv_computed_count"`
}

// CycleSummary is run_cycle's returned dict shape.
type CycleSummary struct {
	Ingest IngestSummary `json:"ingest"`
	Picks  PicksSummary  `json:"picks"`
	CLV    clv.Summary   `json:"clv"`
}

// Service wires config and the sub-services together for orchestration.
type Service struct {
	cfg   *appconfig.Config
	runs  *store.PipelineRunsRepository
	gate  *marketgate.Gate
	ing   *ingest.Service
	pk    *picks.Service
	clv   *clv.Service
}

func NewService(cfg *appconfig.Config, runs *store.PipelineRunsRepository, gate *marketgate.Gate,
	ing *ingest.Service, pk *picks.Service, clvSvc *clv.Service) *Service {
	return &Service{cfg: cfg, runs: runs, gate: gate, ing: ing, pk: pk, clv: clvSvc}
}

// resolveSports returns sports_autorun if configured, else the ingest
// whitelist, sorted and deduplicated, matching resolve_sports.
func resolveSports(cfg *appconfig.Config) []string {
	src := cfg.SportsAutorun
	if len(src) == 0 {
		src = cfg.OddsSportsWhitelist
	}
	return sortedUnique(src)
}

// resolveMarkets returns markets_autorun, falling back to ["h2h"], sorted
// and deduplicated, matching resolve_markets.
func resolveMarkets(cfg *appconfig.Config) []string {
	src := cfg.MarketsAutorun
	if len(src) == 0 {
		src = []string{"h2h"}
	}
	return sortedUnique(src)
}

func sortedUnique(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// logRun writes one PipelineRun row. stats is marshaled with Go's
// encoding/json, which serializes map keys in sorted order, giving the
// deterministic stats_json the spec requires without extra bookkeeping.
func (s *Service) logRun(ctx context.Context, runType domain.RunType, status domain.RunStatus, sports, markets []string, stats any, runErr error) {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		statsJSON = []byte("{}")
	}
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	_, _ = s.runs.Insert(ctx, domain.PipelineRun{
		RunType:   runType,
		Status:    status,
		Sports:    strings.Join(sports, ","),
		Markets:   strings.Join(markets, ","),
		StatsJSON: string(statsJSON),
		Error:     errMsg,
	})
}

// RunIngest ingests every resolved sport, never aborting the whole run
// because one sport failed, matching run_ingest.
func (s *Service) RunIngest(ctx context.Context) (IngestSummary, error) {
	sports := resolveSports(s.cfg)
	out := IngestSummary{
		Sports:   sports,
		PerSport: map[string]ingest.Summary{},
		Errors:   map[string]string{},
	}

	for _, sportKey := range sports {
		result, err := s.ing.IngestSport(ctx, sportKey)
		if err != nil {
			out.Errors[sportKey] = err.Error()
			out.ErrorsCount++
			continue
		}
		out.PerSport[sportKey] = result
	}

	status := domain.RunStatusOK
	if out.ErrorsCount > 0 && len(out.PerSport) == 0 {
		status = domain.RunStatusError
	}
	s.logRun(ctx, domain.RunIngest, status, sports, nil, out, nil)
	return out, nil
}

// RunPicks iterates sport x market over the intersection of the gate's
// currently allowed markets and the configured autorun markets, recording
// which configured markets were excluded as market_lock metadata. This
// intersection is an addition over the Python original, which pre-dates
// the market-unlock gate; it keeps an autorun cycle from ever attempting a
// locked market.
func (s *Service) RunPicks(ctx context.Context) (PicksSummary, error) {
	sports := resolveSports(s.cfg)
	configuredMarkets := resolveMarkets(s.cfg)

	allowed, clvCount, err := s.gate.AllowedMarkets(ctx)
	if err != nil {
		return PicksSummary{}, fmt.Errorf("resolve allowed markets: %w", err)
	}
	allowedSet := map[string]bool{}
	for _, m := range allowed {
		allowedSet[m] = true
	}

	var runMarkets, lockedMarkets []string
	for _, m := range configuredMarkets {
		if allowedSet[m] {
			runMarkets = append(runMarkets, m)
		} else {
			lockedMarkets = append(lockedMarkets, m)
		}
	}

	out := PicksSummary{
		PerSportMarket: map[string]picks.Summary{},
		Errors:         map[string]string{},
	}
	if len(lockedMarkets) > 0 {
		out.MarketLock = &marketLockInfo{
			AllowedMarkets:   allowed,
			RequestedMarkets: configuredMarkets,
			LockedMarkets:    lockedMarkets,
			CLVComputedCount: clvCount,
		}
	}

	for _, sportKey := range sports {
		for _, marketKey := range runMarkets {
			key := sportKey + "/" + marketKey
			out.SportsMarkets = append(out.SportsMarkets, key)
			result, err := s.pk.GenerateForSportMarket(ctx, sportKey, domain.MarketKey(marketKey))
			if err != nil {
				out.Errors[key] = err.Error()
				out.ErrorsCount++
				continue
			}
			out.PerSportMarket[key] = result
		}
	}

	status := domain.RunStatusOK
	if out.ErrorsCount > 0 && len(out.PerSportMarket) == 0 {
		status = domain.RunStatusError
	}
	s.logRun(ctx, domain.RunPicks, status, sports, runMarkets, out, nil)
	return out, nil
}

// RunCLV computes CLV for every pick whose game has already commenced,
// matching run_clv.
func (s *Service) RunCLV(ctx context.Context, force bool) (clv.Summary, error) {
	result, err := s.clv.ComputeForCommenced(ctx, force)
	status := domain.RunStatusOK
	if err != nil {
		status = domain.RunStatusError
	}
	s.logRun(ctx, domain.RunCLV, status, nil, nil, result, err)
	return result, err
}

// RunCycle runs ingest, picks then clv in sequence, logging each sub-run
// plus a final "cycle" row. A failure in one step is recorded but does not
// abort the later steps, matching run_cycle.
func (s *Service) RunCycle(ctx context.Context, force bool) (CycleSummary, error) {
	var out CycleSummary
	var firstErr error

	ingestResult, err := s.RunIngest(ctx)
	out.Ingest = ingestResult
	if err != nil && firstErr == nil {
		firstErr = err
	}

	picksResult, err := s.RunPicks(ctx)
	out.Picks = picksResult
	if err != nil && firstErr == nil {
		firstErr = err
	}

	clvResult, err := s.RunCLV(ctx, force)
	out.CLV = clvResult
	if err != nil && firstErr == nil {
		firstErr = err
	}

	status := domain.RunStatusOK
	if firstErr != nil {
		status = domain.RunStatusError
	}
	sports := resolveSports(s.cfg)
	markets := resolveMarkets(s.cfg)
	s.logRun(ctx, domain.RunCycle, status, sports, markets, out, firstErr)
	return out, firstErr
}

// RunAndLog is the generic single-run-type entry point used by both the
// HTTP trigger and the scheduler, matching run_and_log. Errors from the
// underlying run are re-raised to the caller after being logged by the
// per-run-type method itself.
func (s *Service) RunAndLog(ctx context.Context, runType domain.RunType, force bool) (any, error) {
	switch runType {
	case domain.RunIngest:
		return s.RunIngest(ctx)
	case domain.RunPicks:
		return s.RunPicks(ctx)
	case domain.RunCLV:
		return s.RunCLV(ctx, force)
	case domain.RunCycle:
		return s.RunCycle(ctx, force)
	default:
		return nil, fmt.Errorf("unknown run_type %q", runType)
	}
}

// ListRuns returns the most recent run-log rows, optionally filtered by
// runType, for GET /pipeline/runs.
func (s *Service) ListRuns(ctx context.Context, runType string, limit int) ([]domain.PipelineRun, error) {
	return s.runs.Latest(ctx, runType, limit)
}

// LatestRunStatuses returns the most recent successful run of each of
// ingest/picks/clv, matching latest_run_statuses, for GET /pipeline/health.
func (s *Service) LatestRunStatuses(ctx context.Context) (map[string]*domain.PipelineRun, error) {
	out := map[string]*domain.PipelineRun{}
	for _, rt := range []domain.RunType{domain.RunIngest, domain.RunPicks, domain.RunCLV} {
		run, err := s.runs.LastOK(ctx, string(rt))
		if err != nil {
			return nil, fmt.Errorf("load last ok %s run: %w", rt, err)
		}
		out[string(rt)] = run
	}
	return out, nil
}

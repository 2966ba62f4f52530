// Package picks is the pick generator: it turns consensus market views
// into scored, capped Pick/PickScore rows. Grounded on
// original_source/backend/app/services/picks.py, wired onto
// internal/consensus, internal/pqs and internal/priors.
package picks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/consensus"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsmath"
	"github.com/dEnchanter/OddsIQ/backend/internal/pqs"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

// Summary tallies one generate-picks pass, mirroring _base_summary's dict.
type Summary struct {
	TotalViews               int `json:"total_views"`
	Candidates               int `json:"candidates"`
	Inserted                 int `json:"inserted"`
	Scored                   int `json:"scored"`
	Kept                     int `json:"kept"`
	Dropped                  int `json:"dropped"`
	SkippedExisting          int `json:"skipped_existing"`
	SkippedLowEV             int `json:"skipped_low_ev"`
	SkippedInsufficientBooks int `json:"skipped_insufficient_books"`
}

// Service wires config and repositories together for pick generation.
type Service struct {
	cfg    *appconfig.Config
	pool   *pgxpool.Pool
	games  *store.GamesRepository
	snaps  *store.OddsSnapshotsRepository
	picks  *store.PicksRepository
	scores *store.PickScoresRepository
	stats  *store.ClvSportStatsRepository
}

func NewService(cfg *appconfig.Config, pool *pgxpool.Pool, games *store.GamesRepository, snaps *store.OddsSnapshotsRepository, picks *store.PicksRepository, scores *store.PickScoresRepository, stats *store.ClvSportStatsRepository) *Service {
	return &Service{cfg: cfg, pool: pool, games: games, snaps: snaps, picks: picks, scores: scores, stats: stats}
}

// keptCandidate is the tuple cap-enforcement sorts and walks, matching
// _select_final_keep_ids's input rows. The original's event_id column is
// replaced by game_id: both are stable identifiers and the spec's ordering
// only needs a deterministic tie-break, not the literal string.
type keptCandidate struct {
	pqs              float64
	sportKey         string
	marketKey        string
	gameID           int64
	createdAt        time.Time
	pickID           int64
	adaptiveMaxPicks int
}

func sortKeptCandidates(items []keptCandidate) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.pqs != b.pqs {
			return a.pqs > b.pqs
		}
		if a.sportKey != b.sportKey {
			return a.sportKey < b.sportKey
		}
		if a.marketKey != b.marketKey {
			return a.marketKey < b.marketKey
		}
		if a.gameID != b.gameID {
			return a.gameID < b.gameID
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.pickID < b.pickID
	})
}

// selectFinalKeepIDs walks the sorted kept candidates enforcing the
// per-sport adaptive cap and the run-wide total cap, matching
// _select_final_keep_ids.
func selectFinalKeepIDs(kept []keptCandidate, runMaxPicksTotal int) map[int64]bool {
	sorted := append([]keptCandidate(nil), kept...)
	sortKeptCandidates(sorted)

	perSport := map[string]int{}
	final := map[int64]bool{}
	for _, c := range sorted {
		maxSport := c.adaptiveMaxPicks
		if maxSport < 1 {
			maxSport = 1
		}
		if perSport[c.sportKey] >= maxSport {
			continue
		}
		if len(final) >= runMaxPicksTotal {
			break
		}
		perSport[c.sportKey]++
		final[c.pickID] = true
	}
	return final
}

// GenerateForSportMarket runs the full §4.4 algorithm for one
// (sport_key, market_key) pair, committing once at the end.
func (s *Service) GenerateForSportMarket(ctx context.Context, sportKey string, market domain.MarketKey) (Summary, error) {
	summary := Summary{}

	snaps, err := s.snaps.BySportAndMarket(ctx, sportKey, market)
	if err != nil {
		return summary, fmt.Errorf("load snapshots: %w", err)
	}

	sharpBooks := map[string]bool{}
	for _, b := range s.cfg.SharpBooks {
		sharpBooks[strings.ToLower(b)] = true
	}
	views := consensus.BuildViews(sportKey, market, snaps, sharpBooks)
	summary.TotalViews = len(views)
	if len(views) == 0 {
		return summary, nil
	}

	nowUTC := time.Now().UTC()
	requiredSides := domain.RequiredSides(sportKey, market)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("begin picks transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prior, err := s.stats.LatestPrior(ctx, sportKey, market, s.cfg.CLVPriorWindow)
	if err != nil {
		return summary, fmt.Errorf("load clv prior: %w", err)
	}

	var kept []keptCandidate
	newPickIDs := map[int64]bool{}
	commenceTimes := map[int64]time.Time{}

	for _, v := range views {
		result := consensus.Compute(s.cfg, v)

		if result.ConsensusReason != "" || result.IncludedBooks < s.cfg.PickMinBooks {
			summary.SkippedInsufficientBooks++
			continue
		}

		for _, side := range requiredSides {
			probability, ok := result.ConsensusProbs[side]
			if !ok {
				continue
			}
			bestDecimal, okDec := result.BestDecimal[side]
			bestBook, okBook := result.BestBook[side]
			if !okDec || !okBook {
				continue
			}
			summary.Candidates++

			ev, err := oddsmath.EV(probability, bestDecimal)
			if err != nil {
				continue
			}
			if ev < s.cfg.PickMinEV {
				summary.SkippedLowEV++
				continue
			}

			kellyFull, err := oddsmath.KellyFraction(probability, bestDecimal, s.cfg.KellyMultiplier, s.cfg.KellyMaxCap)
			if err != nil {
				continue
			}
			kelly := kellyFull
			if kelly > s.cfg.KellyCap {
				kelly = s.cfg.KellyCap
			}
			if kelly <= 0 {
				continue
			}

			existing, err := s.picks.FindExisting(ctx, tx, v.GameID, market, v.Point, side, bestBook, result.CapturedAtMax)
			if err != nil {
				return summary, err
			}

			var pick *domain.Pick
			if existing != nil {
				pick = existing
				summary.SkippedExisting++
			} else {
				stake := s.cfg.BankrollPaper * kelly
				created, err := s.picks.Insert(ctx, tx, domain.Pick{
					GameID:         v.GameID,
					MarketKey:      market,
					Side:           side,
					Point:          v.Point,
					Source:         "CONSENSUS",
					ConsensusProb:  probability,
					BestDecimal:    bestDecimal,
					BestBook:       bestBook,
					EV:             ev,
					KellyFraction:  kelly,
					Stake:          stake,
					ConsensusBooks: result.IncludedBooks,
					SharpBooks:     result.SharpBooksIncluded,
					CapturedAtMin:  result.CapturedAtMin,
					CapturedAtMax:  result.CapturedAtMax,
				})
				if err != nil {
					return summary, err
				}
				pick = created
				newPickIDs[pick.ID] = true
			}

			commenceTime, ok := commenceTimes[v.GameID]
			if !ok {
				game, err := s.games.GetByID(ctx, v.GameID)
				if err != nil {
					return summary, fmt.Errorf("load game %d: %w", v.GameID, err)
				}
				commenceTime = game.CommenceTime
				commenceTimes[v.GameID] = commenceTime
			}

			bookOdds := v.BookDecimals
			features := pqs.ComputeFeatures(result, side, bookOdds, ev, kelly, bestDecimal, probability, commenceTime, nowUTC)

			scoreResult := pqs.Score(s.cfg, features, prior, sportKey)
			summary.Scored++

			components := map[string]float64{}
			for k, val := range scoreResult.Components {
				components[k] = val
			}
			minPQS, maxPicks := pqs.AdaptiveThresholds(s.cfg, prior, sportKey)
			components["adaptive_min_pqs"] = minPQS
			components["adaptive_max_picks"] = float64(maxPicks)

			if _, err := s.scores.Upsert(ctx, tx, domain.PickScore{
				PickID:     pick.ID,
				ScoredAt:   nowUTC,
				Version:    s.cfg.PQSVersion,
				PQS:        scoreResult.PQS,
				Components: components,
				Features:   pqs.FeaturesJSON(features),
				Decision:   scoreResult.Decision,
				DropReason: nilIfEmpty(scoreResult.DropReason),
			}); err != nil {
				return summary, err
			}

			if scoreResult.Decision == domain.DecisionKeep {
				summary.Kept++
				kept = append(kept, keptCandidate{
					pqs:              scoreResult.PQS,
					sportKey:         sportKey,
					marketKey:        string(market),
					gameID:           v.GameID,
					createdAt:        pick.CreatedAt,
					pickID:           pick.ID,
					adaptiveMaxPicks: maxPicks,
				})
			} else {
				summary.Dropped++
			}
		}
	}

	finalKeepIDs := selectFinalKeepIDs(kept, s.cfg.RunMaxPicksTotal)

	if s.cfg.PQSEnabled {
		for _, c := range kept {
			if finalKeepIDs[c.pickID] {
				continue
			}
			reason := "cap_throttle"
			if err := s.scores.SetDecision(ctx, tx, c.pickID, s.cfg.PQSVersion, domain.DecisionDrop, &reason); err != nil {
				return summary, err
			}
		}
	}

	for id := range finalKeepIDs {
		if newPickIDs[id] {
			summary.Inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit picks transaction: %w", err)
	}
	return summary, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

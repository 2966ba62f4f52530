// Package clv computes Closing Line Value against the last fully-quoted
// market before kickoff. It is the Go counterpart of
// original_source/backend/app/services/clv.py, wired onto internal/store's
// pre-commence snapshot query and the Pick/OddsSnapshot domain types.
package clv

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsmath"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

// ClosingView is the fully-quoted market snapshot closest to, but before,
// kickoff, reduced into a consensus and a best-decimal-by-side map.
type ClosingView struct {
	ConsensusProbs    map[domain.Side]float64
	BestDecimalBySide map[domain.Side]float64
	Rows              []domain.OddsSnapshot
	CapturedAtUsed    time.Time
}

// Summary tallies one ComputeForDate pass, mirroring compute_clv_for_date's
// returned dict.
type Summary struct {
	Processed             int `json:"processed"`
	Updated                int `json:"updated"`
	SkippedNoClose         int `json:"skipped_no_close"`
	SkippedAlreadyComputed int `json:"skipped_already_computed"`
}

// Service wires config and repositories together for CLV computation.
type Service struct {
	cfg   *appconfig.Config
	pool  *pgxpool.Pool
	games *store.GamesRepository
	snaps *store.OddsSnapshotsRepository
	picks *store.PicksRepository
}

func NewService(cfg *appconfig.Config, pool *pgxpool.Pool, games *store.GamesRepository, snaps *store.OddsSnapshotsRepository, picks *store.PicksRepository) *Service {
	return &Service{cfg: cfg, pool: pool, games: games, snaps: snaps, picks: picks}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// closingMarketView finds the latest-per-bookmaker fully-quoted row set
// before the game's commence_time and reduces it into a ClosingView,
// matching get_closing_market_view.
func (s *Service) closingMarketView(ctx context.Context, pick domain.Pick) (*ClosingView, error) {
	game, err := s.games.GetByID(ctx, pick.GameID)
	if err != nil {
		return nil, nil
	}

	required := domain.RequiredSides(game.SportKey, pick.MarketKey)
	requiredSet := map[domain.Side]bool{}
	for _, rs := range required {
		requiredSet[rs] = true
	}

	rows, err := s.snaps.BeforeCommence(ctx, pick.GameID, pick.MarketKey, pick.Point, game.CommenceTime)
	if err != nil {
		return nil, fmt.Errorf("load closing window snapshots: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Per bookmaker, group rows by captured_at, and keep the most recent
	// timestamp at which every required side is present.
	byBookTimestamp := map[string]map[time.Time]map[domain.Side]domain.OddsSnapshot{}
	for _, row := range rows {
		byTs, ok := byBookTimestamp[row.Bookmaker]
		if !ok {
			byTs = map[time.Time]map[domain.Side]domain.OddsSnapshot{}
			byBookTimestamp[row.Bookmaker] = byTs
		}
		sides, ok := byTs[row.CapturedAt]
		if !ok {
			sides = map[domain.Side]domain.OddsSnapshot{}
			byTs[row.CapturedAt] = sides
		}
		sides[row.Side] = row
	}

	completeBooks := map[string]map[domain.Side]domain.OddsSnapshot{}
	var capturedAtUsed time.Time
	for bookmaker, byTs := range byBookTimestamp {
		var best time.Time
		var bestSides map[domain.Side]domain.OddsSnapshot
		for ts, sides := range byTs {
			complete := true
			for rs := range requiredSet {
				if _, ok := sides[rs]; !ok {
					complete = false
					break
				}
			}
			if !complete {
				continue
			}
			if bestSides == nil || ts.After(best) {
				best = ts
				bestSides = sides
			}
		}
		if bestSides != nil {
			completeBooks[bookmaker] = bestSides
			if best.After(capturedAtUsed) {
				capturedAtUsed = best
			}
		}
	}
	if len(completeBooks) == 0 {
		return nil, nil
	}

	sharpBooks := map[string]bool{}
	for _, b := range s.cfg.SharpBooks {
		sharpBooks[lowerASCII(b)] = true
	}

	included := make([]string, 0, len(completeBooks))
	for b := range completeBooks {
		included = append(included, b)
	}
	sort.Strings(included)

	if len(included) < s.cfg.ConsensusMinBooks {
		return nil, nil
	}

	sortedSides := append([]domain.Side(nil), required...)
	sort.Slice(sortedSides, func(i, j int) bool { return sortedSides[i] < sortedSides[j] })

	books := make([][]float64, len(included))
	weights := make([]float64, len(included))
	for i, b := range included {
		weights[i] = s.cfg.StandardWeight
		if sharpBooks[lowerASCII(b)] {
			weights[i] = s.cfg.SharpWeight
		}
		row := make([]float64, len(sortedSides))
		for j, side := range sortedSides {
			row[j] = float64(completeBooks[b][side].FairProb)
		}
		books[i] = row
	}

	consensus, err := oddsmath.ConsensusFairProb(books, weights)
	if err != nil {
		return nil, nil
	}
	consensusProbs := map[domain.Side]float64{}
	for i, side := range sortedSides {
		consensusProbs[side] = consensus[i]
	}

	bestDecimalBySide := map[domain.Side]float64{}
	var allRows []domain.OddsSnapshot
	for _, side := range sortedSides {
		var bestVal float64
		var bestBook string
		found := false
		for bookmaker, sides := range completeBooks {
			row, ok := sides[side]
			if !ok || row.Decimal == nil {
				continue
			}
			if !found || *row.Decimal > bestVal || (*row.Decimal == bestVal && bookmaker > bestBook) {
				bestVal = *row.Decimal
				bestBook = bookmaker
				found = true
			}
		}
		if found {
			bestDecimalBySide[side] = bestVal
		}
	}
	for _, sides := range completeBooks {
		for _, row := range sides {
			allRows = append(allRows, row)
		}
	}

	return &ClosingView{
		ConsensusProbs:    consensusProbs,
		BestDecimalBySide: bestDecimalBySide,
		Rows:              allRows,
		CapturedAtUsed:    capturedAtUsed,
	}, nil
}

// ComputePickCLV computes and persists market/book CLV for one pick,
// matching compute_pick_clv. Returns false (no error) when no closing view
// could be established.
func (s *Service) ComputePickCLV(ctx context.Context, tx pgx.Tx, pick domain.Pick) (bool, error) {
	view, err := s.closingMarketView(ctx, pick)
	if err != nil {
		return false, err
	}
	if view == nil {
		return false, nil
	}

	closingConsensusProb, ok := view.ConsensusProbs[pick.Side]
	if !ok {
		return false, nil
	}

	pickTimeImplied := 1.0 / pick.BestDecimal

	var closingBookDecimal *float64
	for _, row := range view.Rows {
		if row.Bookmaker == pick.BestBook && row.Side == pick.Side && row.Decimal != nil {
			d := *row.Decimal
			closingBookDecimal = &d
			break
		}
	}

	var closingBookImplied, bookCLV *float64
	if closingBookDecimal != nil {
		implied := 1.0 / *closingBookDecimal
		closingBookImplied = &implied
		if v, err := oddsmath.BookCLV(implied, pickTimeImplied); err == nil {
			bookCLV = &v
		}
	}

	marketCLV, err := oddsmath.MarketCLV(closingConsensusProb, pick.ConsensusProb)
	if err != nil {
		return false, fmt.Errorf("compute market clv: %w", err)
	}

	now := time.Now().UTC()
	if err := s.picks.SetCLV(ctx, tx, pick.ID, &closingConsensusProb, closingBookDecimal, closingBookImplied, &marketCLV, bookCLV, now); err != nil {
		return false, err
	}
	return true, nil
}

// ComputeForDate runs compute_pick_clv over every pick whose game commences
// on dateUTC, committing once at the end, matching compute_clv_for_date.
func (s *Service) ComputeForDate(ctx context.Context, dateUTC time.Time, force bool) (Summary, error) {
	var summary Summary

	allPicks, _, err := s.picks.PendingCLV(ctx, dateUTC, true)
	if err != nil {
		return summary, fmt.Errorf("load picks for date: %w", err)
	}
	summary.Processed = len(allPicks)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("begin clv transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, pick := range allPicks {
		if pick.ClvComputedAt != nil && !force {
			summary.SkippedAlreadyComputed++
			continue
		}
		updated, err := s.ComputePickCLV(ctx, tx, pick)
		if err != nil {
			return summary, err
		}
		if updated {
			summary.Updated++
		} else {
			summary.SkippedNoClose++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit clv transaction: %w", err)
	}
	return summary, nil
}

// ComputeForCommenced runs compute_pick_clv over every pick whose game has
// already commenced as of now, regardless of calendar day, matching
// pipeline.py's run_clv source query. With force=false only picks still
// missing clv_computed_at are processed.
func (s *Service) ComputeForCommenced(ctx context.Context, force bool) (Summary, error) {
	var summary Summary

	pending, err := s.picks.PendingCLVCommenced(ctx, time.Now().UTC(), force)
	if err != nil {
		return summary, fmt.Errorf("load commenced picks: %w", err)
	}
	summary.Processed = len(pending)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("begin clv transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, pick := range pending {
		updated, err := s.ComputePickCLV(ctx, tx, pick)
		if err != nil {
			return summary, err
		}
		if updated {
			summary.Updated++
		} else {
			summary.SkippedNoClose++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit clv transaction: %w", err)
	}
	return summary, nil
}

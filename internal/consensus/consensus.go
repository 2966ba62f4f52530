// Package consensus builds the vig-free weighted fair-probability view
// per (game, market, point) from raw odds snapshots. It is the Go
// counterpart of original_source/backend/app/services/consensus.py,
// reshaped from that file's SQL-subquery approach into an in-memory
// partition-then-reduce pass over internal/store's already-queried rows
// (spec.md §4.3 describes the same two-step partition/reduce algorithm).
package consensus

import (
	"sort"
	"time"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsmath"
)

// View is one (event, market, point) market view: the fully-quoted,
// latest-per-bookmaker rows plus derived per-side prices.
type View struct {
	GameID         int64
	SportKey       string
	MarketKey      domain.MarketKey
	Point          *float64
	BookFairProbs  map[string]map[domain.Side]float64
	BookDecimals   map[string]map[domain.Side]float64
	BookList       []string
	SharpBooks     int
	Rows           []domain.OddsSnapshot
	CapturedAtMin  time.Time
	CapturedAtMax  time.Time
}

// Result is one scored market view, mirroring ConsensusResult.
type Result struct {
	GameID              int64
	MarketKey           domain.MarketKey
	Point               *float64
	ConsensusProbs       map[domain.Side]float64 // nil when ConsensusReason != ""
	ConsensusReason      string
	IncludedBooks        int
	SharpBooksIncluded   int
	BestDecimal          map[domain.Side]float64
	BestBook             map[domain.Side]string
	CapturedAtMin        time.Time
	CapturedAtMax        time.Time
}

func pointKey(p *float64) float64 {
	if p == nil {
		return -999999
	}
	return *p
}

// BuildViews partitions snapshots by (game, bookmaker, point), keeps only
// the latest fully-quoted captured_at per bookmaker, then groups those
// rows into per-(game, point) market views.
func BuildViews(sportKey string, market domain.MarketKey, snapshots []domain.OddsSnapshot, sharpBooks map[string]bool) []*View {
	required := domain.RequiredSides(sportKey, market)
	requiredSet := map[domain.Side]bool{}
	for _, s := range required {
		requiredSet[s] = true
	}

	type bookPointKey struct {
		gameID    int64
		bookmaker string
		point     float64
	}
	byBookmaker := map[bookPointKey][]domain.OddsSnapshot{}
	for _, snap := range snapshots {
		k := bookPointKey{gameID: snap.GameID, bookmaker: snap.Bookmaker, point: pointKey(snap.Point)}
		byBookmaker[k] = append(byBookmaker[k], snap)
	}

	// For each (game, bookmaker, point) pick the latest captured_at at
	// which every required side is present.
	type latestRow struct {
		capturedAt time.Time
		bySide     map[domain.Side]domain.OddsSnapshot
	}
	latestComplete := map[bookPointKey]latestRow{}
	for k, rows := range byBookmaker {
		byTimestamp := map[time.Time]map[domain.Side]domain.OddsSnapshot{}
		for _, r := range rows {
			m, ok := byTimestamp[r.CapturedAt]
			if !ok {
				m = map[domain.Side]domain.OddsSnapshot{}
				byTimestamp[r.CapturedAt] = m
			}
			m[r.Side] = r
		}
		var best time.Time
		var bestSet map[domain.Side]domain.OddsSnapshot
		for ts, sides := range byTimestamp {
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
			if bestSet == nil || ts.After(best) {
				best = ts
				bestSet = sides
			}
		}
		if bestSet != nil {
			latestComplete[k] = latestRow{capturedAt: best, bySide: bestSet}
		}
	}

	// Group the per-bookmaker winning rows by (game, point) into views.
	type viewKey struct {
		gameID int64
		point  float64
	}
	grouped := map[viewKey]*View{}
	for k, lr := range latestComplete {
		vk := viewKey{gameID: k.gameID, point: k.point}
		v, ok := grouped[vk]
		if !ok {
			var pt *float64
			if k.point != -999999 {
				p := k.point
				pt = &p
			}
			v = &View{
				GameID:        k.gameID,
				SportKey:      sportKey,
				MarketKey:     market,
				Point:         pt,
				BookFairProbs: map[string]map[domain.Side]float64{},
				BookDecimals:  map[string]map[domain.Side]float64{},
			}
			grouped[vk] = v
		}
		fair := map[domain.Side]float64{}
		dec := map[domain.Side]float64{}
		for side, row := range lr.bySide {
			fair[side] = row.FairProb
			if row.Decimal != nil {
				dec[side] = *row.Decimal
			}
			v.Rows = append(v.Rows, row)
		}
		v.BookFairProbs[k.bookmaker] = fair
		v.BookDecimals[k.bookmaker] = dec
		if v.CapturedAtMin.IsZero() || lr.capturedAt.Before(v.CapturedAtMin) {
			v.CapturedAtMin = lr.capturedAt
		}
		if lr.capturedAt.After(v.CapturedAtMax) {
			v.CapturedAtMax = lr.capturedAt
		}
	}

	out := make([]*View, 0, len(grouped))
	for _, v := range grouped {
		books := make([]string, 0, len(v.BookFairProbs))
		for b := range v.BookFairProbs {
			books = append(books, b)
		}
		sort.Strings(books)
		v.BookList = books
		for _, b := range books {
			if sharpBooks[lowerASCII(b)] {
				v.SharpBooks++
			}
		}
		sort.Slice(v.Rows, func(i, j int) bool {
			if v.Rows[i].Bookmaker != v.Rows[j].Bookmaker {
				return v.Rows[i].Bookmaker < v.Rows[j].Bookmaker
			}
			if v.Rows[i].Side != v.Rows[j].Side {
				return v.Rows[i].Side < v.Rows[j].Side
			}
			return v.Rows[i].CapturedAt.Before(v.Rows[j].CapturedAt)
		})
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return pointKey(out[i].Point) < pointKey(out[j].Point)
	})
	return out
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

// Compute reduces one View into a Result: the weighted vig-free consensus
// across included bookmakers, plus best-price/book per side.
func Compute(cfg *appconfig.Config, v *View) Result {
	sharpBooks := map[string]bool{}
	for _, b := range cfg.SharpBooks {
		sharpBooks[lowerASCII(b)] = true
	}

	included := append([]string(nil), v.BookList...)
	sort.Strings(included)

	res := Result{
		GameID:        v.GameID,
		MarketKey:     v.MarketKey,
		Point:         v.Point,
		IncludedBooks: len(included),
		BestDecimal:   map[domain.Side]float64{},
		BestBook:      map[domain.Side]string{},
		CapturedAtMin: v.CapturedAtMin,
		CapturedAtMax: v.CapturedAtMax,
	}
	for _, b := range included {
		if sharpBooks[lowerASCII(b)] {
			res.SharpBooksIncluded++
		}
	}

	if len(included) < cfg.ConsensusMinBooks {
		res.ConsensusReason = "insufficient_books"
	} else {
		required := domain.RequiredSides(v.SportKey, v.MarketKey)
		sides := append([]domain.Side(nil), required...)
		sort.Slice(sides, func(i, j int) bool { return sides[i] < sides[j] })

		books := make([][]float64, len(included))
		weights := make([]float64, len(included))
		for i, b := range included {
			weights[i] = cfg.StandardWeight
			if sharpBooks[lowerASCII(b)] {
				weights[i] = cfg.SharpWeight
			}
			row := make([]float64, len(sides))
			for j, s := range sides {
				row[j] = v.BookFairProbs[b][s]
			}
			books[i] = row
		}

		consensus, err := oddsmath.ConsensusFairProb(books, weights)
		if err == nil {
			probs := map[domain.Side]float64{}
			for i, s := range sides {
				probs[s] = consensus[i]
			}
			res.ConsensusProbs = probs
		} else {
			res.ConsensusReason = "insufficient_books"
		}
	}

	for _, row := range v.Rows {
		if row.Decimal == nil {
			continue
		}
		dec := *row.Decimal
		existing, ok := res.BestDecimal[row.Side]
		if !ok || dec > existing || (dec == existing && row.Bookmaker < res.BestBook[row.Side]) {
			res.BestDecimal[row.Side] = dec
			res.BestBook[row.Side] = row.Bookmaker
		}
	}

	return res
}

// ForSport builds and computes every market view for a (sport, market)
// pair from its raw snapshot history, matching
// get_latest_group_rows + build_market_views + compute_consensus_for_view
// chained together.
func ForSport(cfg *appconfig.Config, sportKey string, market domain.MarketKey, snapshots []domain.OddsSnapshot) []Result {
	sharpBooks := map[string]bool{}
	for _, b := range cfg.SharpBooks {
		sharpBooks[lowerASCII(b)] = true
	}
	views := BuildViews(sportKey, market, snapshots, sharpBooks)
	out := make([]Result, 0, len(views))
	for _, v := range views {
		out = append(out, Compute(cfg, v))
	}
	return out
}

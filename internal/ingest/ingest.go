// Package ingest fetches odds for one sport, normalizes and groups them,
// and writes only the groups whose content-hash actually changed. It is
// the Go counterpart of original_source/backend/app/services/ingest.py,
// wired onto the teacher's internal/services/odds_sync.go batch-commit
// idiom (one transaction per sport per call).
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsfeed"
	"github.com/dEnchanter/OddsIQ/backend/internal/oddsmath"
	"github.com/dEnchanter/OddsIQ/backend/internal/quota"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Summary is the per-sport result returned to callers and logged into a
// PipelineRun's stats_json.
type Summary struct {
	SportKey            string `json:"sport_key"`
	GamesUpserted       int    `json:"games_upserted"`
	GroupsChanged        int    `json:"groups_changed"`
	SnapshotRowsInserted int    `json:"snapshot_rows_inserted"`
	GroupsSkipped        int    `json:"groups_skipped"`
	ErrorsCount          int    `json:"errors_count"`
}

// Service wires the feed client and repositories together.
type Service struct {
	cfg    *appconfig.Config
	feed   *oddsfeed.Client
	quota  *quota.Snapshot
	pool   *pgxpool.Pool
	games  *store.GamesRepository
	groups *store.OddsGroupsRepository
	snaps  *store.OddsSnapshotsRepository
}

func NewService(cfg *appconfig.Config, feed *oddsfeed.Client, q *quota.Snapshot, pool *pgxpool.Pool,
	games *store.GamesRepository, groups *store.OddsGroupsRepository, snaps *store.OddsSnapshotsRepository) *Service {
	return &Service{cfg: cfg, feed: feed, quota: q, pool: pool, games: games, groups: groups, snaps: snaps}
}

type sidePrice struct {
	side     domain.Side
	american *int
	decimal  *float64
	implied  *float64
	point    *float64
}

func normalizeSide(eventHome, eventAway, marketKey, outcomeName, sportKey string) (domain.Side, error) {
	market := strings.ToLower(marketKey)
	outcome := strings.ToLower(strings.TrimSpace(outcomeName))

	switch market {
	case "h2h", "spreads":
		if outcome == strings.ToLower(strings.TrimSpace(eventHome)) {
			return domain.SideHome, nil
		}
		if outcome == strings.ToLower(strings.TrimSpace(eventAway)) {
			return domain.SideAway, nil
		}
		if market == "h2h" && domain.IsSoccerH2H(sportKey) && outcome == "draw" {
			return domain.SideDraw, nil
		}
		return "", apperr.New(apperr.InvalidArgument, fmt.Sprintf("could not map team outcome %q to home=%q or away=%q", outcomeName, eventHome, eventAway))
	case "totals":
		if outcome == "over" {
			return domain.SideOver, nil
		}
		if outcome == "under" {
			return domain.SideUnder, nil
		}
		return "", apperr.New(apperr.InvalidArgument, fmt.Sprintf("could not map totals outcome %q to OVER/UNDER", outcomeName))
	default:
		return "", apperr.New(apperr.InvalidArgument, fmt.Sprintf("unsupported market_key %q", marketKey))
	}
}

// groupKey identifies one (market, bookmaker, point) bucket inside one
// event/bookmaker.
type groupKey struct {
	marketKey string
	bookmaker string
	point     *float64
}

func pointSortValue(p *float64) float64 {
	if p == nil {
		return -1e18
	}
	return *p
}

// canonicalGroupHash reproduces ingest.py's
// build_normalized_group_representation: sorted-key, compact-separator
// JSON of {event_id, market_key, bookmaker, point, sides:[...]} hashed
// with SHA-256.
func canonicalGroupHash(eventID, marketKey, bookmaker string, point *float64, sides []sidePrice) string {
	type sideJSON struct {
		American *int     `json:"american"`
		Decimal  *float64 `json:"decimal"`
		Side     string   `json:"side"`
	}
	sorted := make([]sideJSON, len(sides))
	for i, sp := range sides {
		sorted[i] = sideJSON{Side: string(sp.side), American: sp.american, Decimal: sp.decimal}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Side < sorted[j].Side })

	payload := struct {
		Bookmaker string     `json:"bookmaker"`
		EventID   string     `json:"event_id"`
		MarketKey string     `json:"market_key"`
		Point     *float64   `json:"point"`
		Sides     []sideJSON `json:"sides"`
	}{EventID: eventID, MarketKey: marketKey, Bookmaker: bookmaker, Point: point, Sides: sorted}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func parseCommenceTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.InvalidArgument, "parse commence_time", err)
	}
	return t.UTC(), nil
}

// IngestSport runs the full §4.2 algorithm for one sport_key and commits
// once at the end.
func (s *Service) IngestSport(ctx context.Context, sportKey string) (Summary, error) {
	summary := Summary{SportKey: sportKey}

	whitelisted := false
	for _, sk := range s.cfg.OddsSportsWhitelist {
		if sk == sportKey {
			whitelisted = true
			break
		}
	}
	if !whitelisted {
		return summary, apperr.New(apperr.InvalidArgument, fmt.Sprintf("sport_key %q is not in ODDS_SPORTS_WHITELIST", sportKey))
	}

	events, quotaInfo, err := s.feed.FetchOdds(sportKey, s.cfg.OddsMarkets, s.cfg.OddsRegions)
	if err != nil {
		return summary, err
	}
	s.quota.Record(quotaInfo.Headers, quotaInfo.FetchedAt)

	bookmakerFilter := map[string]bool{}
	for _, b := range s.cfg.BookmakerWhitelist {
		bookmakerFilter[b] = true
	}
	capturedAt := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return summary, apperr.Wrap(apperr.Internal, "begin ingest transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, event := range events {
		if err := s.ingestEvent(ctx, tx, event, sportKey, bookmakerFilter, capturedAt, &summary); err != nil {
			summary.ErrorsCount++
			if s.cfg.DeltaHashStrict {
				return summary, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, apperr.Wrap(apperr.Internal, "commit ingest transaction", err)
	}
	return summary, nil
}

// ingestEvent upserts one Game and, per bookmaker/market group, either
// skips it (hash unchanged) or writes a fresh snapshot row per side.
func (s *Service) ingestEvent(ctx context.Context, tx pgx.Tx, event oddsfeed.Event, sportKey string, bookmakerFilter map[string]bool, capturedAt time.Time, summary *Summary) error {
	commenceTime, err := parseCommenceTime(event.CommenceTime)
	if err != nil {
		return err
	}

	game, err := s.games.UpsertGame(ctx, tx, sportKey, event.ID, commenceTime, event.HomeTeam, event.AwayTeam)
	if err != nil {
		return err
	}
	summary.GamesUpserted++

	bookmakers := append([]oddsfeed.Bookmaker(nil), event.Bookmakers...)
	sort.Slice(bookmakers, func(i, j int) bool { return bookmakers[i].Key < bookmakers[j].Key })

	marketSet := map[string]bool{}
	for _, m := range s.cfg.OddsMarkets {
		marketSet[m] = true
	}

	for _, book := range bookmakers {
		if len(bookmakerFilter) > 0 && !bookmakerFilter[book.Key] {
			continue
		}

		grouped := map[groupKey][]sidePrice{}
		pointRefs := map[float64]*float64{}
		markets := append([]oddsfeed.Market(nil), book.Markets...)
		sort.Slice(markets, func(i, j int) bool { return markets[i].Key < markets[j].Key })

		for _, market := range markets {
			if !marketSet[market.Key] {
				continue
			}
			for _, outcome := range market.Outcomes {
				side, err := normalizeSide(event.HomeTeam, event.AwayTeam, market.Key, outcome.Name, sportKey)
				if err != nil {
					return err
				}
				american := outcome.Price
				dec, err := oddsmath.AmericanToDecimal(american)
				if err != nil {
					return apperr.Wrap(apperr.InvalidArgument, fmt.Sprintf("invalid american price %d for %s/%s %s", american, market.Key, book.Key, outcome.Name), err)
				}
				implied, err := oddsmath.AmericanToImpliedProb(american)
				if err != nil {
					return apperr.Wrap(apperr.InvalidArgument, fmt.Sprintf("invalid american price %d for %s/%s %s", american, market.Key, book.Key, outcome.Name), err)
				}
				pt := outcome.Point
				if pt != nil {
					if ref, ok := pointRefs[*pt]; ok {
						pt = ref
					} else {
						pointRefs[*pt] = pt
					}
				}
				key := groupKey{marketKey: market.Key, bookmaker: book.Key, point: pt}
				grouped[key] = append(grouped[key], sidePrice{
					side: side, american: &american, decimal: &dec, implied: &implied, point: pt,
				})
			}
		}

		keys := make([]groupKey, 0, len(grouped))
		for k := range grouped {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].marketKey != keys[j].marketKey {
				return keys[i].marketKey < keys[j].marketKey
			}
			if keys[i].bookmaker != keys[j].bookmaker {
				return keys[i].bookmaker < keys[j].bookmaker
			}
			return pointSortValue(keys[i].point) < pointSortValue(keys[j].point)
		})

		for _, key := range keys {
			sides := append([]sidePrice(nil), grouped[key]...)
			sort.Slice(sides, func(i, j int) bool { return sides[i].side < sides[j].side })

			groupHash := canonicalGroupHash(event.ID, key.marketKey, key.bookmaker, key.point, sides)

			existing, err := s.groups.Get(ctx, tx, game.ID, domain.MarketKey(key.marketKey), key.bookmaker, key.point)
			if err != nil {
				return err
			}
			if existing != nil && existing.LastHash == groupHash {
				summary.GroupsSkipped++
				continue
			}

			// sides is already fully validated (ingestEvent returns early on any
			// invalid american price), so implieds/fairProbs/snaps stay index-aligned
			// with sides by construction -- no filtering, no desync.
			implieds := make([]float64, len(sides))
			for i, sp := range sides {
				implieds[i] = *sp.implied
			}
			fairProbs, err := oddsmath.RemoveVig(implieds)
			if err != nil {
				return err
			}

			snaps := make([]domain.OddsSnapshot, len(sides))
			for i, sp := range sides {
				snaps[i] = domain.OddsSnapshot{
					GameID:      game.ID,
					CapturedAt:  capturedAt,
					MarketKey:   domain.MarketKey(key.marketKey),
					Bookmaker:   key.bookmaker,
					Side:        sp.side,
					Point:       sp.point,
					American:    sp.american,
					Decimal:     sp.decimal,
					ImpliedProb: *sp.implied,
					FairProb:    fairProbs[i],
					GroupHash:   groupHash,
				}
			}
			if err := s.snaps.InsertBatch(ctx, tx, snaps); err != nil {
				return err
			}
			summary.SnapshotRowsInserted += len(snaps)

			if err := s.groups.Upsert(ctx, tx, game.ID, domain.MarketKey(key.marketKey), key.bookmaker, key.point, groupHash, capturedAt); err != nil {
				return err
			}
			summary.GroupsChanged++
		}
	}
	return nil
}

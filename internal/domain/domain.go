// Package domain holds the shared vocabulary of the value pipeline: market
// and side enums, decision/run-status enums, and the plain value structs
// that move between the ingest, consensus, pick, PQS, CLV and priors
// packages. None of these types touch the database directly; internal/store
// owns the mapping to and from persisted rows.
package domain

import "time"

// MarketKey identifies one of the three supported bet types.
type MarketKey string

const (
	MarketH2H      MarketKey = "h2h"
	MarketSpreads  MarketKey = "spreads"
	MarketTotals   MarketKey = "totals"
)

func (m MarketKey) Valid() bool {
	switch m {
	case MarketH2H, MarketSpreads, MarketTotals:
		return true
	}
	return false
}

// Side identifies one outcome within a market.
type Side string

const (
	SideHome  Side = "HOME"
	SideAway  Side = "AWAY"
	SideDraw  Side = "DRAW"
	SideOver  Side = "OVER"
	SideUnder Side = "UNDER"
)

// IsSoccerH2H reports whether sport_key names a soccer league, the only
// family where h2h carries a third (DRAW) outcome.
func IsSoccerH2H(sportKey string) bool {
	return len(sportKey) >= 7 && sportKey[:7] == "soccer_"
}

// RequiredSides returns the canonical, sorted side set a market must have
// every quote for before a group/bookmaker counts as "fully quoted".
func RequiredSides(sportKey string, market MarketKey) []Side {
	switch market {
	case MarketH2H:
		if IsSoccerH2H(sportKey) {
			return []Side{SideAway, SideDraw, SideHome}
		}
		return []Side{SideAway, SideHome}
	case MarketSpreads:
		return []Side{SideAway, SideHome}
	case MarketTotals:
		return []Side{SideOver, SideUnder}
	default:
		return nil
	}
}

// OppositeSide returns the side that, paired with s, forms the two-way
// devig used by price-dispersion (features.go). DRAW has no natural
// opposite in a three-way market; callers must special-case it.
func OppositeSide(s Side) (Side, bool) {
	switch s {
	case SideHome:
		return SideAway, true
	case SideAway:
		return SideHome, true
	case SideOver:
		return SideUnder, true
	case SideUnder:
		return SideOver, true
	default:
		return "", false
	}
}

// Decision is the scorer's verdict on a pick.
type Decision string

const (
	DecisionKeep Decision = "KEEP"
	DecisionWarn Decision = "WARN"
	DecisionDrop Decision = "DROP"
)

// RunType names a pipeline action.
type RunType string

const (
	RunIngest RunType = "ingest"
	RunPicks  RunType = "picks"
	RunCLV    RunType = "clv"
	RunCycle  RunType = "cycle"
)

// RunStatus is the outcome of a PipelineRun.
type RunStatus string

const (
	RunStatusOK    RunStatus = "ok"
	RunStatusError RunStatus = "error"
)

// CalibrationStatus tracks the lifecycle of a proposed config patch.
type CalibrationStatus string

const (
	CalibrationProposed CalibrationStatus = "PROPOSED"
	CalibrationApplied  CalibrationStatus = "APPLIED"
)

// Game is a single scheduled event as reported by the odds provider.
type Game struct {
	ID           int64
	SportKey     string
	EventID      string
	CommenceTime time.Time
	HomeTeam     string
	AwayTeam     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OddsGroup tracks the last-seen content hash for one (game, market,
// bookmaker, point) quadruple, used to skip no-op ingests.
type OddsGroup struct {
	ID             int64
	GameID         int64
	MarketKey      MarketKey
	Bookmaker      string
	Point          *float64
	LastHash       string
	LastCapturedAt time.Time
}

// OddsSnapshot is one immutable bookmaker quote for one side.
type OddsSnapshot struct {
	ID           int64
	GameID       int64
	CapturedAt   time.Time
	MarketKey    MarketKey
	Bookmaker    string
	Side         Side
	Point        *float64
	American     *int
	Decimal      *float64
	ImpliedProb  float64
	FairProb     float64
	GroupHash    string
}

// Pick is a generated recommendation, later mutated in place by the CLV
// engine.
type Pick struct {
	ID              int64
	GameID          int64
	CreatedAt       time.Time
	MarketKey       MarketKey
	Side            Side
	Point           *float64
	Source          string
	ConsensusProb   float64
	BestDecimal     float64
	BestBook        string
	EV              float64
	KellyFraction   float64
	Stake           float64
	ConsensusBooks  int
	SharpBooks      int
	CapturedAtMin   time.Time
	CapturedAtMax   time.Time

	ClosingConsensusProb   *float64
	ClosingBookDecimal     *float64
	ClosingBookImpliedProb *float64
	MarketCLV              *float64
	BookCLV                *float64
	ClvComputedAt          *time.Time
}

// PickScore is the versioned PQS verdict for one Pick.
type PickScore struct {
	ID             int64
	PickID         int64
	ScoredAt       time.Time
	Version        string
	PQS            float64
	Components     map[string]float64
	Features       map[string]float64
	Decision       Decision
	DropReason     *string
}

// ClvSportStat is a windowed CLV summary for one (sport, market) pair.
type ClvSportStat struct {
	ID                   int64
	SportKey             string
	MarketKey            MarketKey
	SideType             *string
	WindowSize           int
	AsOf                 time.Time
	N                    int
	MeanMarketCLVBps     float64
	MedianMarketCLVBps   float64
	PctPositiveMarketCLV float64
	MeanSameBookCLVBps   *float64
	SharpeLike           *float64
	IsWeak               bool
	LastUpdatedAt        time.Time
}

// PipelineRun is an append-only log row for one ingest/picks/clv/cycle
// attempt.
type PipelineRun struct {
	ID        int64
	CreatedAt time.Time
	RunType   RunType
	Status    RunStatus
	Sports    string
	Markets   string
	StatsJSON string
	Error     *string
}

// CalibrationRun is a proposed (and optionally applied) config patch.
type CalibrationRun struct {
	ID                      int64
	CreatedAt               time.Time
	EvalWindowStart         time.Time
	EvalWindowEnd           time.Time
	PQSVersion              string
	CurrentConfigSnapshot   string
	ProposedConfigPatch     string
	Rationale               string
	Status                  CalibrationStatus
	AppliedAt               *time.Time
}

// Package eval builds the diagnostic reports and dataset export that
// close the PQS/CLV feedback loop, plus the bounded calibration-patch
// proposal/apply lifecycle. It is the Go counterpart of
// original_source/backend/app/eval/service.py and
// original_source/backend/app/eval/calibration.py.
package eval

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dEnchanter/OddsIQ/backend/internal/appconfig"
	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
	"github.com/dEnchanter/OddsIQ/backend/internal/store"
)

var keepWarn = map[string]bool{"KEEP": true, "WARN": true}

// Service wires config and the eval/calibration repositories together.
type Service struct {
	cfg    *appconfig.Config
	rows   *store.EvalRepository
	calibs *store.CalibrationRunsRepository
}

func NewService(cfg *appconfig.Config, rows *store.EvalRepository, calibs *store.CalibrationRunsRepository) *Service {
	return &Service{cfg: cfg, rows: rows, calibs: calibs}
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func medianOf(vs []float64) float64 {
	n := len(vs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}

// DatasetResult is query_eval_dataset's returned dict shape.
type DatasetResult struct {
	InsufficientN bool            `json:"insufficient_n"`
	N             int             `json:"n"`
	Rows          []store.EvalRow `json:"rows"`
	Limit         int             `json:"limit,omitempty"`
	Offset        int             `json:"offset,omitempty"`
}

// Dataset runs the filtered eval query, refusing to return rows below
// min_n, matching query_eval_dataset.
func (s *Service) Dataset(ctx context.Context, f store.DatasetFilter, minN int) (DatasetResult, error) {
	if f.Version == "" {
		f.Version = s.cfg.PQSVersion
	}
	page, total, err := s.rows.Dataset(ctx, f)
	if err != nil {
		return DatasetResult{}, err
	}
	if total < minN {
		return DatasetResult{InsufficientN: true, N: total}, nil
	}
	return DatasetResult{N: total, Rows: page, Limit: f.Limit, Offset: f.Offset}, nil
}

var datasetCSVColumns = []string{
	"pick_id", "created_at", "clv_computed_at", "sport_key", "market_key", "event_id",
	"commence_time_utc", "side", "point", "pqs", "decision", "drop_reason",
	"market_clv_bps", "same_book_clv_bps", "closing_snapshot_at",
}

func formatCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatCSVFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatCSVString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DatasetCSV renders a Dataset result as CSV text, matching dataset_csv.
func DatasetCSV(result DatasetResult) (string, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(datasetCSVColumns); err != nil {
		return "", err
	}
	for _, row := range result.Rows {
		clvComputedAt := row.ClvComputedAt
		closingAt := row.ClosingSnapshotAt
		record := []string{
			strconv.FormatInt(row.PickID, 10),
			row.CreatedAt.UTC().Format(time.RFC3339),
			formatCSVTime(clvComputedAt),
			row.SportKey,
			row.MarketKey,
			row.EventID,
			row.CommenceTimeUTC.UTC().Format(time.RFC3339),
			row.Side,
			formatCSVFloat(row.Point),
			strconv.FormatFloat(row.PQS, 'f', -1, 64),
			row.Decision,
			formatCSVString(row.DropReason),
			formatCSVFloat(row.MarketCLVBps),
			formatCSVFloat(row.SameBookCLVBps),
			formatCSVTime(closingAt),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// spearman computes Spearman's rank correlation over (x, y, id) triples,
// breaking rank ties by id for a stable ordering, matching _spearman.
func spearman(xs, ys []float64, ids []int64) *float64 {
	n := len(xs)
	if n < 2 {
		return nil
	}
	type idx struct {
		x, y float64
		id   int64
		i    int
	}
	items := make([]idx, n)
	for i := range xs {
		items[i] = idx{x: xs[i], y: ys[i], id: ids[i], i: i}
	}

	byX := append([]idx(nil), items...)
	sort.Slice(byX, func(i, j int) bool {
		if byX[i].x != byX[j].x {
			return byX[i].x < byX[j].x
		}
		return byX[i].id < byX[j].id
	})
	byY := append([]idx(nil), items...)
	sort.Slice(byY, func(i, j int) bool {
		if byY[i].y != byY[j].y {
			return byY[i].y < byY[j].y
		}
		return byY[i].id < byY[j].id
	})

	rx := map[int64]float64{}
	for i, it := range byX {
		rx[it.id] = float64(i + 1)
	}
	ry := map[int64]float64{}
	for i, it := range byY {
		ry[it.id] = float64(i + 1)
	}

	meanRank := float64(n+1) / 2
	var num, denX, denY float64
	for _, it := range items {
		dx := rx[it.id] - meanRank
		dy := ry[it.id] - meanRank
		num += dx * dy
		denX += dx * dx
		denY += dy * dy
	}
	if denX == 0 || denY == 0 {
		return nil
	}
	v := round(num/math.Sqrt(denX*denY), 6)
	return &v
}

// PQSClvBin is one of the 5 PQS-quantile bins in a PQSClvReport.
type PQSClvBin struct {
	Bin                  int      `json:"bin"`
	N                     int      `json:"n"`
	MeanMarketCLVBps      *float64 `json:"mean_market_clv_bps"`
	MedianMarketCLVBps    *float64 `json:"median_market_clv_bps"`
	PctPositiveMarketCLV  float64  `json:"pct_positive_market_clv"`
}

// PQSClvReport is pqs_clv_report's returned dict shape.
type PQSClvReport struct {
	InsufficientN bool        `json:"insufficient_n"`
	N             int         `json:"n"`
	Spearman      *float64    `json:"spearman"`
	BinMeanSlope  *float64    `json:"bin_mean_slope"`
	Bins          []PQSClvBin `json:"bins"`
}

// PQSClv builds the PQS-vs-CLV correlation and quantile-bin report,
// matching pqs_clv_report.
func (s *Service) PQSClv(ctx context.Context, minN int) (PQSClvReport, error) {
	ids, pqs, clv, err := s.rows.PQSClvPairs(ctx, s.cfg.PQSVersion)
	if err != nil {
		return PQSClvReport{}, err
	}
	n := len(ids)
	if n < minN {
		return PQSClvReport{InsufficientN: true, N: n}, nil
	}

	total := n
	type bin struct {
		n      int
		market []float64
	}
	bins := make([]bin, 5)
	for idx := range ids {
		binIdx := (idx * 5) / total
		if binIdx > 4 {
			binIdx = 4
		}
		bins[binIdx].n++
		bins[binIdx].market = append(bins[binIdx].market, clv[idx])
	}

	table := make([]PQSClvBin, 0, 5)
	for i, b := range bins {
		entry := PQSClvBin{Bin: i + 1, N: b.n}
		if len(b.market) > 0 {
			m := round(mean(b.market), 4)
			md := round(medianOf(b.market), 4)
			positive := 0
			for _, v := range b.market {
				if v > 0 {
					positive++
				}
			}
			entry.MeanMarketCLVBps = &m
			entry.MedianMarketCLVBps = &md
			entry.PctPositiveMarketCLV = round(float64(positive)/float64(len(b.market)), 6)
		}
		table = append(table, entry)
	}

	var xVals, yVals []float64
	for _, row := range table {
		if row.MeanMarketCLVBps != nil {
			xVals = append(xVals, float64(row.Bin))
			yVals = append(yVals, *row.MeanMarketCLVBps)
		}
	}
	var slope *float64
	if len(xVals) >= 2 {
		mx := mean(xVals)
		my := mean(yVals)
		var denom float64
		for _, x := range xVals {
			denom += (x - mx) * (x - mx)
		}
		if denom > 0 {
			var num float64
			for i := range xVals {
				num += (xVals[i] - mx) * (yVals[i] - my)
			}
			v := round(num/denom, 6)
			slope = &v
		}
	}

	return PQSClvReport{
		N:            n,
		Spearman:     spearman(pqs, clv, ids),
		BinMeanSlope: slope,
		Bins:         table,
	}, nil
}

// DropReasonCount is one tallied drop reason in a GatesReport.
type DropReasonCount struct {
	Reason string  `json:"reason"`
	Count  int     `json:"count"`
	Rate   float64 `json:"rate"`
}

// GateParameters snapshots the hard-gate thresholds in effect when a
// GatesReport was produced.
type GateParameters struct {
	MinBooks           int     `json:"MIN_BOOKS"`
	SharpBookMin       int     `json:"SHARP_BOOK_MIN"`
	MinMinutesToStart  float64 `json:"MIN_MINUTES_TO_START"`
	MaxPriceDispersion float64 `json:"MAX_PRICE_DISPERSION"`
	MinAgreement       float64 `json:"MIN_AGREEMENT"`
}

// GatesReport is gates_report's returned dict shape.
type GatesReport struct {
	InsufficientN           bool              `json:"insufficient_n"`
	N                       int               `json:"n"`
	DropReasons             []DropReasonCount `json:"drop_reasons"`
	KeptMarketCLVBpsMean    *float64          `json:"kept_market_clv_bps_mean"`
	DroppedMarketCLVBpsMean *float64          `json:"dropped_market_clv_bps_mean"`
	GateParameters          GateParameters    `json:"gate_parameters"`
}

// Gates tallies drop reasons and kept-vs-dropped CLV means, matching
// gates_report.
func (s *Service) Gates(ctx context.Context, minN int) (GatesReport, error) {
	rows, err := s.rows.GateRows(ctx, s.cfg.PQSVersion)
	if err != nil {
		return GatesReport{}, err
	}
	n := len(rows)
	if n < minN {
		return GatesReport{InsufficientN: true, N: n}, nil
	}

	counts := map[string]int{}
	var kept, dropped []float64
	for _, row := range rows {
		reason := "none"
		if row.DropReason != nil && *row.DropReason != "" {
			reason = *row.DropReason
		}
		counts[reason]++
		if row.MarketCLV == nil {
			continue
		}
		if keepWarn[row.Decision] {
			kept = append(kept, *row.MarketCLV)
		} else if row.Decision == "DROP" {
			dropped = append(dropped, *row.MarketCLV)
		}
	}

	var reasons []string
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	var dropReasons []DropReasonCount
	for _, r := range reasons {
		dropReasons = append(dropReasons, DropReasonCount{
			Reason: r,
			Count:  counts[r],
			Rate:   round(float64(counts[r])/float64(n), 6),
		})
	}

	var keptMean, droppedMean *float64
	if len(kept) > 0 {
		v := round(mean(kept), 4)
		keptMean = &v
	}
	if len(dropped) > 0 {
		v := round(mean(dropped), 4)
		droppedMean = &v
	}

	return GatesReport{
		N:                       n,
		DropReasons:             dropReasons,
		KeptMarketCLVBpsMean:    keptMean,
		DroppedMarketCLVBpsMean: droppedMean,
		GateParameters: GateParameters{
			MinBooks:           s.cfg.MinBooks,
			SharpBookMin:       s.cfg.SharpBookMin,
			MinMinutesToStart:  s.cfg.MinMinutesToStart,
			MaxPriceDispersion: s.cfg.MaxPriceDispersion,
			MinAgreement:       s.cfg.MinAgreement,
		},
	}, nil
}

// SportStat is one (sport_key, market_key) row in a SportsReport.
type SportStat struct {
	SportKey             string   `json:"sport_key"`
	MarketKey            string   `json:"market_key"`
	N                    int      `json:"n"`
	KeepRate             float64  `json:"keep_rate"`
	AvgPQS               float64  `json:"avg_pqs"`
	MeanMarketCLVBps     *float64 `json:"mean_market_clv_bps"`
	MedianMarketCLVBps   *float64 `json:"median_market_clv_bps"`
	PctPositiveCLV       float64  `json:"pct_positive_clv"`
	AdaptiveMinPQS       float64  `json:"adaptive_min_pqs"`
	AdaptiveMaxPicks     int      `json:"adaptive_max_picks"`
}

// SportsReport is sports_report's returned dict shape.
type SportsReport struct {
	InsufficientN bool        `json:"insufficient_n"`
	N             int         `json:"n"`
	Sports        []SportStat `json:"sports"`
}

type sportMarketKey struct{ sport, market string }

// Sports breaks keep-rate and CLV quality down per (sport, market),
// matching sports_report.
func (s *Service) Sports(ctx context.Context, minN int) (SportsReport, error) {
	rows, err := s.rows.SportRows(ctx, s.cfg.PQSVersion)
	if err != nil {
		return SportsReport{}, err
	}
	n := len(rows)
	if n < minN {
		return SportsReport{InsufficientN: true, N: n}, nil
	}

	grouped := map[sportMarketKey][]store.SportRow{}
	var keys []sportMarketKey
	for _, row := range rows {
		key := sportMarketKey{row.SportKey, row.MarketKey}
		if _, ok := grouped[key]; !ok {
			keys = append(keys, key)
		}
		grouped[key] = append(grouped[key], row)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sport != keys[j].sport {
			return keys[i].sport < keys[j].sport
		}
		return keys[i].market < keys[j].market
	})

	var out []SportStat
	for _, key := range keys {
		vals := grouped[key]
		var pqsSum float64
		keptN := 0
		var keptCLV []float64
		for _, v := range vals {
			pqsSum += v.PQS
			if keepWarn[v.Decision] {
				keptN++
				if v.MarketCLV != nil {
					keptCLV = append(keptCLV, *v.MarketCLV)
				}
			}
		}
		stat := SportStat{
			SportKey:         key.sport,
			MarketKey:        key.market,
			N:                len(vals),
			KeepRate:         round(float64(keptN)/float64(len(vals)), 6),
			AvgPQS:           round(pqsSum/float64(len(vals)), 6),
			AdaptiveMinPQS:   s.cfg.SportDefaultMinPQS,
			AdaptiveMaxPicks: s.cfg.SportDefaultMaxPicks,
		}
		if len(keptCLV) > 0 {
			m := round(mean(keptCLV), 4)
			md := round(medianOf(keptCLV), 4)
			positive := 0
			for _, v := range keptCLV {
				if v > 0 {
					positive++
				}
			}
			stat.MeanMarketCLVBps = &m
			stat.MedianMarketCLVBps = &md
			stat.PctPositiveCLV = round(float64(positive)/float64(len(keptCLV)), 6)
		}
		out = append(out, stat)
	}

	return SportsReport{N: n, Sports: out}, nil
}

// VolumeReport is volume_report's returned dict shape.
type VolumeReport struct {
	InsufficientN      bool    `json:"insufficient_n"`
	N                  int     `json:"n"`
	KeptPerRunMean     float64 `json:"kept_per_run_mean"`
	KeptPerRunMedian   float64 `json:"kept_per_run_median"`
	RunsHittingCapsPct float64 `json:"runs_hitting_caps_pct"`
}

type runStats struct {
	Kept      int `json:"kept"`
	Inserted  int `json:"inserted"`
}

// Volume summarizes how many picks each run kept and how often runs hit
// the run-wide cap, matching volume_report.
func (s *Service) Volume(ctx context.Context, minN int) (VolumeReport, error) {
	runs, err := s.rows.AllRuns(ctx)
	if err != nil {
		return VolumeReport{}, err
	}
	n := len(runs)
	if n < minN {
		return VolumeReport{InsufficientN: true, N: n}, nil
	}

	var keptPerRun []float64
	hitCaps := 0
	for _, run := range runs {
		var rs runStats
		_ = json.Unmarshal([]byte(run.StatsJSON), &rs)
		kept := rs.Kept
		if kept == 0 {
			kept = rs.Inserted
		}
		keptPerRun = append(keptPerRun, float64(kept))
		if kept >= s.cfg.RunMaxPicksTotal {
			hitCaps++
		}
	}

	return VolumeReport{
		N:                  n,
		KeptPerRunMean:     round(mean(keptPerRun), 4),
		KeptPerRunMedian:   round(medianOf(keptPerRun), 4),
		RunsHittingCapsPct: round(float64(hitCaps)/float64(n), 6),
	}, nil
}

// configSnapshot mirrors _snapshot's nested dict.
type configSnapshot struct {
	PQSWeights    map[string]float64 `json:"pqs_weights"`
	Gates         map[string]float64 `json:"gates"`
	SportDefaults map[string]float64 `json:"sport_defaults"`
}

func (s *Service) snapshot() configSnapshot {
	return configSnapshot{
		PQSWeights: map[string]float64{
			"ev":            s.cfg.PQSWeightEV,
			"agreement":     s.cfg.PQSWeightAgreement,
			"dispersion":    s.cfg.PQSWeightDispersion,
			"coverage":      s.cfg.PQSWeightCoverage,
			"sharp_presence": s.cfg.PQSWeightSharp,
			"clv_prior":     s.cfg.PQSWeightClvPrior,
			"time_to_start": s.cfg.PQSWeightTime,
		},
		Gates: map[string]float64{
			"min_books":             float64(s.cfg.MinBooks),
			"sharp_book_min":        float64(s.cfg.SharpBookMin),
			"min_minutes_to_start":  s.cfg.MinMinutesToStart,
			"max_price_dispersion":  s.cfg.MaxPriceDispersion,
			"min_agreement":         s.cfg.MinAgreement,
		},
		SportDefaults: map[string]float64{
			"min_pqs":   s.cfg.SportDefaultMinPQS,
			"max_picks": float64(s.cfg.SportDefaultMaxPicks),
		},
	}
}

// CalibrationProposal is propose_calibration's returned dict shape.
type CalibrationProposal struct {
	ID        int64          `json:"id"`
	Status    string         `json:"status"`
	Patch     map[string]any `json:"patch"`
	Rationale map[string]any `json:"rationale"`
}

// Propose builds a bounded config-patch suggestion from the last targetN
// CLV-scored picks' reports and records it as a PROPOSED CalibrationRun,
// matching propose_calibration.
func (s *Service) Propose(ctx context.Context, targetN int) (CalibrationProposal, error) {
	if targetN < 1 {
		targetN = 1
	}
	created, closed, err := s.rows.CLVForCalibration(ctx, s.cfg.PQSVersion, targetN)
	if err != nil {
		return CalibrationProposal{}, err
	}
	if len(created) == 0 {
		return CalibrationProposal{Status: "insufficient_n"}, nil
	}

	evalStart := created[0]
	for _, c := range created {
		if c.Before(evalStart) {
			evalStart = c
		}
	}
	evalEnd := closed[0]
	for _, c := range closed {
		if c.After(evalEnd) {
			evalEnd = c
		}
	}

	minN := 20
	if targetN < minN {
		minN = targetN
	}
	pqs, err := s.PQSClv(ctx, minN)
	if err != nil {
		return CalibrationProposal{}, err
	}
	gates, err := s.Gates(ctx, minN)
	if err != nil {
		return CalibrationProposal{}, err
	}
	sports, err := s.Sports(ctx, minN)
	if err != nil {
		return CalibrationProposal{}, err
	}

	patch := map[string]any{}

	if !pqs.InsufficientN {
		slope := 0.0
		if pqs.BinMeanSlope != nil {
			slope = *pqs.BinMeanSlope
		}
		if slope <= 0 {
			patch["PQS_WEIGHT_EV"] = round(math.Max(0.05, s.cfg.PQSWeightEV-0.02), 4)
			patch["PQS_WEIGHT_CLV_PRIOR"] = round(math.Min(0.3, s.cfg.PQSWeightClvPrior+0.02), 4)
		}
	}

	if !gates.InsufficientN {
		kept, dropped := gates.KeptMarketCLVBpsMean, gates.DroppedMarketCLVBpsMean
		if kept != nil && dropped != nil && *kept < *dropped {
			patch["MIN_BOOKS"] = maxInt(4, s.cfg.MinBooks+1)
		} else if kept != nil && *kept > 0 && gates.N > 0 {
			nonNone := 0
			for _, r := range gates.DropReasons {
				if r.Reason != "none" {
					nonNone += r.Count
				}
			}
			if float64(nonNone)/float64(gates.N) > 0.6 {
				patch["MIN_BOOKS"] = maxInt(4, s.cfg.MinBooks-1)
			}
		}
	}

	if !sports.InsufficientN {
		poor := false
		for _, stat := range sports.Sports {
			if stat.PctPositiveCLV < 0.45 {
				poor = true
				break
			}
		}
		if poor {
			patch["SPORT_DEFAULT_MIN_PQS"] = round(math.Min(0.9, s.cfg.SportDefaultMinPQS+0.03), 4)
			patch["SPORT_DEFAULT_MAX_PICKS"] = maxInt(1, s.cfg.SportDefaultMaxPicks-1)
		}
	}

	rationale := map[string]any{"pqs": pqs, "gates": gates, "sports": sports}

	snapshotJSON, err := json.Marshal(s.snapshot())
	if err != nil {
		return CalibrationProposal{}, fmt.Errorf("marshal config snapshot: %w", err)
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return CalibrationProposal{}, fmt.Errorf("marshal config patch: %w", err)
	}
	rationaleJSON, err := json.Marshal(rationale)
	if err != nil {
		return CalibrationProposal{}, fmt.Errorf("marshal rationale: %w", err)
	}

	run, err := s.calibs.Propose(ctx, domain.CalibrationRun{
		EvalWindowStart:       evalStart,
		EvalWindowEnd:         evalEnd,
		PQSVersion:            s.cfg.PQSVersion,
		CurrentConfigSnapshot: string(snapshotJSON),
		ProposedConfigPatch:   string(patchJSON),
		Rationale:             string(rationaleJSON),
	})
	if err != nil {
		return CalibrationProposal{}, err
	}

	return CalibrationProposal{
		ID:        run.ID,
		Status:    string(run.Status),
		Patch:     patch,
		Rationale: rationale,
	}, nil
}

// Apply transitions a PROPOSED CalibrationRun to APPLIED, matching
// apply_calibration. It never mutates the running config: operators are
// expected to copy the patch into their environment and restart, the same
// hand-off the Python original leaves to its caller.
func (s *Service) Apply(ctx context.Context, runID int64) (domain.CalibrationRun, error) {
	run, err := s.calibs.ByID(ctx, runID)
	if err != nil {
		return domain.CalibrationRun{}, err
	}
	if run == nil {
		return domain.CalibrationRun{}, apperr.New(apperr.NotFound, fmt.Sprintf("calibration run %d not found", runID))
	}
	appliedAt := time.Now().UTC()
	if err := s.calibs.Apply(ctx, runID, appliedAt); err != nil {
		return domain.CalibrationRun{}, err
	}
	run.Status = domain.CalibrationApplied
	run.AppliedAt = &appliedAt
	return *run, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
